// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"strconv"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest is the request body for /api/generate endpoint.
type GenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	System  string `json:"system,omitempty"`
	Context []int  `json:"context,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// GenerateRecord is one newline-delimited record of a streaming /api/generate
// response. Every field is optional on the wire.
type GenerateRecord struct {
	Model           string    `json:"model,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	Response        string    `json:"response,omitempty"`
	Done            bool      `json:"done,omitempty"`
	DoneReason      string    `json:"done_reason,omitempty"`
	Context         []int     `json:"context,omitempty"`
	TotalDuration   int64     `json:"total_duration,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
	EvalDuration    int64     `json:"eval_duration,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// OllamaError represents an error from the Ollama API.
type OllamaError struct {
	Error string `json:"error"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about a model as reported by /api/tags.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelDescriptor is the lightweight {name, size} view of an installed model.
type ModelDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Descriptor reduces a ModelInfo to its descriptor.
func (m ModelInfo) Descriptor() ModelDescriptor {
	return ModelDescriptor{Name: m.Name, Size: m.Size}
}

// HumanSize formats the model size in human-readable form.
func (d ModelDescriptor) HumanSize() string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case d.Size >= GB:
		return formatFloat(float64(d.Size)/GB) + " GB"
	case d.Size >= MB:
		return formatFloat(float64(d.Size)/MB) + " MB"
	case d.Size >= KB:
		return formatFloat(float64(d.Size)/KB) + " KB"
	default:
		return strconv.FormatInt(d.Size, 10) + " B"
	}
}

// ContainsModel reports whether name is present in the descriptor set.
func ContainsModel(models []ModelDescriptor, name string) bool {
	if name == "" {
		return false
	}
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// Fragment is one incremental piece of generated text.
type Fragment struct {
	// Text appended by this record; empty on a bare completion record.
	Text string

	// Done is set on the completion record.
	Done       bool
	DoneReason string

	// Model is the model identity reported so far.
	Model string

	// Context is the continuation context carried by the completion record.
	Context []int
}

// GenerateResult is the outcome of a streamed generation.
type GenerateResult struct {
	Text  string `json:"text"`
	Model string `json:"model"`

	// Complete is false when the stream ended without a completion record.
	Complete bool `json:"complete"`

	Context   []int         `json:"-"`
	Fragments int           `json:"-"`
	Skipped   int           `json:"-"`
	Duration  time.Duration `json:"-"`
}

// ChunkFunc receives each fragment's text, synchronously and in arrival order.
type ChunkFunc func(text string)
