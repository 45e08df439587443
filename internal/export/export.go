// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript to a file format.
type Exporter interface {
	// Export converts a transcript to the target format and returns the content.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the format.
	MimeType() string
}

// Transcript is a saved conversation prepared for export.
type Transcript struct {
	Conversation string            `json:"conversation"`
	Messages     []storage.Message `json:"messages"`

	// Models lists the models that answered, in first-use order.
	Models []string `json:"models,omitempty"`

	// Tabs lists the tab titles mentioned in questions, in first-use order.
	Tabs []string `json:"tabs,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ExportedAt time.Time `json:"exportedAt"`
}

// NewTranscript builds a transcript from saved messages.
func NewTranscript(conversation string, msgs []storage.Message) *Transcript {
	t := &Transcript{
		Conversation: conversation,
		Messages:     msgs,
		ExportedAt:   time.Now(),
	}
	if len(msgs) > 0 {
		t.StartedAt = msgs[0].Timestamp
		t.UpdatedAt = msgs[len(msgs)-1].Timestamp
	}

	var models, titles []string
	for _, m := range msgs {
		if m.Model != "" {
			models = append(models, m.Model)
		}
		if m.Role == storage.RoleUser {
			for _, seg := range mention.Parse(m.Text) {
				if seg.Kind == mention.Reference {
					titles = append(titles, seg.Text)
				}
			}
		}
	}
	t.Models = lo.Uniq(models)
	t.Tabs = lo.Uniq(titles)
	return t
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files are written.
	// Default: current working directory
	OutputDir string

	// IncludeMetadata includes the frontmatter and session summary.
	IncludeMetadata bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ForFormat returns the exporter for a format name: markdown (md) or json.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md", "":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportToFile exports t with exporter into opts.OutputDir and returns the
// path written.
func ExportToFile(t *Transcript, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("tabchat_%s_%s%s",
		util.SanitizeFilename(t.Conversation, "conversation"),
		t.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================


// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Local().Format("15:04:05")
}
