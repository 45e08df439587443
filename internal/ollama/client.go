// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// instrumentationName identifies spans and instruments created by this package.
const instrumentationName = "github.com/jeranaias/tabchat/internal/ollama"

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeInvalidRequest
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeModelNotFound:
		return "model_not_found"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "cannot connect to Ollama, is it running?"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request to Ollama timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrModelRequired = &ClientError{Type: ErrTypeInvalidRequest, Message: "model name is required"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// StreamTimeout bounds establishing a streaming connection and receiving
	// response headers (default: 30s). The body itself is not bounded.
	StreamTimeout time.Duration

	// Logger receives malformed-record warnings and request diagnostics.
	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:       "http://127.0.0.1:11434",
		Timeout:       30 * time.Second,
		StreamTimeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
// It lists models, probes liveness and performs streamed generation.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClient()
//	if !client.IsReachable(ctx) {
//	    log.Fatal("Ollama not available")
//	}
//	res, err := client.Generate(ctx, "llama3.2", "Hello", func(s string) { fmt.Print(s) })
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	logger       *zap.Logger

	tracer    trace.Tracer
	duration  metric.Float64Histogram
	fragments metric.Int64Counter
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	for len(config.BaseURL) > 0 && config.BaseURL[len(config.BaseURL)-1] == '/' {
		config.BaseURL = config.BaseURL[:len(config.BaseURL)-1]
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = defaults.StreamTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := otel.Meter(instrumentationName)
	duration, err := meter.Float64Histogram("ollama.generate.duration",
		metric.WithDescription("Duration of streamed generation requests"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	fragments, err := meter.Int64Counter("ollama.generate.fragments",
		metric.WithDescription("Generated fragments relayed to callers"))
	if err != nil {
		logger.Warn("failed to create fragment counter", zap.Error(err))
	}

	// Local Ollama is plain HTTP on loopback; the stream client has no overall
	// timeout so long generations are not cut off.
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = config.StreamTimeout

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		streamClient: &http.Client{Transport: streamTransport},
		logger:       logger.Named("ollama"),
		tracer:       otel.Tracer(instrumentationName),
		duration:     duration,
		fragments:    fragments,
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	return nil
}

// IsReachable is a best-effort liveness probe. Every failure maps to false.
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.CheckRunning(ctx)
	if err != nil {
		c.logger.Debug("ollama unreachable", zap.String("url", c.config.BaseURL), zap.Error(err))
	}
	return err == nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves the descriptors of all installed models. It never
// retries.
func (c *Client) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	infos, err := c.ListModelInfo(ctx)
	if err != nil {
		return nil, err
	}
	models := make([]ModelDescriptor, 0, len(infos))
	for _, info := range infos {
		models = append(models, info.Descriptor())
	}
	return models, nil
}

// ListModelInfo retrieves the full /api/tags catalog.
func (c *Client) ListModelInfo(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp, "failed to list models")
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode model list", Cause: err}
	}

	return result.Models, nil
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateStream issues a streaming generation request and returns the
// response as a Stream. The caller must Close the stream.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string) (*Stream, error) {
	if model == "" {
		return nil, ErrModelRequired
	}

	body, err := json.Marshal(GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode == http.StatusNotFound {
		defer drainAndClose(resp.Body)
		return nil, &ClientError{Type: ErrTypeModelNotFound, Message: "model not found: " + model}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp, "generate request failed")
	}

	return NewStream(ctx, resp.Body, c.logger), nil
}

// Generate performs a streamed generation, forwarding each fragment to onChunk
// (if non-nil) before reading the next record. It stops at the first
// completion record. A stream that ends without one still succeeds with the
// text accumulated so far and Complete set to false.
func (c *Client) Generate(ctx context.Context, model, prompt string, onChunk ChunkFunc) (*GenerateResult, error) {
	ctx, span := c.tracer.Start(ctx, "ollama.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ollama.model", model),
			attribute.Int("ollama.prompt_length", len(prompt)),
		))
	defer span.End()
	start := time.Now()

	stream, err := c.GenerateStream(ctx, model, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer stream.Close()

	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				err = transportError(err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if frag.Text != "" {
			if c.fragments != nil {
				c.fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("ollama.model", model)))
			}
			if onChunk != nil {
				onChunk(frag.Text)
			}
		}
		if frag.Done {
			break
		}
	}

	result := stream.Result()
	result.Duration = time.Since(start)
	if result.Model == "" {
		result.Model = model
	}
	if !result.Complete {
		c.logger.Warn("stream ended without completion record",
			zap.String("model", result.Model),
			zap.Int("fragments", result.Fragments))
	}

	if c.duration != nil {
		c.duration.Record(ctx, result.Duration.Seconds(),
			metric.WithAttributes(
				attribute.String("ollama.model", result.Model),
				attribute.Bool("ollama.complete", result.Complete),
			))
	}
	span.SetAttributes(
		attribute.Int("ollama.fragments", result.Fragments),
		attribute.Int("ollama.skipped_records", result.Skipped),
		attribute.Bool("ollama.complete", result.Complete),
	)
	span.SetStatus(codes.Ok, "")

	return result, nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// transportError maps an http.Client failure to a ClientError.
func transportError(err error) error {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &ClientError{Type: ErrTypeConnection, Message: "request cancelled", Cause: err}
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
}

// statusError builds an error from a non-2xx response, preferring the
// server's own error message.
func statusError(resp *http.Response, prefix string) error {
	var ollamaErr OllamaError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: prefix + ": " + ollamaErr.Error,
		}
	}
	return &ClientError{
		Type:    ErrTypeInvalidResponse,
		Message: prefix + ": " + resp.Status,
	}
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeModelNotFound
	}
	return false
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	r.Close()
}
