// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, exit codes and error display for tabchat commands.
//
// STANDARDIZED PATTERN:
//   - Commands return errors, never print-and-return-nil
//   - Execute maps the error to an exit code and displays it once
//   - Known failures carry a hint for the next step

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/tabchat/internal/config"
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the model server or browser is unreachable
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError wraps invalid flags or arguments.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "model", "tab")
	ID       string // Identifier that was not found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode returns the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var validation *ValidationError
	var notFound *NotFoundError
	var cfgErrs config.ValidateErrors

	switch {
	case errors.As(err, &usage), errors.As(err, &validation):
		return ExitUsageError
	case strings.HasPrefix(err.Error(), "unknown command"):
		return ExitUsageError
	case errors.As(err, &cfgErrs):
		return ExitConfigError
	case errors.As(err, &notFound), ollama.IsModelNotFound(err), errors.Is(err, session.ErrUnknownModel):
		return ExitNotFoundError
	case errors.Is(err, orchestrator.ErrNoModel):
		return ExitUsageError
	case ollama.IsTimeout(err):
		return ExitTimeoutError
	case ollama.IsNotRunning(err), errors.Is(err, orchestrator.ErrNoBrowser):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// errorHint returns a suggested next step for known failures.
func errorHint(err error) string {
	switch {
	case ollama.IsNotRunning(err):
		return "Start Ollama with: ollama serve"
	case ollama.IsModelNotFound(err), errors.Is(err, session.ErrUnknownModel):
		return "List installed models with: tabchat models"
	case errors.Is(err, orchestrator.ErrNoModel):
		return "Select a model with: tabchat models select NAME"
	case errors.Is(err, orchestrator.ErrNoBrowser):
		return "Start the browser with --remote-debugging-port=9222"
	case errors.Is(err, orchestrator.ErrQueryInFlight):
		return "Wait for the current answer to finish"
	}
	var cfgErrs config.ValidateErrors
	if errors.As(err, &cfgErrs) {
		return "Check the file with: tabchat config show"
	}
	return ""
}

// DisplayError writes err and a hint, if any, to w.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "Error:"), err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "%s\n", RenderConditional(DimStyle, hint))
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		fmt.Fprintf(w, "%s\n", RenderConditional(DimStyle, "Run 'tabchat --help' for usage."))
	}
}
