// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the conversation history and the selected model.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the append-only conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Model is set on assistant messages.
	Model string `json:"model,omitempty"`
}

// NewMessage creates a message stamped with a fresh id and the current time.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists one conversation's history plus the selected model name.
// Implementations are safe for concurrent use.
type Store interface {
	// LoadHistory returns the messages in insertion order.
	LoadHistory(ctx context.Context) ([]Message, error)

	// AppendMessages adds messages to the end of the log.
	AppendMessages(ctx context.Context, msgs ...Message) error

	// ClearHistory removes every message.
	ClearHistory(ctx context.Context) error

	// SelectedModel returns the persisted model name, or "" if none.
	SelectedModel(ctx context.Context) (string, error)

	// SetSelectedModel persists the model name. "" clears it.
	SetSelectedModel(ctx context.Context, name string) error

	// Close releases resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// DefaultConversation is the conversation key used when none is given.
const DefaultConversation = "default"

// Open creates the store for backend rooted at dir.
func Open(backend, dir, conversation string) (Store, error) {
	if conversation == "" {
		conversation = DefaultConversation
	}
	switch strings.ToLower(backend) {
	case BackendSQLite, "":
		return OpenSQLite(dir+"/history.db", conversation)
	case BackendJSON:
		return NewFileStore(dir, conversation)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrClosed is returned by operations on a closed store.
// Use errors.Is(err, ErrClosed) to check for this error.
var ErrClosed = &StoreError{Message: "store is closed"}

// ErrInvalidMessage is returned for messages without a role.
var ErrInvalidMessage = &StoreError{Message: "invalid message"}

// StoreError represents a storage error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func validate(msgs []Message) error {
	for _, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
		}
	}
	return nil
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatHistory renders messages as a plain transcript.
func FormatHistory(msgs []Message) string {
	if len(msgs) == 0 {
		return "No messages."
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[" + m.Timestamp.Local().Format("2006-01-02 15:04") + "] ")
		sb.WriteString(string(m.Role))
		if m.Model != "" {
			sb.WriteString(" (" + m.Model + ")")
		}
		sb.WriteString(":\n")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
