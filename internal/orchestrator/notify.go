// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"

	"go.uber.org/zap"
)

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventType names a streaming notification.
type EventType string

const (
	EventStreamChunk    EventType = "streamChunk"
	EventStreamComplete EventType = "streamComplete"
	EventStreamError    EventType = "streamError"
)

// Event is one streaming notification. Which fields are set depends on Type:
// streamChunk carries Chunk and FullText, streamComplete carries Text and
// Model, streamError carries Error.
type Event struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`

	Chunk    string `json:"chunk,omitempty"`
	FullText string `json:"fullText,omitempty"`

	Text     string `json:"text,omitempty"`
	Model    string `json:"model,omitempty"`
	Complete bool   `json:"complete,omitempty"`

	Error string `json:"error,omitempty"`
}

// Notifier delivers stream events to a display surface.
type Notifier interface {
	Notify(Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ev Event) error {
	return f(ev)
}

// HandleStreamingQuery runs q like HandleQuery, sending a streamChunk event
// per fragment and then exactly one streamComplete or streamError event.
// Send failures are logged and swallowed; they never stop the generation.
func (o *Orchestrator) HandleStreamingQuery(ctx context.Context, q Query, messageID string, n Notifier) (*Answer, error) {
	send := func(ev Event) {
		if n == nil {
			return
		}
		ev.MessageID = messageID
		if err := n.Notify(ev); err != nil {
			o.logger.Debug("stream notification dropped",
				zap.String("message_id", messageID),
				zap.String("event", string(ev.Type)),
				zap.Error(err))
		}
	}

	answer, err := o.runStream(ctx, q, messageID, func(chunk, full string) {
		send(Event{Type: EventStreamChunk, Chunk: chunk, FullText: full})
	})
	if err != nil {
		send(Event{Type: EventStreamError, Error: err.Error()})
		return nil, err
	}

	send(Event{
		Type:     EventStreamComplete,
		Text:     answer.Text,
		Model:    answer.Model,
		Complete: answer.Complete,
	})
	return answer, nil
}

// runStream claims the session before opening the stream state, so a
// rejected request never touches the stream of the query holding the claim.
func (o *Orchestrator) runStream(ctx context.Context, q Query, messageID string, onChunk func(chunk, full string)) (*Answer, error) {
	if q.Model == "" {
		return nil, ErrNoModel
	}
	if err := o.state.BeginQuery(); err != nil {
		return nil, err
	}
	defer o.state.EndQuery()

	if err := o.state.OpenStream(messageID); err != nil {
		return nil, err
	}
	defer o.state.CloseStream(messageID)

	return o.generate(ctx, q, func(chunk string) {
		onChunk(chunk, o.state.AppendStream(messageID, chunk))
	})
}
