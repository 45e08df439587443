// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the explicit per-conversation state of a chat.
package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/tabs"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrQueryInFlight is returned when a query is submitted while another one
	// in the same session has not finished.
	ErrQueryInFlight = errors.New("a query is already in progress")

	// ErrStreamOpen is returned when a stream id is reused while the stream
	// it names is still live.
	ErrStreamOpen = errors.New("a stream with this message id is already open")

	// ErrUnknownModel is returned when selecting a model that is not in the
	// current descriptor set.
	ErrUnknownModel = errors.New("model is not available")
)

// =============================================================================
// STATE
// =============================================================================

// State is the selected model, the last tab snapshot, the message history and
// the in-flight streams of one conversation. It is safe for concurrent use;
// every accessor returns a copy.
type State struct {
	mu sync.RWMutex

	id           string
	startTime    time.Time
	lastActivity time.Time

	selectedModel string
	models        []ollama.ModelDescriptor
	snapshot      []tabs.Tab
	history       []storage.Message

	inFlight bool
	streams  map[string]*StreamState
}

// New creates an empty session state.
func New() *State {
	now := time.Now()
	return &State{
		id:           generateSessionID(now),
		startTime:    now,
		lastActivity: now,
		streams:      make(map[string]*StreamState),
	}
}

// ID returns the session id.
func (s *State) ID() string {
	return s.id
}

// Touch records user activity.
func (s *State) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// =============================================================================
// MODEL SELECTION
// =============================================================================

// SelectedModel returns the selected model name, or "".
func (s *State) SelectedModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedModel
}

// Models returns the last fetched descriptor set.
func (s *State) Models() []ollama.ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ollama.ModelDescriptor(nil), s.models...)
}

// SetModels replaces the descriptor set and revalidates the selection. A
// selected name missing from models is cleared. It reports whether the
// selection survived.
func (s *State) SetModels(models []ollama.ModelDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append([]ollama.ModelDescriptor(nil), models...)
	if s.selectedModel != "" && !ollama.ContainsModel(s.models, s.selectedModel) {
		s.selectedModel = ""
	}
	return s.selectedModel != ""
}

// SelectModel sets the selected model. Once a descriptor set is known the
// name must be part of it; "" clears the selection.
func (s *State) SelectModel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" && s.models != nil && !ollama.ContainsModel(s.models, name) {
		return ErrUnknownModel
	}
	s.selectedModel = name
	return nil
}

// RestoreModel sets the selection from persisted state without validation.
// A later SetModels revalidates it.
func (s *State) RestoreModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedModel = name
}

// =============================================================================
// TAB SNAPSHOT
// =============================================================================

// Snapshot returns the last tab directory snapshot.
func (s *State) Snapshot() []tabs.Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tabs.Tab(nil), s.snapshot...)
}

// SetSnapshot replaces the tab snapshot.
func (s *State) SetSnapshot(snapshot []tabs.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append([]tabs.Tab(nil), snapshot...)
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns the conversation in insertion order.
func (s *State) History() []storage.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.Message(nil), s.history...)
}

// AppendHistory adds messages to the end of the conversation.
func (s *State) AppendHistory(msgs ...storage.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// ReplaceHistory swaps in a replayed history.
func (s *State) ReplaceHistory(msgs []storage.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]storage.Message(nil), msgs...)
}

// =============================================================================
// IN-FLIGHT GUARD
// =============================================================================

// BeginQuery claims the session for one query. It returns ErrQueryInFlight
// if another query holds it. Callers must call EndQuery when done.
func (s *State) BeginQuery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrQueryInFlight
	}
	s.inFlight = true
	s.lastActivity = time.Now()
	return nil
}

// EndQuery releases the claim taken by BeginQuery.
func (s *State) EndQuery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

// InFlight reports whether a query is running.
func (s *State) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a point-in-time view of the session.
type Status struct {
	SessionID     string        `json:"sessionId"`
	StartTime     time.Time     `json:"startTime"`
	Duration      time.Duration `json:"duration"`
	IdleTime      time.Duration `json:"idleTime"`
	SelectedModel string        `json:"selectedModel"`
	Models        int           `json:"models"`
	Tabs          int           `json:"tabs"`
	Messages      int           `json:"messages"`
	Streams       int           `json:"streams"`
	InFlight      bool          `json:"inFlight"`
}

// GetStatus returns the current session status.
func (s *State) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	return Status{
		SessionID:     s.id,
		StartTime:     s.startTime,
		Duration:      now.Sub(s.startTime),
		IdleTime:      now.Sub(s.lastActivity),
		SelectedModel: s.selectedModel,
		Models:        len(s.models),
		Tabs:          len(s.snapshot),
		Messages:      len(s.history),
		Streams:       len(s.streams),
		InFlight:      s.inFlight,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateSessionID creates a unique session ID.
func generateSessionID(t time.Time) string {
	return "sess_" + t.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
