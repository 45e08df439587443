// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/tabchat/internal/util"
)

// storedHistory is the on-disk document for one conversation.
type storedHistory struct {
	Conversation string    `json:"conversation"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `json:"messages"`
}

// storedPreferences is the on-disk preferences document.
type storedPreferences struct {
	SelectedModel string `json:"selected_model,omitempty"`
}

// FileStore keeps each conversation in its own JSON file and preferences in
// preferences.json, all under BaseDir.
type FileStore struct {
	// BaseDir is the directory holding the JSON documents.
	BaseDir string

	// Conversation selects the history file.
	Conversation string

	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a store under baseDir.
func NewFileStore(baseDir, conversation string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if conversation == "" {
		conversation = DefaultConversation
	}
	return &FileStore{BaseDir: baseDir, Conversation: conversation}, nil
}

// LoadHistory implements Store.
func (s *FileStore) LoadHistory(ctx context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	doc, err := s.readHistory()
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

// AppendMessages implements Store.
func (s *FileStore) AppendMessages(ctx context.Context, msgs ...Message) error {
	if err := validate(msgs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc, err := s.readHistory()
	if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, msgs...)
	return s.writeHistory(doc)
}

// ClearHistory implements Store.
func (s *FileStore) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := os.Remove(s.historyPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// SelectedModel implements Store.
func (s *FileStore) SelectedModel(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	var prefs storedPreferences
	if err := readJSON(s.preferencesPath(), &prefs); err != nil {
		return "", err
	}
	return prefs.SelectedModel, nil
}

// SetSelectedModel implements Store.
func (s *FileStore) SetSelectedModel(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	var prefs storedPreferences
	if err := readJSON(s.preferencesPath(), &prefs); err != nil {
		return err
	}
	prefs.SelectedModel = name
	return writeJSON(s.preferencesPath(), prefs)
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) readHistory() (*storedHistory, error) {
	doc := &storedHistory{Conversation: s.Conversation}
	if err := readJSON(s.historyPath(), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *FileStore) writeHistory(doc *storedHistory) error {
	doc.UpdatedAt = time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	return writeJSON(s.historyPath(), doc)
}

func (s *FileStore) historyPath() string {
	return filepath.Join(s.BaseDir, "history-"+util.SanitizeFilename(s.Conversation, DefaultConversation)+".json")
}

func (s *FileStore) preferencesPath() string {
	return filepath.Join(s.BaseDir, "preferences.json")
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	return util.AtomicWriteFile(path, data, 0644)
}
