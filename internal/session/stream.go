// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"time"
)

// StreamState accumulates the text of one in-flight generation.
type StreamState struct {
	MessageID string
	StartedAt time.Time

	text      strings.Builder
	fragments int
}

// Text returns the accumulated text.
func (st *StreamState) Text() string {
	return st.text.String()
}

// Fragments returns the number of fragments received.
func (st *StreamState) Fragments() int {
	return st.fragments
}

// OpenStream registers a stream for messageID. It returns ErrStreamOpen if
// a stream with that id is still live; the live stream is left untouched.
func (s *State) OpenStream(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[messageID]; ok {
		return ErrStreamOpen
	}
	s.streams[messageID] = &StreamState{MessageID: messageID, StartedAt: time.Now()}
	return nil
}

// AppendStream adds chunk to the stream and returns the full text so far.
// Unknown ids yield just the chunk.
func (s *State) AppendStream(messageID, chunk string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[messageID]
	if !ok {
		return chunk
	}
	st.text.WriteString(chunk)
	st.fragments++
	return st.text.String()
}

// StreamText returns the accumulated text of a stream.
func (s *State) StreamText(messageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[messageID]
	if !ok {
		return "", false
	}
	return st.Text(), true
}

// CloseStream destroys the stream state for messageID.
func (s *State) CloseStream(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, messageID)
}

// CloseStreams destroys the streams owned by a display surface that went
// away. Their generations keep running; later fragments are not accumulated.
func (s *State) CloseStreams(messageIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range messageIDs {
		delete(s.streams, id)
	}
}

// CloseAllStreams destroys every stream, as when the owning UI closes.
func (s *State) CloseAllStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string]*StreamState)
}
