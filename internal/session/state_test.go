// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/tabs"
)

func TestNew(t *testing.T) {
	st := New()
	if !strings.HasPrefix(st.ID(), "sess_") {
		t.Errorf("ID() = %q, want sess_ prefix", st.ID())
	}
	if New().ID() == st.ID() {
		t.Error("session ids should be unique")
	}
	if st.SelectedModel() != "" {
		t.Errorf("SelectedModel() = %q, want empty", st.SelectedModel())
	}
}

func TestSetModels_Revalidates(t *testing.T) {
	tests := []struct {
		name   string
		saved  string
		models []ollama.ModelDescriptor
		want   string
	}{
		{"present", "llama3", []ollama.ModelDescriptor{{Name: "mistral"}, {Name: "llama3"}}, "llama3"},
		{"absent", "llama3", []ollama.ModelDescriptor{{Name: "mistral"}}, ""},
		{"empty set", "llama3", nil, ""},
		{"nothing saved", "", []ollama.ModelDescriptor{{Name: "mistral"}}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := New()
			st.RestoreModel(tc.saved)
			kept := st.SetModels(tc.models)
			if got := st.SelectedModel(); got != tc.want {
				t.Errorf("SelectedModel() = %q, want %q", got, tc.want)
			}
			if kept != (tc.want != "") {
				t.Errorf("SetModels() = %v, want %v", kept, tc.want != "")
			}
		})
	}
}

func TestSelectModel(t *testing.T) {
	st := New()
	if err := st.SelectModel("anything"); err != nil {
		t.Fatalf("SelectModel before catalog: %v", err)
	}

	st.SetModels([]ollama.ModelDescriptor{{Name: "llama3"}})
	if err := st.SelectModel("gone"); err != ErrUnknownModel {
		t.Errorf("SelectModel(gone) = %v, want ErrUnknownModel", err)
	}
	if err := st.SelectModel("llama3"); err != nil {
		t.Errorf("SelectModel(llama3) = %v", err)
	}
	if err := st.SelectModel(""); err != nil || st.SelectedModel() != "" {
		t.Errorf("SelectModel(\"\") should clear the selection")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	st := New()
	st.SetSnapshot([]tabs.Tab{{ID: "1", Title: "A"}})
	snap := st.Snapshot()
	snap[0].Title = "mutated"
	if st.Snapshot()[0].Title != "A" {
		t.Error("Snapshot() leaked internal slice")
	}

	st.AppendHistory(storage.NewMessage(storage.RoleUser, "hi"))
	h := st.History()
	h[0].Text = "mutated"
	if st.History()[0].Text != "hi" {
		t.Error("History() leaked internal slice")
	}
}

func TestBeginQuery_RejectsSecond(t *testing.T) {
	st := New()
	if err := st.BeginQuery(); err != nil {
		t.Fatalf("first BeginQuery: %v", err)
	}
	if err := st.BeginQuery(); err != ErrQueryInFlight {
		t.Errorf("second BeginQuery = %v, want ErrQueryInFlight", err)
	}
	st.EndQuery()
	if err := st.BeginQuery(); err != nil {
		t.Errorf("BeginQuery after EndQuery: %v", err)
	}
}

func TestBeginQuery_Concurrent(t *testing.T) {
	st := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.BeginQuery() == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 1 {
		t.Errorf("granted %d claims, want 1", granted)
	}
}

func TestStreams(t *testing.T) {
	st := New()
	if err := st.OpenStream("m1"); err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if got := st.AppendStream("m1", "Hel"); got != "Hel" {
		t.Errorf("AppendStream = %q, want Hel", got)
	}
	if got := st.AppendStream("m1", "lo"); got != "Hello" {
		t.Errorf("AppendStream = %q, want Hello", got)
	}
	if got := st.AppendStream("unknown", "x"); got != "x" {
		t.Errorf("AppendStream(unknown) = %q, want x", got)
	}

	text, ok := st.StreamText("m1")
	if !ok || text != "Hello" {
		t.Errorf("StreamText = %q, %v", text, ok)
	}
	if n := st.GetStatus().Streams; n != 1 {
		t.Errorf("Streams = %d, want 1", n)
	}

	st.CloseStream("m1")
	if _, ok := st.StreamText("m1"); ok {
		t.Error("stream should be destroyed after CloseStream")
	}

	_ = st.OpenStream("a")
	_ = st.OpenStream("b")
	_ = st.OpenStream("c")
	st.CloseStreams("a", "missing")
	if n := st.GetStatus().Streams; n != 2 {
		t.Errorf("Streams after CloseStreams = %d, want 2", n)
	}
	st.CloseAllStreams()
	if n := st.GetStatus().Streams; n != 0 {
		t.Errorf("Streams after CloseAllStreams = %d", n)
	}
}

func TestOpenStream_RejectsLiveID(t *testing.T) {
	st := New()
	if err := st.OpenStream("m1"); err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	st.AppendStream("m1", "a")

	if err := st.OpenStream("m1"); !errors.Is(err, ErrStreamOpen) {
		t.Errorf("OpenStream(live id) = %v, want ErrStreamOpen", err)
	}
	if got := st.AppendStream("m1", "b"); got != "ab" {
		t.Errorf("AppendStream after rejected reopen = %q, want ab", got)
	}

	st.CloseStream("m1")
	if err := st.OpenStream("m1"); err != nil {
		t.Errorf("OpenStream after close = %v, want nil", err)
	}
}

func TestGetStatus(t *testing.T) {
	st := New()
	st.SetModels([]ollama.ModelDescriptor{{Name: "a"}, {Name: "b"}})
	st.SetSnapshot(make([]tabs.Tab, 3))
	st.AppendHistory(storage.NewMessage(storage.RoleUser, "x"))

	s := st.GetStatus()
	if s.Models != 2 || s.Tabs != 3 || s.Messages != 1 {
		t.Errorf("GetStatus() = %+v", s)
	}
	if s.SessionID != st.ID() {
		t.Errorf("SessionID = %q, want %q", s.SessionID, st.ID())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
