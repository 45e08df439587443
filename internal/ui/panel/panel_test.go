// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/tabs"
	"github.com/jeranaias/tabchat/internal/tabs/tabstest"
)

// =============================================================================
// FIXTURES
// =============================================================================

type fakeRelay struct {
	mu        sync.Mutex
	models    []ollama.ModelDescriptor
	fragments []string
	genErr    error
	prompts   []string
}

func (r *fakeRelay) ListModels(ctx context.Context) ([]ollama.ModelDescriptor, error) {
	return r.models, nil
}

func (r *fakeRelay) IsReachable(ctx context.Context) bool {
	return true
}

func (r *fakeRelay) Generate(ctx context.Context, model, prompt string, onChunk ollama.ChunkFunc) (*ollama.GenerateResult, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()

	if r.genErr != nil {
		return nil, r.genErr
	}
	var sb strings.Builder
	for _, f := range r.fragments {
		sb.WriteString(f)
		if onChunk != nil {
			onChunk(f)
		}
	}
	return &ollama.GenerateResult{Text: sb.String(), Model: model, Complete: true}, nil
}

func (r *fakeRelay) lastPrompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prompts) == 0 {
		return ""
	}
	return r.prompts[len(r.prompts)-1]
}

func page(id, title, url, body string) tabstest.Page {
	return tabstest.Page{
		Tab:            tabs.Tab{ID: id, Title: title, URL: url},
		HTML:           "<html><head><title>" + title + "</title></head><body><article>" + body + "</article></body></html>",
		AgentInstalled: true,
	}
}

type fixture struct {
	m     *Model
	relay *fakeRelay
	orch  *orchestrator.Orchestrator
	store storage.Store
}

func newFixture(t *testing.T, opts Options, seed []storage.Message, pages ...tabstest.Page) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(storage.BackendJSON, t.TempDir(), storage.DefaultConversation)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if len(seed) > 0 {
		require.NoError(t, store.AppendMessages(ctx, seed...))
	}

	relay := &fakeRelay{
		models:    []ollama.ModelDescriptor{{Name: "llama3.2"}, {Name: "qwen2.5"}},
		fragments: []string{"It ", "changed."},
	}

	var source orchestrator.TabSource
	if len(pages) > 0 {
		source = tabs.NewDirectory(tabstest.New(pages...))
		opts.Browser = true
	}
	orch := orchestrator.New(relay, source, orchestrator.WithStore(store))
	require.NoError(t, orch.Start(ctx))

	opts.Theme = "dark"
	m := New(ctx, orch, opts)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return &fixture{m: m, relay: relay, orch: orch, store: store}
}

func (f *fixture) typeText(s string) {
	for _, r := range s {
		f.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func (f *fixture) press(k tea.KeyType) tea.Cmd {
	_, cmd := f.m.Update(tea.KeyMsg{Type: k})
	return cmd
}

// drain runs cmd and feeds every resulting message back into the model.
func (f *fixture) drain(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	msgs := collect(cmd)
	for _, msg := range msgs {
		f.m.Update(msg)
	}
	return msgs
}

func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

// =============================================================================
// HISTORY
// =============================================================================

func TestNew_LoadsHistory(t *testing.T) {
	now := time.Now()
	f := newFixture(t, Options{}, []storage.Message{
		{ID: "1", Role: storage.RoleUser, Text: "what is new?", Timestamp: now},
		{ID: "2", Role: storage.RoleAssistant, Text: "Version 2.", Model: "llama3.2", Timestamp: now},
	})

	require.Len(t, f.m.entries, 2)
	assert.Equal(t, entryUser, f.m.entries[0].kind)
	assert.Equal(t, entryAssistant, f.m.entries[1].kind)
	assert.Equal(t, "llama3.2", f.m.entries[1].model)
	assert.Contains(t, f.m.View(), "what is new?")
}

func TestView_BeforeResize(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	m := New(context.Background(), f.orch, Options{Theme: "dark"})
	assert.Equal(t, "Starting tabchat...", m.View())
}

func TestView_Header(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	view := f.m.View()
	assert.Contains(t, view, "tabchat")
	assert.Contains(t, view, "no browser")
}

// =============================================================================
// MENTIONS
// =============================================================================

func TestMention_SuggestAndCommit(t *testing.T) {
	f := newFixture(t, Options{}, nil,
		page("1", "Release notes", "https://example.com/notes", "Version 2 ships today."),
		page("2", "Inbox", "https://mail.example.com", "mail"),
	)
	f.drain(t, RefreshTabsCmd(context.Background(), f.orch))
	require.Len(t, f.m.editor.Snapshot(), 2)

	f.typeText("compare @rel")
	require.True(t, f.m.editor.Open())
	require.Len(t, f.m.editor.Suggestions(), 1)
	assert.Contains(t, f.m.View(), "https://example.com/notes")

	f.press(tea.KeyTab)
	assert.False(t, f.m.editor.Open())
	assert.Equal(t, `compare @"Release notes" `, f.m.input.Value())
	assert.Equal(t, len([]rune(f.m.input.Value())), f.m.input.Position())
}

func TestMention_EscapeDismisses(t *testing.T) {
	f := newFixture(t, Options{}, nil, page("1", "Release notes", "https://example.com/notes", "body"))
	f.drain(t, RefreshTabsCmd(context.Background(), f.orch))

	f.typeText("@")
	require.True(t, f.m.editor.Open())

	f.press(tea.KeyEsc)
	assert.False(t, f.m.editor.Open())
	assert.Equal(t, "@", f.m.input.Value())

	f.typeText("r")
	assert.True(t, f.m.editor.Open())
}

func TestMention_EnterCommitsInsteadOfSending(t *testing.T) {
	f := newFixture(t, Options{}, nil, page("1", "Release notes", "https://example.com/notes", "body"))
	f.drain(t, RefreshTabsCmd(context.Background(), f.orch))

	f.typeText("@Rel")
	cmd := f.press(tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Empty(t, f.m.entries)
	assert.Equal(t, `@"Release notes" `, f.m.input.Value())
}

// =============================================================================
// QUERIES
// =============================================================================

func TestSubmit_AnswersWithSources(t *testing.T) {
	f := newFixture(t, Options{}, nil, page("1", "Release notes", "https://example.com/notes", "Version 2 ships today."))
	f.drain(t, RefreshTabsCmd(context.Background(), f.orch))
	require.NoError(t, f.orch.SelectModel(context.Background(), "llama3.2"))

	f.typeText(`@"Release notes" what changed?`)
	cmd := f.press(tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, f.m.Busy())
	assert.Equal(t, "", f.m.input.Value())
	require.Len(t, f.m.entries, 2)
	assert.True(t, f.m.entries[1].pending)

	msgs := f.drain(t, cmd)
	var answered bool
	for _, msg := range msgs {
		if a, ok := msg.(AnswerMsg); ok {
			answered = true
			require.NoError(t, a.Err)
		}
	}
	require.True(t, answered)
	assert.False(t, f.m.Busy())

	got := f.m.entries[1]
	assert.Equal(t, entryAssistant, got.kind)
	assert.Equal(t, "It changed.", got.text)
	assert.True(t, got.complete)
	require.Len(t, got.sources, 1)
	assert.Equal(t, "Release notes", got.sources[0].Title)

	assert.Contains(t, f.relay.lastPrompt(), "Version 2 ships today.")
	assert.Contains(t, f.m.View(), "Sources: Release notes")
	assert.Len(t, f.orch.State().History(), 2)
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.typeText("   ")
	assert.Nil(t, f.press(tea.KeyEnter))
	assert.Empty(t, f.m.entries)
}

func TestSubmit_NoModel(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.Empty(t, f.orch.State().SelectedModel())

	f.typeText("hello")
	f.drain(t, f.press(tea.KeyEnter))

	require.Len(t, f.m.entries, 2)
	assert.Equal(t, entryError, f.m.entries[1].kind)
	assert.Contains(t, f.m.entries[1].text, "No model selected")
	assert.False(t, f.m.Busy())
}

func TestSubmit_ModelOverride(t *testing.T) {
	f := newFixture(t, Options{Model: "qwen2.5"}, nil)
	f.typeText("hello")
	f.drain(t, f.press(tea.KeyEnter))

	require.Len(t, f.m.entries, 2)
	assert.Equal(t, "qwen2.5", f.m.entries[1].model)
	assert.Equal(t, "It changed.", f.m.entries[1].text)
}

func TestSubmit_GenerateError(t *testing.T) {
	f := newFixture(t, Options{Model: "llama3.2"}, nil)
	f.relay.genErr = errors.New("boom")

	f.typeText("hello")
	f.drain(t, f.press(tea.KeyEnter))

	require.Len(t, f.m.entries, 2)
	assert.Equal(t, entryError, f.m.entries[1].kind)
	assert.Contains(t, f.m.entries[1].text, "boom")
}

func TestStreamEvent_UpdatesPendingEntry(t *testing.T) {
	f := newFixture(t, Options{Model: "llama3.2"}, nil)
	f.typeText("hello")
	require.NotNil(t, f.press(tea.KeyEnter))
	id := f.m.pendingID
	require.NotEmpty(t, id)

	f.m.Update(StreamEventMsg{Event: orchestrator.Event{
		Type:      orchestrator.EventStreamChunk,
		MessageID: id,
		Chunk:     "Partial",
		FullText:  "Partial",
	}})
	assert.Equal(t, "Partial", f.m.entries[1].text)
	assert.True(t, f.m.entries[1].pending)

	f.m.Update(StreamEventMsg{Event: orchestrator.Event{
		Type:      orchestrator.EventStreamChunk,
		MessageID: "other",
		FullText:  "ignored",
	}})
	assert.Equal(t, "Partial", f.m.entries[1].text)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no model", orchestrator.ErrNoModel, "No model selected"},
		{"in flight", orchestrator.ErrQueryInFlight, "still being written"},
		{"other", errors.New("plain failure"), "plain failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeError(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("describeError() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// SHORTCUTS
// =============================================================================

func TestShortcut_TogglePage(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.False(t, f.m.includePage)

	f.press(tea.KeyCtrlP)
	assert.True(t, f.m.includePage)
	assert.Equal(t, "Active tab included", f.m.notice)

	f.press(tea.KeyCtrlP)
	assert.False(t, f.m.includePage)
}

func TestShortcut_NextModel(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	f.drain(t, f.press(tea.KeyCtrlN))
	assert.Equal(t, "llama3.2", f.orch.State().SelectedModel())

	f.drain(t, f.press(tea.KeyCtrlN))
	assert.Equal(t, "qwen2.5", f.orch.State().SelectedModel())

	f.drain(t, f.press(tea.KeyCtrlN))
	assert.Equal(t, "llama3.2", f.orch.State().SelectedModel())

	saved, err := f.store.SelectedModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", saved)
}

func TestShortcut_ClearHistory(t *testing.T) {
	f := newFixture(t, Options{}, []storage.Message{
		{ID: "1", Role: storage.RoleUser, Text: "old", Timestamp: time.Now()},
	})
	require.Len(t, f.m.entries, 1)

	f.drain(t, f.press(tea.KeyCtrlL))
	assert.Empty(t, f.m.entries)
	assert.Empty(t, f.orch.State().History())
}

func TestShortcut_RefreshTabsWithoutBrowser(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	assert.Nil(t, f.press(tea.KeyCtrlR))
	assert.Equal(t, orchestrator.ErrNoBrowser.Error(), f.m.notice)
}

func TestShortcut_Quit(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	cmd := f.press(tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

// =============================================================================
// BRIDGE
// =============================================================================

func TestBridge_NoProgram(t *testing.T) {
	b := &bridge{}
	err := b.Notify(orchestrator.Event{Type: orchestrator.EventStreamChunk})
	assert.ErrorIs(t, err, errNoProgram)
}

func TestDetach_ClosesStreams(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.NoError(t, f.m.orch.State().OpenStream("pending"))
	f.m.bridge.attach(&tea.Program{})

	f.m.detach()

	assert.Zero(t, f.m.orch.State().GetStatus().Streams)
	err := f.m.bridge.Notify(orchestrator.Event{Type: orchestrator.EventStreamChunk})
	assert.ErrorIs(t, err, errNoProgram)
}
