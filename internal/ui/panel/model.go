// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/ui/styles"
)

// maxSuggestions is how many tabs the suggestion list shows at once.
const maxSuggestions = 6

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the panel.
type Options struct {
	// Theme is dark, light or auto.
	Theme string

	// RenderMarkdown renders answers with glamour.
	RenderMarkdown bool

	// IncludePage starts with the active tab included.
	IncludePage bool

	// Model overrides the selected model for this panel.
	Model string

	// Browser reports whether tab operations are available.
	Browser bool

	Version string
}

// =============================================================================
// CONVERSATION ENTRIES
// =============================================================================

// entryKind is who produced an entry.
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryError
)

// entry is one rendered conversation item.
type entry struct {
	kind     entryKind
	id       string
	text     string
	model    string
	sources  []orchestrator.Source
	complete bool
	pending  bool
}

func entriesFromHistory(msgs []storage.Message) []entry {
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		kind := entryUser
		if m.Role == storage.RoleAssistant {
			kind = entryAssistant
		}
		out = append(out, entry{kind: kind, id: m.ID, text: m.Text, model: m.Model, complete: true})
	}
	return out
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat panel.
type Model struct {
	ctx    context.Context
	orch   *orchestrator.Orchestrator
	opts   Options
	theme  *styles.Theme
	bridge *bridge

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	editor   *mention.Editor
	renderer *glamour.TermRenderer

	entries []entry

	// pendingID is the message id of the query in flight.
	pendingID string

	connected   bool
	includePage bool
	notice      string

	width  int
	height int
	ready  bool
}

// New creates a panel for orch. ctx bounds every operation the panel starts.
func New(ctx context.Context, orch *orchestrator.Orchestrator, opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your tabs. Type @ to mention one."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	theme := styles.NewTheme(opts.Theme)
	ti.PromptStyle = theme.InputPrompt

	sp := spinner.New()
	sp.Spinner = styles.LineSpinner.Bubbles()
	sp.Style = theme.Spinner

	editor := mention.NewEditor()
	editor.SetSnapshot(orch.State().Snapshot())

	return &Model{
		ctx:         ctx,
		orch:        orch,
		opts:        opts,
		theme:       theme,
		bridge:      &bridge{},
		input:       ti,
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		editor:      editor,
		entries:     entriesFromHistory(orch.State().History()),
		includePage: opts.IncludePage,
	}
}

// Init starts the connection probe, the catalog fetch and the first tab
// snapshot.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		CheckConnectionCmd(m.ctx, m.orch),
		ListModelsCmd(m.ctx, m.orch),
	}
	if m.opts.Browser {
		cmds = append(cmds, RefreshTabsCmd(m.ctx, m.orch))
	}
	return tea.Batch(cmds...)
}

// Busy reports whether a query is in flight.
func (m *Model) Busy() bool {
	return m.pendingID != ""
}

// currentModel is the override, or the session's selected model.
func (m *Model) currentModel() string {
	if m.opts.Model != "" {
		return m.opts.Model
	}
	return m.orch.State().SelectedModel()
}

// =============================================================================
// RUN
// =============================================================================

// Run shows the panel full screen until the user quits or ctx ends.
func Run(ctx context.Context, orch *orchestrator.Orchestrator, opts Options) error {
	m := New(ctx, orch, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.bridge.attach(p)
	defer m.detach()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	_, err := p.Run()
	return err
}

// detach stops stream delivery to the panel and destroys the stream state it
// owned. A query still running finishes and is recorded.
func (m *Model) detach() {
	m.bridge.attach(nil)
	m.orch.State().CloseAllStreams()
}
