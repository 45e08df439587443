// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles a message and returns the next command.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			m.layout()
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.syncEditor()
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		if m.Busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case StreamEventMsg:
		m.handleStreamEvent(msg.Event)

	case AnswerMsg:
		m.handleAnswer(msg)

	case ConnectionMsg:
		m.connected = msg.Connected

	case ModelsMsg:
		if msg.Err != nil {
			m.connected = false
			m.notice = "Model catalog unavailable: " + msg.Err.Error()
		} else {
			m.connected = true
			if len(msg.Models) == 0 {
				m.notice = "No models installed. Pull one with: ollama pull llama3.2"
			}
		}

	case ModelSelectedMsg:
		if msg.Err != nil {
			m.notice = msg.Err.Error()
		} else {
			m.notice = "Model: " + msg.Name
		}

	case TabsMsg:
		if msg.Err != nil {
			m.notice = "Tabs unavailable: " + msg.Err.Error()
		} else {
			m.editor.SetSnapshot(msg.Tabs)
			m.notice = fmt.Sprintf("%d tabs", len(msg.Tabs))
		}

	case HistoryClearedMsg:
		if msg.Err != nil {
			m.notice = "Clear failed: " + msg.Err.Error()
		} else {
			m.entries = nil
			m.notice = "Conversation cleared"
			m.refreshViewport()
		}
	}

	m.layout()
	return m, tea.Batch(cmds...)
}

// handleKey processes panel shortcuts and suggestion navigation. It reports
// false for keys that belong to the text input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.editor.Open() {
		if key, ok := editorKey(msg); ok && m.editor.HandleKey(key) {
			m.applyEditor()
			return nil, true
		}
	}

	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true
	case "enter":
		return m.submit(), true
	case "ctrl+r":
		if !m.opts.Browser {
			m.notice = orchestrator.ErrNoBrowser.Error()
			return nil, true
		}
		m.notice = "Refreshing tabs..."
		return RefreshTabsCmd(m.ctx, m.orch), true
	case "ctrl+p":
		m.includePage = !m.includePage
		if m.includePage {
			m.notice = "Active tab included"
		} else {
			m.notice = "Active tab not included"
		}
		return nil, true
	case "ctrl+n":
		return m.nextModel(), true
	case "ctrl+l":
		if m.Busy() {
			m.notice = "Wait for the current answer to finish"
			return nil, true
		}
		return ClearHistoryCmd(m.ctx, m.orch), true
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd, true
	}
	return nil, false
}

// editorKey maps a key press to a suggestion list key.
func editorKey(msg tea.KeyMsg) (mention.Key, bool) {
	switch msg.Type {
	case tea.KeyUp:
		return mention.KeyUp, true
	case tea.KeyDown:
		return mention.KeyDown, true
	case tea.KeyTab:
		return mention.KeyTab, true
	case tea.KeyEnter:
		return mention.KeyEnter, true
	case tea.KeyEsc:
		return mention.KeyEscape, true
	}
	return 0, false
}

// syncEditor copies the input into the editor when it changed. Unchanged
// input leaves a dismissed suggestion list closed.
func (m *Model) syncEditor() {
	value, pos := m.input.Value(), m.input.Position()
	if value == m.editor.Text() && pos == m.editor.Cursor() {
		return
	}
	m.editor.SetText(value, pos)
}

// applyEditor copies a committed reference back into the input.
func (m *Model) applyEditor() {
	if m.input.Value() != m.editor.Text() {
		m.input.SetValue(m.editor.Text())
	}
	m.input.SetCursor(m.editor.Cursor())
}

// =============================================================================
// QUERIES
// =============================================================================

func (m *Model) submit() tea.Cmd {
	m.syncEditor()
	if strings.TrimSpace(m.editor.Text()) == "" {
		return nil
	}
	if m.Busy() {
		m.notice = "Wait for the current answer to finish"
		return nil
	}

	text, mentioned := m.editor.Submit()
	m.input.Reset()

	id := uuid.NewString()
	q := orchestrator.Query{
		Text:               text,
		Model:              m.currentModel(),
		IncludePageContent: m.includePage,
		MentionedTabs:      mentioned,
	}
	m.entries = append(m.entries,
		entry{kind: entryUser, text: text, complete: true},
		entry{kind: entryAssistant, id: id, model: q.Model, pending: true},
	)
	m.pendingID = id
	m.notice = ""
	m.refreshViewport()
	return tea.Batch(QueryCmd(m.ctx, m.orch, q, id, m.bridge), m.spinner.Tick)
}

func (m *Model) handleStreamEvent(ev orchestrator.Event) {
	if ev.Type != orchestrator.EventStreamChunk {
		return
	}
	if e := m.entry(ev.MessageID); e != nil && e.pending {
		e.text = ev.FullText
		m.refreshViewport()
	}
}

func (m *Model) handleAnswer(msg AnswerMsg) {
	if msg.MessageID == m.pendingID {
		m.pendingID = ""
	}
	e := m.entry(msg.MessageID)
	if e == nil {
		return
	}
	e.pending = false

	if msg.Err != nil {
		e.kind = entryError
		e.text = describeError(msg.Err)
		if ollama.IsNotRunning(msg.Err) {
			m.connected = false
		}
	} else {
		e.text = msg.Answer.Text
		e.model = msg.Answer.Model
		e.sources = msg.Answer.Sources
		e.complete = msg.Answer.Complete
		m.connected = true
	}
	m.refreshViewport()
}

// describeError turns a query failure into a message with the next step.
func describeError(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrNoModel):
		return "No model selected. Press ctrl+n to pick one."
	case errors.Is(err, orchestrator.ErrQueryInFlight):
		return "Another answer is still being written."
	case ollama.IsNotRunning(err):
		return "Ollama is not running. Start it with: ollama serve"
	case ollama.IsModelNotFound(err):
		return "The model is not installed: " + err.Error()
	}
	return err.Error()
}

func (m *Model) entry(id string) *entry {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].id == id {
			return &m.entries[i]
		}
	}
	return nil
}

// nextModel selects the catalog entry after the current model.
func (m *Model) nextModel() tea.Cmd {
	models := m.orch.State().Models()
	if len(models) == 0 {
		m.notice = "No models available"
		return nil
	}
	current := m.currentModel()
	next := models[0].Name
	for i, d := range models {
		if d.Name == current {
			next = models[(i+1)%len(models)].Name
			break
		}
	}
	m.opts.Model = ""
	return SelectModelCmd(m.ctx, m.orch, next)
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.input.Width = max(10, width-8)
	m.viewport.Width = width

	m.renderer = nil
	if m.opts.RenderMarkdown {
		style := "dark"
		if !m.theme.IsDark {
			style = "light"
		}
		if r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(m.theme.ContentWidth()),
		); err == nil {
			m.renderer = r
		}
	}
	m.ready = true
	m.layout()
	m.refreshViewport()
}

// layout gives the viewport what the header, suggestions, input and status
// bar leave over.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	chrome := 1 + 3 + 1 // header, bordered input, status bar
	if n := len(m.visibleSuggestions()); n > 0 {
		chrome += n + 2
	}
	m.viewport.Height = max(1, m.height-chrome)
}

func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderEntries())
	if atBottom || m.Busy() {
		m.viewport.GotoBottom()
	}
}
