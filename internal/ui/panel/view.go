// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/tabs"
	"github.com/jeranaias/tabchat/internal/ui/styles"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the panel.
func (m *Model) View() string {
	if !m.ready {
		return "Starting tabchat..."
	}

	parts := []string{m.renderHeader(), m.viewport.View()}
	if s := m.renderSuggestions(); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts,
		m.theme.InputContainer.Width(max(10, m.width-2)).Render(m.input.View()),
		m.renderStatusBar(),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderHeader() string {
	t := m.theme

	conn := t.Connected.Render("connected")
	if !m.connected {
		conn = t.Disconnected.Render("offline")
	}

	model := m.currentModel()
	if model == "" {
		model = "no model"
	}

	info := []string{model, conn}
	if m.opts.Browser {
		info = append(info, fmt.Sprintf("%d tabs", len(m.editor.Snapshot())))
	} else {
		info = append(info, t.Disconnected.Render("no browser"))
	}
	if m.includePage {
		info = append(info, "page")
	}

	line := t.HeaderTitle.Render("tabchat") + " " + t.HeaderInfo.Render(strings.Join(info, " | "))
	return t.Header.Width(m.width).Render(styles.Truncate(line, m.width))
}

// visibleSuggestions is the window of the suggestion list around the
// highlighted tab.
func (m *Model) visibleSuggestions() []tabs.Tab {
	if !m.editor.Open() {
		return nil
	}
	all := m.editor.Suggestions()
	if len(all) <= maxSuggestions {
		return all
	}
	start := m.editor.HighlightIndex() - maxSuggestions + 1
	if start < 0 {
		start = 0
	}
	return all[start : start+maxSuggestions]
}

func (m *Model) renderSuggestions() string {
	visible := m.visibleSuggestions()
	if len(visible) == 0 {
		return ""
	}
	t := m.theme
	highlighted, _ := m.editor.Highlighted()
	width := max(10, m.width-6)

	lines := make([]string, len(visible))
	for i, tab := range visible {
		title := styles.Truncate(tab.Title, width/2)
		url := styles.Truncate(tab.URL, width-lipgloss.Width(title)-2)
		if tab.ID == highlighted.ID {
			lines[i] = t.SuggestionSelected.Render(title) + "  " + t.SuggestionURL.Render(url)
		} else {
			lines[i] = t.SuggestionItem.Render(title) + "  " + t.SuggestionURL.Render(url)
		}
	}
	return t.SuggestionBox.Width(max(10, m.width-2)).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderStatusBar() string {
	t := m.theme
	var text string
	switch {
	case m.Busy():
		text = m.spinner.View() + " Answering..."
	case m.notice != "":
		text = m.notice
	default:
		keys := [][2]string{{"enter", "send"}, {"@", "mention"}, {"^p", "page"}, {"^n", "model"}, {"^r", "tabs"}, {"^l", "clear"}, {"^c", "quit"}}
		if styles.GetLayoutMode(m.width) == styles.LayoutNarrow {
			keys = keys[:3]
		}
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = t.ShortcutKey.Render(k[0]) + " " + t.ShortcutDesc.Render(k[1])
		}
		text = strings.Join(parts, "  ")
	}
	return t.StatusBar.Width(m.width).Render(text)
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m *Model) renderEntries() string {
	if len(m.entries) == 0 {
		return m.theme.Dim.Render("Ask a question. Mention a tab with @ to ground the answer in it.")
	}
	blocks := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		blocks = append(blocks, m.renderEntry(e))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderEntry(e entry) string {
	t := m.theme
	width := m.theme.ContentWidth()

	switch e.kind {
	case entryUser:
		return t.UserLabel.Render("You") + "\n" +
			t.UserMessage.Width(width).Render(m.renderMentions(e.text))

	case entryError:
		return t.ErrorMessage.Width(width).Render(e.text)
	}

	label := e.model
	if label == "" {
		label = "Assistant"
	}
	body := e.text
	switch {
	case e.pending && body == "":
		body = t.Dim.Render("...")
	case !e.pending && m.renderer != nil:
		if out, err := m.renderer.Render(body); err == nil {
			body = strings.Trim(out, "\n")
		}
	}

	var sb strings.Builder
	sb.WriteString(t.AssistantLabel.Render(label))
	sb.WriteString("\n")
	sb.WriteString(t.AssistantMessage.Width(width).Render(body))
	if len(e.sources) > 0 {
		titles := make([]string, len(e.sources))
		for i, src := range e.sources {
			titles[i] = src.Title
			if src.Placeholder {
				titles[i] += " (unavailable)"
			}
		}
		sb.WriteString("\n")
		sb.WriteString(t.Sources.Render("Sources: " + strings.Join(titles, ", ")))
	}
	if !e.pending && !e.complete {
		sb.WriteString("\n")
		sb.WriteString(styles.RenderWarning("The model stopped early; the answer may be incomplete."))
	}
	return sb.String()
}

// renderMentions styles the @"Title" references in wire text.
func (m *Model) renderMentions(text string) string {
	var sb strings.Builder
	for _, seg := range mention.Parse(text) {
		if seg.Kind == mention.Reference {
			sb.WriteString(m.theme.Mention.Render("@" + seg.Text))
			continue
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}
