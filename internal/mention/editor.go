// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mention

import (
	"github.com/jeranaias/tabchat/internal/tabs"
)

// =============================================================================
// KEYS
// =============================================================================

// Key is an input event the autocomplete list may consume.
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyTab
	KeyEnter
	KeyEscape
)

// =============================================================================
// EDITOR
// =============================================================================

// Editor tracks a query input and its @mention autocomplete state. Committed
// references are stored in the text as @"Title" tokens.
//
// Editor is not safe for concurrent use.
type Editor struct {
	text     []rune
	cursor   int
	snapshot []tabs.Tab

	active      Active
	suggestions []tabs.Tab
	highlight   int
	open        bool
	dismissed   bool
}

// NewEditor creates an empty editor.
func NewEditor() *Editor {
	return &Editor{}
}

// Text returns the current input text.
func (e *Editor) Text() string {
	return string(e.text)
}

// Cursor returns the cursor as a rune offset.
func (e *Editor) Cursor() int {
	return e.cursor
}

// SetSnapshot replaces the tab snapshot used for suggestions.
func (e *Editor) SetSnapshot(snapshot []tabs.Tab) {
	e.snapshot = snapshot
	e.refresh()
}

// Snapshot returns the tab snapshot in use.
func (e *Editor) Snapshot() []tabs.Tab {
	return e.snapshot
}

// SetText replaces the text and cursor, re-running detection.
func (e *Editor) SetText(text string, cursor int) {
	e.text = []rune(text)
	e.setCursor(cursor)
	e.dismissed = false
	e.refresh()
}

// Insert types s at the cursor.
func (e *Editor) Insert(s string) {
	ins := []rune(s)
	text := make([]rune, 0, len(e.text)+len(ins))
	text = append(text, e.text[:e.cursor]...)
	text = append(text, ins...)
	text = append(text, e.text[e.cursor:]...)
	e.text = text
	e.cursor += len(ins)
	e.dismissed = false
	e.refresh()
}

// Backspace deletes the rune before the cursor.
func (e *Editor) Backspace() {
	if e.cursor == 0 {
		return
	}
	e.text = append(e.text[:e.cursor-1], e.text[e.cursor:]...)
	e.cursor--
	e.dismissed = false
	e.refresh()
}

// MoveCursor places the cursor at pos (clamped).
func (e *Editor) MoveCursor(pos int) {
	e.setCursor(pos)
	e.dismissed = false
	e.refresh()
}

// Reset clears text and autocomplete state. The snapshot is kept.
func (e *Editor) Reset() {
	e.text = nil
	e.cursor = 0
	e.dismissed = false
	e.close()
}

// =============================================================================
// AUTOCOMPLETE STATE
// =============================================================================

// Open reports whether the suggestion list is showing.
func (e *Editor) Open() bool {
	return e.open
}

// Active returns the mention being typed, if any.
func (e *Editor) Active() (Active, bool) {
	return e.active, e.open
}

// Suggestions returns the current suggestion list.
func (e *Editor) Suggestions() []tabs.Tab {
	if !e.open {
		return nil
	}
	return e.suggestions
}

// HighlightIndex returns the highlighted suggestion index.
func (e *Editor) HighlightIndex() int {
	return e.highlight
}

// Highlighted returns the highlighted suggestion.
func (e *Editor) Highlighted() (tabs.Tab, bool) {
	if !e.open || len(e.suggestions) == 0 {
		return tabs.Tab{}, false
	}
	return e.suggestions[e.highlight], true
}

// Next moves the highlight down, wrapping to the top.
func (e *Editor) Next() {
	if !e.open || len(e.suggestions) == 0 {
		return
	}
	e.highlight = (e.highlight + 1) % len(e.suggestions)
}

// Prev moves the highlight up, wrapping to the bottom.
func (e *Editor) Prev() {
	if !e.open || len(e.suggestions) == 0 {
		return
	}
	e.highlight = (e.highlight - 1 + len(e.suggestions)) % len(e.suggestions)
}

// Dismiss hides the list without touching the text. It stays hidden until the
// text or cursor changes.
func (e *Editor) Dismiss() {
	e.dismissed = true
	e.close()
}

// Commit replaces the span from the triggering '@' through the cursor with a
// reference to tab followed by one space, and moves the cursor after the
// space. It does nothing when no mention is active.
func (e *Editor) Commit(tab tabs.Tab) bool {
	if !e.open {
		return false
	}
	insert := []rune(Token(tab.Title) + " ")

	text := make([]rune, 0, len(e.text)-(e.active.End-e.active.Start)+len(insert))
	text = append(text, e.text[:e.active.Start]...)
	text = append(text, insert...)
	text = append(text, e.text[e.active.End:]...)

	e.text = text
	e.cursor = e.active.Start + len(insert)
	e.close()
	e.refresh()
	return true
}

// CommitHighlighted commits the highlighted suggestion.
func (e *Editor) CommitHighlighted() bool {
	tab, ok := e.Highlighted()
	if !ok {
		return false
	}
	return e.Commit(tab)
}

// HandleKey applies a navigation or commit key. It returns true when the key
// was consumed by the suggestion list; false means the caller should handle
// it (for example Enter submitting the query).
func (e *Editor) HandleKey(key Key) bool {
	if !e.open {
		return false
	}
	switch key {
	case KeyDown:
		e.Next()
	case KeyUp:
		e.Prev()
	case KeyTab, KeyEnter:
		return e.CommitHighlighted()
	case KeyEscape:
		e.Dismiss()
	default:
		return false
	}
	return true
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit resolves the input against the snapshot, returns the wire text and
// the mentioned tabs, and clears the editor.
func (e *Editor) Submit() (string, []tabs.Tab) {
	query, mentioned := Resolve(e.Text(), e.snapshot)
	e.Reset()
	return query, mentioned
}

func (e *Editor) setCursor(pos int) {
	switch {
	case pos < 0:
		e.cursor = 0
	case pos > len(e.text):
		e.cursor = len(e.text)
	default:
		e.cursor = pos
	}
}

// refresh re-runs detection and filtering after any change.
func (e *Editor) refresh() {
	if e.dismissed {
		e.close()
		return
	}
	active, ok := Detect(string(e.text), e.cursor)
	if !ok {
		e.close()
		return
	}
	suggestions := Filter(e.snapshot, active.Term)
	if len(suggestions) == 0 {
		e.close()
		e.active = active
		return
	}
	if !e.open || active.Term != e.active.Term || e.highlight >= len(suggestions) {
		e.highlight = 0
	}
	e.active = active
	e.suggestions = suggestions
	e.open = true
}

func (e *Editor) close() {
	e.open = false
	e.suggestions = nil
	e.highlight = 0
}
