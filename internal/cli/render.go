// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/tabchat/internal/orchestrator"
)

// =============================================================================
// ANSWER RENDERING
// =============================================================================

// renderMarkdown renders an answer for a terminal with glamour. The text is
// returned unchanged when w is not a terminal, rendering is disabled, or the
// renderer fails.
func renderMarkdown(w io.Writer, text string, enabled bool) string {
	if !enabled || !isTerminalWriter(w) {
		return text
	}
	width := GetTerminalWidth()
	if width > 100 {
		width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return text
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// printSources lists the tabs an answer was grounded in.
func printSources(w io.Writer, answer *orchestrator.Answer) {
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, RenderConditional(DimStyle, "Sources:"))
	for _, src := range answer.Sources {
		line := fmt.Sprintf("  %s  %s", src.Title, src.URL)
		switch {
		case src.Placeholder:
			line += "  (content unavailable)"
		case src.Truncated:
			line += "  (truncated)"
		}
		fmt.Fprintln(w, RenderConditional(DimStyle, line))
	}
}

// printIncomplete warns that the model stream ended early.
func printIncomplete(w io.Writer, answer *orchestrator.Answer) {
	if answer.Complete {
		return
	}
	fmt.Fprintln(w, RenderConditional(WarningStyle, "The model stopped before finishing; the answer may be incomplete."))
}
