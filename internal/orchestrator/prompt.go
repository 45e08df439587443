// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"strings"

	"github.com/jeranaias/tabchat/internal/extract"
)

// =============================================================================
// PROMPT COMPOSITION
// =============================================================================

const (
	contextPreamble = "Use the following content from the user's open browser tabs to answer the question."
	questionPrefix  = "Question: "
)

// TabBlock renders one tab's extracted content as a prompt block.
func TabBlock(res extract.Result) string {
	var sb strings.Builder
	sb.WriteString("=== Tab: ")
	sb.WriteString(res.Title)
	sb.WriteString(" ===\nURL: ")
	sb.WriteString(res.URL)
	sb.WriteString("\nContent:\n")
	sb.WriteString(res.Content)
	sb.WriteString("\n")
	return sb.String()
}

// ComposePrompt builds the prompt for question from the given tab blocks,
// in order. With no blocks and no note the prompt is the question itself.
func ComposePrompt(question string, blocks []extract.Result, note string) string {
	if len(blocks) == 0 && note == "" {
		return question
	}

	var sb strings.Builder
	if len(blocks) > 0 {
		sb.WriteString(contextPreamble)
		sb.WriteString("\n\n")
		for _, b := range blocks {
			sb.WriteString(TabBlock(b))
			sb.WriteString("\n")
		}
	}
	if note != "" {
		sb.WriteString("Note: ")
		sb.WriteString(note)
		sb.WriteString("\n\n")
	}
	sb.WriteString(questionPrefix)
	sb.WriteString(question)
	return sb.String()
}

// unavailableNote explains a failed active-tab extraction.
func unavailableNote(res extract.Result) string {
	reason := res.Error
	if reason == "" {
		reason = strings.TrimSuffix(strings.TrimPrefix(res.Content, "[Content unavailable: "), "]")
	}
	if reason == "" {
		return "The content of the current page was unavailable."
	}
	return "The content of the current page was unavailable (" + reason + ")."
}
