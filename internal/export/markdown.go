// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/storage"
)

// ErrEmpty is returned when exporting a transcript without messages.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	if len(t.Messages) == 0 {
		return nil, ErrEmpty
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "conversation: %s\n", escapeYAML(t.Conversation))
		if len(t.Models) > 0 {
			fmt.Fprintf(&sb, "models: [%s]\n", strings.Join(lo.Map(t.Models, func(m string, _ int) string { return escapeYAML(m) }), ", "))
		}
		fmt.Fprintf(&sb, "started: %s\n", t.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
		sb.WriteString("generator: tabchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Conversation))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		if len(t.Models) > 0 {
			fmt.Fprintf(&sb, "- **Models**: %s\n", strings.Join(t.Models, ", "))
		}
		fmt.Fprintf(&sb, "- **Started**: %s\n", formatTimestamp(t.StartedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(t.UpdatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(t.Messages))
		if len(t.Tabs) > 0 {
			fmt.Fprintf(&sb, "- **Tabs**: %s\n", strings.Join(lo.Map(t.Tabs, func(title string, _ int) string { return escapeMarkdown(title) }), ", "))
		}
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")

	for i, msg := range t.Messages {
		label := e.formatRoleLabel(msg)
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(e.formatMessageContent(msg))
		sb.WriteString("\n\n")

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from tabchat on %s*\n", t.ExportedAt.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) formatRoleLabel(msg storage.Message) string {
	switch msg.Role {
	case storage.RoleUser:
		return "[User]"
	case storage.RoleAssistant:
		if msg.Model != "" {
			return "[Assistant] " + msg.Model
		}
		return "[Assistant]"
	default:
		return "Unknown"
	}
}

// formatMessageContent renders tab references in questions as bold titles.
// Answers are already Markdown.
func (e *MarkdownExporter) formatMessageContent(msg storage.Message) string {
	if msg.Role != storage.RoleUser {
		return strings.TrimSpace(msg.Text)
	}
	var sb strings.Builder
	for _, seg := range mention.Parse(msg.Text) {
		if seg.Kind == mention.Reference {
			sb.WriteString("**@" + escapeMarkdown(seg.Text) + "**")
			continue
		}
		sb.WriteString(seg.Text)
	}
	return strings.TrimSpace(sb.String())
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that break headings and list items.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes values containing YAML special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*,\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
