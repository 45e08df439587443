// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabchat/internal/storage"
)

func sampleMessages() []storage.Message {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []storage.Message{
		{ID: "1", Role: storage.RoleUser, Text: `@"Release notes" what changed?`, Timestamp: start},
		{ID: "2", Role: storage.RoleAssistant, Text: "Version **2** ships today.", Model: "llama3.2", Timestamp: start.Add(time.Second)},
		{ID: "3", Role: storage.RoleUser, Text: `compare @"Release notes" with @"Roadmap"`, Timestamp: start.Add(time.Minute)},
		{ID: "4", Role: storage.RoleAssistant, Text: "They agree.", Model: "qwen2.5", Timestamp: start.Add(2 * time.Minute)},
	}
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestNewTranscript(t *testing.T) {
	msgs := sampleMessages()
	tr := NewTranscript("default", msgs)

	assert.Equal(t, []string{"llama3.2", "qwen2.5"}, tr.Models)
	assert.Equal(t, []string{"Release notes", "Roadmap"}, tr.Tabs)
	assert.Equal(t, msgs[0].Timestamp, tr.StartedAt)
	assert.Equal(t, msgs[3].Timestamp, tr.UpdatedAt)
	assert.False(t, tr.ExportedAt.IsZero())
}

func TestNewTranscript_Empty(t *testing.T) {
	tr := NewTranscript("default", nil)
	assert.Empty(t, tr.Models)
	assert.True(t, tr.StartedAt.IsZero())
}

// =============================================================================
// MARKDOWN TESTS
// =============================================================================

func TestMarkdownExporter_Export(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(NewTranscript("default", sampleMessages()))
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\nconversation: default\n"), md)
	assert.Contains(t, md, "models: [llama3.2, qwen2.5]")
	assert.Contains(t, md, "- **Tabs**: Release notes, Roadmap")
	assert.Contains(t, md, "**@Release notes** what changed?")
	assert.Contains(t, md, "### [Assistant] llama3.2 <sub>")
	assert.Contains(t, md, "Version **2** ships today.")
	assert.Contains(t, md, "*Exported from tabchat on")
	assert.Equal(t, 3, strings.Count(md, "\n---\n\n### "))
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := &Options{IncludeMetadata: false, IncludeTimestamps: false}
	out, err := NewMarkdownExporter(opts).Export(NewTranscript("work_notes", sampleMessages()))
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "# work\\_notes\n"), md)
	assert.NotContains(t, md, "Session Information")
	assert.NotContains(t, md, "<sub>")
	assert.Contains(t, md, "### [User]\n")
}

func TestMarkdownExporter_Empty(t *testing.T) {
	_, err := NewMarkdownExporter(nil).Export(NewTranscript("default", nil))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = NewMarkdownExporter(nil).Export(nil)
	assert.Error(t, err)
}

// =============================================================================
// JSON TESTS
// =============================================================================

func TestJSONExporter_Export(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(NewTranscript("default", sampleMessages()))
	require.NoError(t, err)

	var back Transcript
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "default", back.Conversation)
	require.Len(t, back.Messages, 4)
	assert.Equal(t, "They agree.", back.Messages[3].Text)
	assert.Equal(t, []string{"Release notes", "Roadmap"}, back.Tabs)
}

// =============================================================================
// FILE TESTS
// =============================================================================

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"markdown", ".md"},
		{"md", ".md"},
		{"", ".md"},
		{"JSON", ".json"},
	}

	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil)
		require.NoError(t, err, tt.format)
		if got := exp.FileExtension(); got != tt.ext {
			t.Errorf("ForFormat(%q).FileExtension() = %q, want %q", tt.format, got, tt.ext)
		}
	}

	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	tr := NewTranscript("my chat", sampleMessages())

	path, err := ExportToFile(tr, NewJSONExporter(nil), &Options{OutputDir: dir})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "tabchat_my_chat_"), base)
	assert.True(t, strings.HasSuffix(base, ".json"), base)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conversation": "my chat"`)
}
