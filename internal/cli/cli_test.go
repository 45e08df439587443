// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabchat/internal/config"
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/session"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/tabs"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeOllama serves a two-model catalog and streams "Hello world".
type fakeOllama struct {
	*httptest.Server

	mu      sync.Mutex
	prompts []string
}

func newFakeOllama(t *testing.T) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Ollama is running")
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"models":[{"name":"llama3.2","size":2019393189},{"name":"qwen2.5","size":4683087332}]}`)
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintf(w, `{"model":%q,"response":"Hello","done":false}`+"\n", req.Model)
		fmt.Fprintf(w, `{"model":%q,"response":" world","done":true,"done_reason":"stop"}`+"\n", req.Model)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// clearEnv keeps TABCHAT_* variables from the host out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"TABCHAT_OLLAMA_URL", "TABCHAT_MODEL", "TABCHAT_BROWSER_URL", "TABCHAT_ADDR",
		"TABCHAT_TOKEN", "TABCHAT_STORAGE", "TABCHAT_DATA_DIR", "TABCHAT_LOG_LEVEL", "TABCHAT_TELEMETRY",
	} {
		t.Setenv(name, "")
	}
}

// writeConfig writes a config file that keeps all state under a temp dir.
func writeConfig(t *testing.T, ollamaURL string) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf(`
[ollama]
url = '%s'

[storage]
backend = "json"
data_dir = '%s'

[logging]
file = '%s'

[ui]
render_markdown = false
include_page = false
`, ollamaURL, filepath.Join(dir, "data"), filepath.Join(dir, "tabchat.log"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// jsonResult is the decoded form of a JSONResponse.
type jsonResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Command string          `json:"command"`
}

// runCLI runs the command tree against the config at path with the browser
// disabled.
func runCLI(t *testing.T, path string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append(args, "--config", path, "--no-browser"))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func runJSON(t *testing.T, path string, v any, args ...string) jsonResult {
	t.Helper()
	out, _, err := runCLI(t, path, append(args, "--json")...)
	require.NoError(t, err)
	var res jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	require.True(t, res.Success)
	if v != nil {
		require.NoError(t, json.Unmarshal(res.Data, v))
	}
	return res
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestChatCompleter(t *testing.T) {
	snapshot := func() []tabs.Tab {
		return []tabs.Tab{
			{ID: "1", Title: "Release notes", URL: "https://example.com/notes"},
			{ID: "2", Title: "Inbox", URL: "https://mail.example.com"},
		}
	}
	complete := chatCompleter(snapshot)

	tests := []struct {
		name     string
		line     string
		pos      int
		wantHead string
		want     []string
		wantTail string
	}{
		{
			name:     "slash command",
			line:     "/mo",
			pos:      3,
			wantHead: "",
			want:     []string{"/models ", "/model "},
		},
		{
			name:     "mention filter",
			line:     "compare @rel",
			pos:      12,
			wantHead: "compare ",
			want:     []string{`@"Release notes" `},
		},
		{
			name:     "bare at lists all",
			line:     "@",
			pos:      1,
			wantHead: "",
			want:     []string{`@"Release notes" `, `@"Inbox" `},
		},
		{
			name:     "mention before tail",
			line:     "@in and more",
			pos:      3,
			wantHead: "",
			want:     []string{`@"Inbox" `},
			wantTail: " and more",
		},
		{
			name:     "no mention",
			line:     "hello",
			pos:      5,
			wantHead: "hello",
		},
		{
			name:     "slash after text",
			line:     "a /mo",
			pos:      5,
			wantHead: "a /mo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, got, tail := complete(tt.line, tt.pos)
			if head != tt.wantHead {
				t.Errorf("head = %q, want %q", head, tt.wantHead)
			}
			assert.Equal(t, tt.want, got)
			if tail != tt.wantTail {
				t.Errorf("tail = %q, want %q", tail, tt.wantTail)
			}
		})
	}
}

func TestWithMentions(t *testing.T) {
	tests := []struct {
		text   string
		titles []string
		want   string
	}{
		{"what changed?", nil, "what changed?"},
		{"what changed?", []string{"Release notes"}, `@"Release notes" what changed?`},
		{"compare", []string{"A", "B"}, `@"A" @"B" compare`},
	}

	for _, tt := range tests {
		if got := withMentions(tt.text, tt.titles); got != tt.want {
			t.Errorf("withMentions(%q, %v) = %q, want %q", tt.text, tt.titles, got, tt.want)
		}
	}
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Err: errors.New("bad flag")}, ExitUsageError},
		{"validation", &ValidationError{Field: "limit", Reason: "negative"}, ExitUsageError},
		{"unknown command", errors.New(`unknown command "x" for "tabchat"`), ExitUsageError},
		{"config", fmt.Errorf("invalid flags: %w", config.ValidateErrors{{Field: "ollama.url", Message: "bad"}}), ExitConfigError},
		{"not found", &NotFoundError{Resource: "tab", ID: "x"}, ExitNotFoundError},
		{"unknown model", fmt.Errorf("select: %w", session.ErrUnknownModel), ExitNotFoundError},
		{"model not installed", ollama.ErrModelNotFound, ExitNotFoundError},
		{"no model", orchestrator.ErrNoModel, ExitUsageError},
		{"timeout", ollama.ErrTimeout, ExitTimeoutError},
		{"not running", ollama.ErrNotRunning, ExitNetworkError},
		{"no browser", fmt.Errorf("--tab: %w", orchestrator.ErrNoBrowser), ExitNetworkError},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDisplayError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"not running", ollama.ErrNotRunning, []string{"Error:", "ollama serve"}},
		{"no model", orchestrator.ErrNoModel, []string{"no model selected", "tabchat models select"}},
		{"no browser", orchestrator.ErrNoBrowser, []string{"remote-debugging-port"}},
		{"usage", &UsageError{Err: errors.New("bad flag")}, []string{"bad flag", "tabchat --help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DisplayError(&buf, tt.err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}

	var buf bytes.Buffer
	DisplayError(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "limit", Value: "-1", Reason: "must not be negative", Example: "tabchat history -n 10"}
	want := "invalid limit: must not be negative (got: -1)\nExample: tabchat history -n 10"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// =============================================================================
// EXECUTE TESTS
// =============================================================================

func TestExecute_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute([]string{"frobnicate"}, &stdout, &stderr)
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestExecute_JSONError(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"models", "select", "missing", "--json", "--config", path, "--no-browser"}, &stdout, &stderr)
	assert.Equal(t, ExitNotFoundError, code)

	var res jsonResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res), stdout.String())
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "tabchat models select", res.Command)
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestModels_ListAndSelect(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	var data modelsData
	runJSON(t, path, &data, "models")
	require.Len(t, data.Models, 2)
	assert.Equal(t, "llama3.2", data.Models[0].Name)
	assert.Empty(t, data.Selected)

	out, _, err := runCLI(t, path, "models", "select", "qwen2.5")
	require.NoError(t, err)
	assert.Contains(t, out, "qwen2.5")

	out, _, err = runCLI(t, path, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "* qwen2.5")
	assert.Contains(t, out, "  llama3.2")
}

func TestModels_SelectUnknown(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "models", "select", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestModels_ServerDown(t *testing.T) {
	srv := newFakeOllama(t)
	url := srv.URL
	srv.Close()
	path := writeConfig(t, url)

	_, _, err := runCLI(t, path, "models")
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, GetExitCode(err))
}

func TestAsk_NoModel(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "ask", "hello")
	assert.ErrorIs(t, err, orchestrator.ErrNoModel)
}

func TestAsk_Streams(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	out, _, err := runCLI(t, path, "ask", "-m", "llama3.2", "what", "is", "new?")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)
	assert.Equal(t, "what is new?", srv.lastPrompt())
}

func TestAsk_NoStreamJSON(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)
	_, _, err := runCLI(t, path, "models", "select", "llama3.2")
	require.NoError(t, err)

	var answer orchestrator.Answer
	res := runJSON(t, path, &answer, "ask", "--no-stream", "hello")
	assert.Equal(t, "tabchat ask", res.Command)
	assert.Equal(t, "Hello world", answer.Text)
	assert.Equal(t, "llama3.2", answer.Model)
	assert.True(t, answer.Complete)

	var history []storage.Message
	runJSON(t, path, &history, "history")
	require.Len(t, history, 2)
	assert.Equal(t, storage.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "Hello world", history[1].Text)
}

func TestAsk_TabWithoutBrowser(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "ask", "-m", "llama3.2", "--tab", "Docs", "hello")
	assert.ErrorIs(t, err, orchestrator.ErrNoBrowser)
}

func TestAsk_RequiresQuestion(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "ask")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHistory_LimitAndClear(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)
	for _, q := range []string{"one", "two"} {
		_, _, err := runCLI(t, path, "ask", "-m", "llama3.2", q)
		require.NoError(t, err)
	}

	var history []storage.Message
	runJSON(t, path, &history, "history", "-n", "1")
	require.Len(t, history, 1)
	assert.Equal(t, storage.RoleAssistant, history[0].Role)

	out, _, err := runCLI(t, path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "two")

	_, _, err = runCLI(t, path, "history", "-n", "-1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = runCLI(t, path, "history", "clear")
	require.NoError(t, err)

	history = nil
	runJSON(t, path, &history, "history")
	assert.Empty(t, history)
}

func TestHistory_Export(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)
	_, _, err := runCLI(t, path, "ask", "-m", "llama3.2", "hello")
	require.NoError(t, err)

	outDir := t.TempDir()
	var data struct {
		Path     string `json:"path"`
		Messages int    `json:"messages"`
	}
	runJSON(t, path, &data, "history", "export", "--format", "md", "-o", outDir)
	assert.Equal(t, 2, data.Messages)
	assert.Equal(t, outDir, filepath.Dir(data.Path))

	body, err := os.ReadFile(data.Path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Hello world")

	_, _, err = runCLI(t, path, "history", "export", "--format", "pdf")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStatus_JSON(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	var st statusData
	runJSON(t, path, &st, "status")
	assert.True(t, st.Connected)
	assert.False(t, st.Browser)
	assert.Equal(t, srv.URL, st.OllamaURL)
	assert.Equal(t, path, st.ConfigPath)
	assert.Equal(t, "json", st.Storage)
	assert.Equal(t, 2, st.Session.Models)
}

func TestStatus_Text(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	out, _, err := runCLI(t, path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Ollama:")
	assert.Contains(t, out, "(none selected)")
}

func TestTabs_RequiresBrowser(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "tabs")
	assert.ErrorIs(t, err, orchestrator.ErrNoBrowser)
}

// =============================================================================
// CONFIG COMMAND TESTS
// =============================================================================

func TestConfig_SetAndGet(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "config", "set", "ui.theme", "light")
	require.NoError(t, err)

	out, _, err := runCLI(t, path, "config", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "light\n", out)

	out, _, err = runCLI(t, path, "config", "get", "ollama.url")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"\n", out)
}

func TestConfig_SetInvalid(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "config", "set", "ollama.url", "not a url")
	require.Error(t, err)
	assert.NotEqual(t, ExitSuccess, GetExitCode(err))

	out, _, err := runCLI(t, path, "config", "get", "ollama.url")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"\n", out)
}

func TestConfig_GetUnknownKey(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	_, _, err := runCLI(t, path, "config", "get", "nope.key")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope.key", nf.ID)
}

func TestConfig_Init(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	_, _, err := runCLI(t, path, "config", "init")
	require.NoError(t, err)
	assert.True(t, configExists(path))

	_, _, err = runCLI(t, path, "config", "init")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = runCLI(t, path, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfig_ShowRedactsToken(t *testing.T) {
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)
	_, _, err := runCLI(t, path, "config", "set", "server.auth_token", "s3cret-token-value")
	require.NoError(t, err)

	out, _, err := runCLI(t, path, "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret-token-value")
	assert.Contains(t, out, "[REDACTED]")
}

func TestConfig_Keys(t *testing.T) {
	clearEnv(t)
	var keys []string
	res := runJSON(t, filepath.Join(t.TempDir(), "config.toml"), &keys, "config", "keys")
	assert.True(t, res.Success)
	assert.Contains(t, keys, "ollama.url")
	assert.Contains(t, keys, "ui.theme")
}

// =============================================================================
// CHAT SESSION TESTS
// =============================================================================

func newTestSession(t *testing.T) (*ChatSession, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	srv := newFakeOllama(t)
	path := writeConfig(t, srv.URL)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var logs bytes.Buffer
	cmd.SetErr(&logs)

	rt, err := newRuntime(cmd, &Options{ConfigPath: path, NoBrowser: true}, runtimeOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	var out, errOut bytes.Buffer
	return newChatSession(rt, &out, &errOut, "", false), &out, &errOut
}

func TestChatSession_SlashCommands(t *testing.T) {
	s, out, _ := newTestSession(t)
	ctx := context.Background()

	more, err := s.HandleLine(ctx, "/page")
	require.NoError(t, err)
	assert.True(t, more)
	assert.True(t, s.includePage)
	assert.Contains(t, out.String(), "Include active tab: on")

	out.Reset()
	_, err = s.HandleLine(ctx, "/model")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "(none selected)")

	out.Reset()
	_, err = s.HandleLine(ctx, "/model qwen2.5")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", s.currentModel())

	out.Reset()
	_, err = s.HandleLine(ctx, "/models")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "* qwen2.5")

	_, err = s.HandleLine(ctx, "/model missing")
	assert.ErrorIs(t, err, session.ErrUnknownModel)

	_, err = s.HandleLine(ctx, "/tabs")
	assert.ErrorIs(t, err, orchestrator.ErrNoBrowser)

	_, err = s.HandleLine(ctx, "/frobnicate")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)

	more, err = s.HandleLine(ctx, "/quit")
	require.NoError(t, err)
	assert.False(t, more)
}

func TestChatSession_AskAndHistory(t *testing.T) {
	s, out, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.HandleLine(ctx, "hello")
	assert.ErrorIs(t, err, orchestrator.ErrNoModel)

	s.model = "llama3.2"
	more, err := s.HandleLine(ctx, "hello")
	require.NoError(t, err)
	assert.True(t, more)
	assert.Contains(t, out.String(), "Hello world")

	out.Reset()
	_, err = s.HandleLine(ctx, "/history")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "hello")

	_, err = s.HandleLine(ctx, "/clear")
	require.NoError(t, err)
	assert.Empty(t, s.rt.Orch.State().History())
}

func TestChatSession_UnresolvedMentionWarns(t *testing.T) {
	s, out, errOut := newTestSession(t)
	s.model = "llama3.2"

	_, err := s.HandleLine(context.Background(), `@"Closed tab" summarize`)
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "No mentioned tab is open")
	assert.True(t, strings.Contains(out.String(), "Hello world"))
}

func TestChatSession_BlankLine(t *testing.T) {
	s, out, _ := newTestSession(t)
	more, err := s.HandleLine(context.Background(), "   ")
	require.NoError(t, err)
	assert.True(t, more)
	assert.Empty(t, out.String())
}
