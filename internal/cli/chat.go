// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// USABILITY: Line editing and input history through liner. Tab completes
// @mentions against the open tabs and slash commands.
//
// Commands:
//   /help, /h           Show help
//   /models             List installed models
//   /model [NAME]       Show or select the model
//   /tabs               Refresh and list open tabs
//   /page               Toggle including the active tab
//   /clear, /c          Clear conversation history
//   /history            Show conversation history
//   /status, /s         Show session status
//   /quit, /q, /exit    Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/tabs"
)

// chatFlags are the flags of the chat command.
type chatFlags struct {
	page bool
}

func newChatCommand(opts *Options) *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat in the terminal.

Type @ and press Tab to mention an open tab. Type /help for commands.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.page, "page", "p", false, "include the active tab when no tab is mentioned")
	return cmd
}

// =============================================================================
// LINE EDITING
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI whose history lives in historyFile.
func NewChatCLI(historyFile string, completer liner.WordCompleter) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetWordCompleter(completer)
	line.SetTabCompletionStyle(liner.TabCircular)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt and records it in history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// slashCommands are offered by completion.
var slashCommands = []string{
	"/help", "/models", "/model", "/tabs", "/page", "/clear", "/history", "/status", "/quit",
}

// chatCompleter completes @mentions against snapshot() and slash commands
// at the start of the line. pos is a rune offset.
func chatCompleter(snapshot func() []tabs.Tab) liner.WordCompleter {
	return func(line string, pos int) (string, []string, string) {
		runes := []rune(line)
		if pos > len(runes) {
			pos = len(runes)
		}
		head, tail := string(runes[:pos]), string(runes[pos:])

		if strings.HasPrefix(head, "/") && !strings.ContainsAny(head, " \t") {
			var out []string
			for _, c := range slashCommands {
				if strings.HasPrefix(c, head) {
					out = append(out, c+" ")
				}
			}
			return "", out, tail
		}

		active, ok := mention.Detect(line, pos)
		if !ok {
			return head, nil, tail
		}
		var out []string
		for _, tab := range mention.Filter(snapshot(), active.Term) {
			out = append(out, mention.Token(tab.Title)+" ")
		}
		return string(runes[:active.Start]), out, tail
	}
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession runs chat input against the orchestrator.
type ChatSession struct {
	rt     *Runtime
	out    io.Writer
	errOut io.Writer

	// model overrides the selected model when set by --model.
	model string

	includePage bool
	render      bool
}

func newChatSession(rt *Runtime, out, errOut io.Writer, model string, includePage bool) *ChatSession {
	return &ChatSession{
		rt:          rt,
		out:         out,
		errOut:      errOut,
		model:       model,
		includePage: includePage,
		render:      rt.Config.UI.RenderMarkdown,
	}
}

func runChat(cmd *cobra.Command, opts *Options, flags chatFlags) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{browser: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	session := newChatSession(rt, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Model, flags.page || rt.Config.UI.IncludePage)
	session.refreshTabs(ctx)

	historyFile := filepath.Join(os.TempDir(), "tabchat_history")
	if dir, err := rt.Config.DataDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}
	input := NewChatCLI(historyFile, chatCompleter(rt.Orch.State().Snapshot))
	defer input.Close()

	session.printWelcome()

	for {
		line, err := input.ReadInput(RenderConditional(PromptStyle, "tabchat> "))
		if err != nil {
			// Ctrl+C, Ctrl+D and closed stdin all end the chat.
			fmt.Fprintln(session.out)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		more, err := session.HandleLine(ctx, line)
		if err != nil {
			DisplayError(session.errOut, err)
		}
		if !more {
			return nil
		}
	}
}

// HandleLine processes one line of input. It returns false when the chat
// should end.
func (s *ChatSession) HandleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return true, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleSlashCommand(ctx, line)
	}
	return true, s.ask(ctx, line)
}

// refreshTabs updates the tab snapshot when a browser is attached.
func (s *ChatSession) refreshTabs(ctx context.Context) []tabs.Tab {
	if !s.rt.BrowserAttached() {
		return nil
	}
	list, err := s.rt.Orch.RefreshTabs(ctx)
	if err != nil {
		s.rt.Logger.Warn("tab snapshot failed", zap.Error(err))
		return s.rt.Orch.State().Snapshot()
	}
	return list
}

func (s *ChatSession) ask(ctx context.Context, text string) error {
	q := s.rt.Orch.ParseQuery(text, s.model, s.includePage)
	if mention.HasMentions(text) && len(q.MentionedTabs) == 0 {
		fmt.Fprintln(s.errOut, RenderConditional(WarningStyle, "No mentioned tab is open; asking without tab content."))
	}

	fmt.Fprintln(s.out)
	answer, err := s.rt.Orch.HandleStreamingQuery(ctx, q, uuid.NewString(),
		orchestrator.NotifierFunc(func(ev orchestrator.Event) error {
			if ev.Type == orchestrator.EventStreamChunk {
				_, err := fmt.Fprint(s.out, ev.Chunk)
				return err
			}
			return nil
		}))
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out)
	printSources(s.errOut, answer)
	printIncomplete(s.errOut, answer)
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (s *ChatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()

	case "/models":
		models, err := s.rt.Orch.RefreshModels(ctx)
		if err != nil {
			return true, err
		}
		writeModels(s.out, models, s.currentModel())

	case "/model", "/m":
		if len(args) == 0 {
			fmt.Fprintf(s.out, "Current model: %s\n", displayModel(s.currentModel()))
			return true, nil
		}
		if _, err := s.rt.Orch.RefreshModels(ctx); err != nil {
			return true, err
		}
		if err := s.rt.Orch.SelectModel(ctx, args[0]); err != nil {
			return true, err
		}
		s.model = ""
		fmt.Fprintf(s.out, "%s Switched to model: %s\n", RenderStatus("ok"), args[0])

	case "/tabs":
		if !s.rt.BrowserAttached() {
			return true, orchestrator.ErrNoBrowser
		}
		writeTabs(s.out, s.refreshTabs(ctx))

	case "/page":
		s.includePage = !s.includePage
		state := "off"
		if s.includePage {
			state = "on"
		}
		fmt.Fprintf(s.out, "Include active tab: %s\n", state)

	case "/clear", "/c":
		if err := s.rt.Orch.ClearHistory(ctx); err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, "Conversation cleared.")

	case "/history":
		writeHistory(s.out, s.rt.Orch.State().History())

	case "/status", "/s":
		writeStatus(s.out, s.rt, s.rt.Orch.CheckConnection(ctx))

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, &UsageError{Err: errors.New("unknown command: " + command + " (type /help for commands)")}
	}
	return true, nil
}

func (s *ChatSession) currentModel() string {
	if s.model != "" {
		return s.model
	}
	return s.rt.Orch.State().SelectedModel()
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *ChatSession) printWelcome() {
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "tabchat interactive chat"))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), displayModel(s.currentModel()))
	if s.rt.BrowserAttached() {
		fmt.Fprintf(s.out, "%s%d open\n", RenderLabel("Tabs:"), len(s.rt.Orch.State().Snapshot()))
	} else {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Tabs:"), RenderConditional(WarningStyle, "browser not attached"))
	}
	fmt.Fprintln(s.out, RenderConditional(DimStyle, `Type @ and press Tab to mention a tab. /help for commands.`))
	fmt.Fprintln(s.out)
}

func (s *ChatSession) printHelp() {
	rows := [][2]string{
		{"/models", "List installed models"},
		{"/model [NAME]", "Show or select the model"},
		{"/tabs", "Refresh and list open tabs"},
		{"/page", "Toggle including the active tab"},
		{"/clear, /c", "Clear conversation history"},
		{"/history", "Show conversation history"},
		{"/status, /s", "Show session status"},
		{"/quit, /q", "Exit chat"},
	}
	for _, row := range rows {
		fmt.Fprintf(s.out, "  %s%s\n", RenderLabel(row[0]), row[1])
	}
}

func displayModel(name string) string {
	if name == "" {
		return "(none selected)"
	}
	return name
}
