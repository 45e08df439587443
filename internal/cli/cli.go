// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information, set from main at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// Options holds the persistent flags shared by every command.
type Options struct {
	// ConfigPath overrides ~/.tabchat/config.toml.
	ConfigPath string

	// Verbose mirrors debug logs to stderr.
	Verbose bool

	// JSON switches output to JSONResponse documents.
	JSON bool

	// Model overrides the selected model for a single command.
	Model string

	OllamaURL  string
	BrowserURL string

	// NoBrowser skips attaching to the browser.
	NoBrowser bool
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the tabchat command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "tabchat",
		Short: "Chat with a local Ollama model about your open browser tabs",
		Long: `tabchat answers questions with a local Ollama model, grounded in the
content of your open browser tabs.

Mention a tab with @ and its title. Mentioned tabs are extracted and placed in
the prompt. With --page, the active tab is used when nothing is mentioned.

The browser must expose the DevTools protocol, for example:
  chromium --remote-debugging-port=9222

Run without arguments to start the interactive chat.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, chatFlags{})
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("tabchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate))
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.tabchat/config.toml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output to stderr")
	flags.BoolVar(&opts.JSON, "json", false, "print JSON output")
	flags.StringVarP(&opts.Model, "model", "m", "", "model to use for this command")
	flags.StringVar(&opts.OllamaURL, "ollama-url", "", "Ollama server URL")
	flags.StringVar(&opts.BrowserURL, "browser-url", "", "browser DevTools address")
	flags.BoolVar(&opts.NoBrowser, "no-browser", false, "do not attach to the browser")

	root.AddCommand(
		newServeCommand(opts),
		newAskCommand(opts),
		newChatCommand(opts),
		newPanelCommand(opts),
		newModelsCommand(opts),
		newTabsCommand(opts),
		newHistoryCommand(opts),
		newStatusCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the command tree with args and returns the process exit code.
// SIGINT and SIGTERM cancel the command context.
func Execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ExitSuccess
	}
	if jsonRequested(root) {
		_ = writeJSON(stdout, NewJSONErrorResponse(commandPath(cmd), err))
	} else {
		DisplayError(stderr, err)
	}
	return GetExitCode(err)
}

func commandPath(cmd *cobra.Command) string {
	if cmd == nil {
		return "tabchat"
	}
	return cmd.CommandPath()
}

func jsonRequested(root *cobra.Command) bool {
	v, err := root.PersistentFlags().GetBool("json")
	return err == nil && v
}

// =============================================================================
// ARGUMENT VALIDATORS
// =============================================================================

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
