// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabchat/internal/session"
)

// statusData is the JSON form of the status command.
type statusData struct {
	Version    string         `json:"version"`
	OllamaURL  string         `json:"ollamaUrl"`
	Connected  bool           `json:"connected"`
	BrowserURL string         `json:"browserUrl"`
	Browser    bool           `json:"browser"`
	ConfigPath string         `json:"configPath"`
	Storage    string         `json:"storage"`
	Session    session.Status `json:"session"`
}

func newStatusCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show model server, browser and session status",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *Options) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{browser: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if rt.BrowserAttached() {
		_, _ = rt.Orch.RefreshTabs(ctx)
	}
	connected := rt.Orch.CheckConnection(ctx)
	if opts.JSON {
		return printJSON(cmd, collectStatus(rt, connected))
	}
	writeStatus(cmd.OutOrStdout(), rt, connected)
	return nil
}

func collectStatus(rt *Runtime, connected bool) statusData {
	return statusData{
		Version:    Version,
		OllamaURL:  rt.Client.BaseURL(),
		Connected:  connected,
		BrowserURL: rt.Config.Browser.ControlURL,
		Browser:    rt.BrowserAttached(),
		ConfigPath: rt.ConfigPath,
		Storage:    rt.Config.Storage.Backend,
		Session:    rt.Orch.State().GetStatus(),
	}
}

// writeStatus prints the status report.
func writeStatus(w io.Writer, rt *Runtime, connected bool) {
	st := collectStatus(rt, connected)

	ollamaState := "connected"
	if !st.Connected {
		ollamaState = "unavailable"
	}
	browserState := "attached"
	if !st.Browser {
		browserState = "detached"
	}

	fmt.Fprintf(w, "%s%s %s\n", RenderLabel("Ollama:"), RenderStatus(ollamaState), st.OllamaURL)
	fmt.Fprintf(w, "%s%s %s\n", RenderLabel("Browser:"), RenderStatus(browserState), st.BrowserURL)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Model:"), displayModel(st.Session.SelectedModel))
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Models:"), st.Session.Models)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Tabs:"), st.Session.Tabs)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Messages:"), st.Session.Messages)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Session:"), st.Session.SessionID)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Uptime:"), session.FormatDuration(st.Session.Duration))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Storage:"), st.Storage)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Config:"), st.ConfigPath)
}
