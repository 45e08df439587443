// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/tabchat/internal/config"
	"github.com/jeranaias/tabchat/internal/server"
)

// shutdownTimeout bounds the wait for in-flight answers on exit.
const shutdownTimeout = 15 * time.Second

func newServeCommand(opts *Options) *cobra.Command {
	var (
		addr  string
		token string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the messaging boundary for the browser side panel",
		Long: `Serve the HTTP, SSE and WebSocket endpoints used by the browser side panel.

Actions are POSTed to /v1/actions/{action}. queryStream answers as Server-Sent
Events. /v1/ws carries the same actions over a WebSocket.

Changes to the config file are applied without a restart, except the listen
address.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, addr, token)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "require this bearer token")
	return cmd
}

func runServe(cmd *cobra.Command, opts *Options, addr, token string) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{browser: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger.Logger

	serverCfg := rt.Config.Server
	if addr != "" {
		serverCfg.Addr = addr
	}
	if token != "" {
		serverCfg.AuthToken = token
	}

	srvOpts := append(server.FromConfig(serverCfg),
		server.WithLogger(logger),
		server.WithVersion(Version))
	srv := server.New(rt.Orch, serverCfg.Addr, srvOpts...)

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr(), err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if configExists(rt.ConfigPath) {
		watcher, err := config.NewWatcher(rt.ConfigPath, rt.Config, func(next *config.Config) {
			next.Server.Addr = serverCfg.Addr
			if token != "" {
				next.Server.AuthToken = token
			}
			srv.UpdateConfig(next.Server)
			if err := rt.Logger.SetLevel(next.Logging.Level); err != nil {
				logger.Warn("invalid log level in reloaded config", zap.Error(err))
			}
		}, logger)
		if err != nil {
			logger.Warn("config reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "%s tabchat %s listening on http://%s\n", RenderStatus("ok"), Version, ln.Addr())
	if rt.BrowserAttached() {
		fmt.Fprintf(out, "%s browser %s\n", RenderStatus("attached"), rt.Browser.ControlURL())
	} else {
		fmt.Fprintf(out, "%s browser not attached: %v\n", RenderStatus("detached"), rt.BrowserErr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return <-errCh
}
