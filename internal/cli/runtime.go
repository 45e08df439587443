// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/tabchat/internal/config"
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/tabs"
	"github.com/jeranaias/tabchat/internal/telemetry"
)

// =============================================================================
// RUNTIME
// =============================================================================

// Runtime is the wired application behind a command: configuration,
// logging, storage, the model client, the optional browser and the
// orchestrator that ties them together.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *telemetry.Logger
	Store      storage.Store
	Client     *ollama.Client
	Browser    *tabs.RodBrowser
	Orch       *orchestrator.Orchestrator

	// BrowserErr is why the browser is detached, if it is.
	BrowserErr error

	shutdownTelemetry telemetry.ShutdownFunc
}

// runtimeOptions selects the parts of the runtime a command needs.
type runtimeOptions struct {
	browser bool
}

// loadConfig reads the config file named by opts, or the default one, and
// applies flag overrides.
func loadConfig(opts *Options) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if opts.ConfigPath != "" {
		path = opts.ConfigPath
		cfg, err = config.LoadFromPath(path)
	} else {
		path, err = config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}

	if opts.OllamaURL != "" {
		cfg.Ollama.URL = opts.OllamaURL
	}
	if opts.BrowserURL != "" {
		cfg.Browser.ControlURL = opts.BrowserURL
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, path, nil
}

// newRuntime wires the application for cmd. Close releases everything it
// opened.
func newRuntime(cmd *cobra.Command, opts *Options, ro runtimeOptions) (*Runtime, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, ConfigPath: path}

	logFile, err := cfg.LogFile()
	if err != nil {
		return nil, err
	}
	rt.Logger, err = telemetry.NewLogger(telemetry.LogOptions{
		Level:      cfg.Logging.Level,
		File:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Console:    opts.Verbose,
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := rt.Logger.Logger

	if cfg.Logging.Telemetry {
		dir, err := cfg.TelemetryDirPath()
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.shutdownTelemetry, err = telemetry.InitTelemetry(ctx, telemetry.TelemetryOptions{
			Dir:     dir,
			Version: Version,
		})
		if err != nil {
			logger.Warn("telemetry disabled", zap.Error(err))
		}
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store, err = storage.Open(cfg.Storage.Backend, dataDir, cfg.Storage.Conversation)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rt.Client = ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:       cfg.Ollama.URL,
		Timeout:       cfg.OllamaTimeout(),
		StreamTimeout: cfg.OllamaStreamTimeout(),
		Logger:        logger,
	})

	// A nil *tabs.Directory stored in the interface would not compare nil.
	var source orchestrator.TabSource
	if ro.browser && !opts.NoBrowser {
		rt.Browser, err = tabs.ConnectRod(ctx, cfg.Browser.ControlURL, logger)
		if err != nil {
			rt.BrowserErr = err
			logger.Warn("browser not attached", zap.String("control_url", cfg.Browser.ControlURL), zap.Error(err))
		} else {
			source = tabs.NewDirectory(rt.Browser,
				tabs.WithLogger(logger),
				tabs.WithEvalTimeout(cfg.EvalTimeout()))
		}
	} else {
		rt.BrowserErr = orchestrator.ErrNoBrowser
	}

	rt.Orch = orchestrator.New(rt.Client, source,
		orchestrator.WithStore(rt.Store),
		orchestrator.WithLogger(logger),
		orchestrator.WithMaxParallel(cfg.Browser.MaxParallel))
	if err := rt.Orch.Start(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	if rt.Orch.State().SelectedModel() == "" && cfg.Ollama.DefaultModel != "" {
		if err := rt.Orch.SelectModel(ctx, cfg.Ollama.DefaultModel); err != nil {
			logger.Debug("default model not selectable", zap.String("model", cfg.Ollama.DefaultModel), zap.Error(err))
		}
	}
	return rt, nil
}

// BrowserAttached reports whether tab operations are available.
func (rt *Runtime) BrowserAttached() bool {
	return rt.Browser != nil
}

// Close shuts down the browser connection, storage, telemetry and logger.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Browser != nil {
		errs = append(errs, rt.Browser.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	if rt.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, rt.shutdownTelemetry(ctx))
		cancel()
	}
	if rt.Logger != nil {
		errs = append(errs, rt.Logger.Close())
	}
	return errors.Join(errs...)
}

// configExists reports whether path names an existing file.
func configExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
