// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tabchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - OllamaConfig, BrowserConfig: the model server and the tab platform
//   - ServerConfig: the local messaging server used by the browser panel
//   - StorageConfig, LoggingConfig, UIConfig
//   - Watcher: hot reload on file change
//
// # Configuration Precedence
//
//   - Environment variables (TABCHAT_*)
//   - ~/.tabchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: cfg.Ollama.URL,
//	    Timeout: cfg.OllamaTimeout(),
//	})
package config
