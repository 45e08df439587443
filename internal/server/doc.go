// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is the messaging boundary between display surfaces (the
// browser side panel, scripts) and the conversation orchestrator.
//
// Every action answers with a tagged result {success, data?, error?}. Failures
// never escape as a bare 5xx.
//
// # Endpoints
//
//   - GET  /health                - liveness and model server status
//   - POST /v1/actions/{action}   - getModels, checkConnection, getTabs, query,
//     selectModel, getHistory, clearHistory, getStatus
//   - POST /v1/actions/queryStream - Server-Sent Events: streamChunk,
//     streamComplete, streamError
//   - GET  /v1/ws                 - WebSocket carrying {id, action, payload}
//     requests, tagged replies and pushed stream events
//
// # Middleware
//
//   - Panic recovery with stack logging
//   - Request logging through zap
//   - Security headers
//   - CORS for chrome-extension:// and configured origins
//   - Optional bearer token (header, or ?token= for WebSocket handshakes)
//   - Per-client token bucket rate limiting
//
// # Key Types
//
//   - Server: routes, middleware chain and lifecycle
//   - Result: the tagged action outcome
//   - RateLimiter: per-client limiter on golang.org/x/time/rate
//
// # Usage
//
//	srv := server.New(orch, cfg.Server.Addr,
//		append(server.FromConfig(cfg.Server), server.WithLogger(logger))...)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
