// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry sets up structured logging, tracing and metrics.
//
// Logs are zap JSON records in a lumberjack-rotated file, optionally teed to
// a console encoder on stderr. Traces and metrics use the OpenTelemetry SDK
// with stdout exporters writing rotated JSON files; when telemetry is off the
// global providers stay no-ops and instrumented packages pay nothing.
//
// # Usage
//
//	log, err := telemetry.NewLogger(telemetry.LogOptions{
//	    Level: cfg.Logging.Level,
//	    File:  logFile,
//	})
//	defer log.Close()
//
//	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryOptions{Dir: dir})
//	defer shutdown(context.Background())
package telemetry
