// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, err=%v", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestNewLogger_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tabchat.log")
	log, err := NewLogger(LogOptions{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("query finished", zap.String("model", "llama3"))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "query finished", rec["msg"])
	assert.Equal(t, "llama3", rec["model"])
}

func TestNewLogger_ConsoleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LogOptions{Level: "warn", Console: true, Stderr: &buf})
	require.NoError(t, err)

	log.Info("quiet")
	require.NoError(t, log.SetLevel("debug"))
	log.Debug("loud")
	_ = log.Sync()

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.Equal(t, zapcore.DebugLevel, log.Level())
	assert.Error(t, log.SetLevel("nope"))
}

func TestNewLogger_NoOutputIsNop(t *testing.T) {
	log, err := NewLogger(LogOptions{})
	require.NoError(t, err)
	log.Info("nowhere")
	assert.NoError(t, log.Close())
}

func TestInitTelemetry_WritesTraces(t *testing.T) {
	dir := t.TempDir()
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	shutdown, err := InitTelemetry(context.Background(), TelemetryOptions{Dir: dir, Version: "test", MetricInterval: time.Hour})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "orchestrator.query")
	span.End()

	counter, err := otel.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, shutdown(context.Background()))

	traces, err := os.ReadFile(filepath.Join(dir, "traces.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(traces), "orchestrator.query")
	assert.Contains(t, string(traces), ServiceName)

	metrics, err := os.ReadFile(filepath.Join(dir, "metrics.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "test.counter")
}
