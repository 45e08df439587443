// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// STREAM
// =============================================================================

// Stream reads a newline-delimited JSON generation response one fragment at a
// time. It is not safe for concurrent use.
//
//	for {
//	    frag, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
type Stream struct {
	ctx    context.Context
	body   io.Closer
	reader *bufio.Reader
	logger *zap.Logger

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	model       string
	context     []int
	fragments   int
	skipped     int
	line        int
	complete    bool
	finished    bool
}

// NewStream creates a stream over r. If r is an io.Closer it is closed by
// Close. A nil logger disables malformed-record warnings.
func NewStream(ctx context.Context, r io.Reader, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		ctx:    ctx,
		reader: bufio.NewReader(r),
		logger: logger,
	}
	if c, ok := r.(io.Closer); ok {
		s.body = c
	}
	return s
}

// Next returns the next fragment. It returns io.EOF after the completion
// record has been returned or when the body is exhausted without one.
// Malformed records are skipped.
func (s *Stream) Next() (Fragment, error) {
	for {
		if s.finished {
			return Fragment{}, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			s.finished = true
			return Fragment{}, err
		}

		line, readErr := s.reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			s.finished = true
			return Fragment{}, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: readErr}
		}
		if errors.Is(readErr, io.EOF) {
			// The last record may arrive without a trailing newline.
			s.finished = true
		}

		frag, ok, err := s.decode(line)
		if err != nil {
			s.finished = true
			return Fragment{}, err
		}
		if ok {
			return frag, nil
		}
		if s.finished {
			return Fragment{}, io.EOF
		}
	}
}

// decode parses one line. ok is false for blank, malformed and empty records.
func (s *Stream) decode(line []byte) (Fragment, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Fragment{}, false, nil
	}
	s.line++

	var rec GenerateRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		s.skipped++
		s.logger.Warn("skipping malformed stream record",
			zap.Int("line", s.line),
			zap.Error(err))
		return Fragment{}, false, nil
	}

	if rec.Error != "" {
		return Fragment{}, false, &ClientError{Type: ErrTypeInvalidResponse, Message: rec.Error}
	}

	if rec.Model != "" {
		s.model = rec.Model
	}
	if rec.Response != "" {
		s.accumulator.WriteString(rec.Response)
		s.fragments++
	}
	if rec.Done {
		s.complete = true
		s.finished = true
		s.context = rec.Context
	}

	if rec.Response == "" && !rec.Done {
		return Fragment{}, false, nil
	}

	return Fragment{
		Text:       rec.Response,
		Done:       rec.Done,
		DoneReason: rec.DoneReason,
		Model:      s.model,
		Context:    rec.Context,
	}, true, nil
}

// Accumulated returns all fragment text read so far.
func (s *Stream) Accumulated() string {
	return s.accumulator.String()
}

// Model returns the model identity reported by the stream so far.
func (s *Stream) Model() string {
	return s.model
}

// Complete reports whether a completion record was seen.
func (s *Stream) Complete() bool {
	return s.complete
}

// Skipped returns the number of malformed records that were dropped.
func (s *Stream) Skipped() int {
	return s.skipped
}

// Result snapshots the stream state as a GenerateResult.
func (s *Stream) Result() *GenerateResult {
	return &GenerateResult{
		Text:      s.accumulator.String(),
		Model:     s.model,
		Complete:  s.complete,
		Context:   s.context,
		Fragments: s.fragments,
		Skipped:   s.skipped,
	}
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	s.finished = true
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}
