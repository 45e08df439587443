// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, open func(conversation string) Store)) {
	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.db")
		fn(t, func(conversation string) Store {
			s, err := OpenSQLite(path, conversation)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		})
	})
	t.Run("json", func(t *testing.T) {
		dir := t.TempDir()
		fn(t, func(conversation string) Store {
			s, err := NewFileStore(dir, conversation)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		})
	})
}

func TestStore_EmptyHistory(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		s := open("")
		msgs, err := s.LoadHistory(context.Background())
		require.NoError(t, err)
		assert.Empty(t, msgs)

		model, err := s.SelectedModel(context.Background())
		require.NoError(t, err)
		assert.Empty(t, model)
	})
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		ctx := context.Background()
		s := open("")

		user := NewMessage(RoleUser, "What is @\"Docs\" about?")
		reply := NewMessage(RoleAssistant, "It covers the API.")
		reply.Model = "llama3"
		require.NoError(t, s.AppendMessages(ctx, user, reply))
		require.NoError(t, s.AppendMessages(ctx, NewMessage(RoleUser, "thanks")))

		msgs, err := s.LoadHistory(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, user.ID, msgs[0].ID)
		assert.Equal(t, RoleUser, msgs[0].Role)
		assert.Equal(t, user.Text, msgs[0].Text)
		assert.Equal(t, "llama3", msgs[1].Model)
		assert.Equal(t, "thanks", msgs[2].Text)
		assert.WithinDuration(t, user.Timestamp, msgs[0].Timestamp, time.Millisecond)
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		ctx := context.Background()
		first := open("")
		require.NoError(t, first.AppendMessages(ctx, NewMessage(RoleUser, "hello")))
		require.NoError(t, first.SetSelectedModel(ctx, "mistral"))
		require.NoError(t, first.Close())

		second := open("")
		msgs, err := second.LoadHistory(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Text)

		model, err := second.SelectedModel(ctx)
		require.NoError(t, err)
		assert.Equal(t, "mistral", model)
	})
}

func TestStore_ConversationsAreIsolated(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		ctx := context.Background()
		a := open("a")
		b := open("b")
		require.NoError(t, a.AppendMessages(ctx, NewMessage(RoleUser, "in a")))

		msgs, err := b.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestStore_ClearHistoryKeepsModel(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		ctx := context.Background()
		s := open("")
		require.NoError(t, s.SetSelectedModel(ctx, "llama3"))
		require.NoError(t, s.AppendMessages(ctx, NewMessage(RoleUser, "x")))
		require.NoError(t, s.ClearHistory(ctx))

		msgs, err := s.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		model, err := s.SelectedModel(ctx)
		require.NoError(t, err)
		assert.Equal(t, "llama3", model)
	})
}

func TestStore_SetSelectedModel(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		ctx := context.Background()
		s := open("")
		for _, name := range []string{"a", "b", ""} {
			require.NoError(t, s.SetSelectedModel(ctx, name))
			got, err := s.SelectedModel(ctx)
			require.NoError(t, err)
			assert.Equal(t, name, got)
		}
	})
}

func TestStore_RejectsInvalidRole(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		s := open("")
		err := s.AppendMessages(context.Background(), Message{ID: "1", Role: "system", Text: "x"})
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestStore_Closed(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		s := open("")
		require.NoError(t, s.Close())

		_, err := s.LoadHistory(context.Background())
		assert.True(t, errors.Is(err, ErrClosed))
		assert.ErrorIs(t, s.AppendMessages(context.Background(), NewMessage(RoleUser, "x")), ErrClosed)
	})
}

func TestStore_ConcurrentAppends(t *testing.T) {
	backends(t, func(t *testing.T, open func(string) Store) {
		ctx := context.Background()
		s := open("")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.AppendMessages(ctx, NewMessage(RoleUser, fmt.Sprintf("m%d", i))))
			}(i)
		}
		wg.Wait()

		msgs, err := s.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Len(t, msgs, 10)
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendJSON, dir, "")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	s.Close()

	s, err = Open("", dir, "")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open("redis", dir, "")
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestFileStore_ConversationStaysInBaseDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	s, err := NewFileStore(dir, "x/../../escape")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendMessages(context.Background(), NewMessage(RoleUser, "hi")))

	assert.FileExists(t, filepath.Join(dir, "history-x-..-..-escape.json"))
	assert.NoFileExists(t, filepath.Join(root, "escape.json"))

	msgs, err := s.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStoreError_Is(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &StoreError{Message: "store is closed"})
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, errors.Is(err, ErrInvalidMessage))
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No messages.", FormatHistory(nil))

	msg := NewMessage(RoleAssistant, "hi")
	msg.Model = "llama3"
	out := FormatHistory([]Message{msg})
	assert.Contains(t, out, "assistant (llama3):\nhi")
}
