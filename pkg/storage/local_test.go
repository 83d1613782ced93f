package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPutGetList(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "transcripts/42/b.jsonl", strings.NewReader("two"), 3, "application/x-ndjson"))
	require.NoError(t, s.Put(ctx, "transcripts/42/a.jsonl", strings.NewReader("one"), -1, ""))
	require.NoError(t, s.Put(ctx, "transcripts/7/a.jsonl", strings.NewReader("other"), -1, ""))

	rc, err := s.Get(ctx, "transcripts/42/a.jsonl")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "one", string(body))

	objects, err := s.List(ctx, "transcripts/42/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "transcripts/42/a.jsonl", objects[0].Key)
	assert.Equal(t, int64(3), objects[1].Size)

	url, err := s.URL(ctx, "transcripts/42/a.jsonl", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))
}

func TestLocalMissingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.URL(ctx, "nope", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.Put(ctx, "../escape", strings.NewReader("x"), 1, ""))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "ftp"})
	assert.Error(t, err)
}
