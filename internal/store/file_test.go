package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_Fetch(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Should return the file contents", func(t *testing.T) {
		// Arrange
		path := filepath.Join(t.TempDir(), "flags.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"features":[]}`), 0o600))
		src := NewFileSource(logger, path)

		// Act
		data, err := src.Fetch(t.Context())

		// Assert
		require.NoError(t, err)
		assert.JSONEq(t, `{"features":[]}`, string(data))
		assert.Equal(t, "file", src.Name())
	})

	t.Run("Should report a missing file as empty source", func(t *testing.T) {
		src := NewFileSource(logger, filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := src.Fetch(t.Context())

		assert.ErrorIs(t, err, ErrSourceEmpty)
	})

	t.Run("Should report a zero-length file as empty source", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "flags.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		_, err := NewFileSource(logger, path).Fetch(t.Context())

		assert.ErrorIs(t, err, ErrSourceEmpty)
	})

	t.Run("Should honor a cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := NewFileSource(logger, "flags.json").Fetch(ctx)

		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Should panic on empty path", func(t *testing.T) {
		assert.Panics(t, func() { NewFileSource(logger, "") })
	})
}

func TestFileSource_Watch(t *testing.T) {
	t.Parallel()

	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":[]}`), 0o600))

	src := NewFileSource(slog.New(slog.NewTextHandler(io.Discard, nil)), path)

	var notified atomic.Int32
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx, func() { notified.Add(1) }) }()

	// Act: keep touching the file until the watcher (registered asynchronously) sees it.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"features":[{"key":"x","enabled":true}]}`), 0o600)
		return notified.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	// Unrelated files in the same directory are ignored. WriteFile truncates
	// and then writes, so wait for the trailing events before sampling.
	before := waitQuiet(t, &notified, 200*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, notified.Load())

	// Assert: cancellation stops the watch cleanly
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

// waitQuiet returns the counter once it has not moved for a full quiet period.
func waitQuiet(t *testing.T, counter *atomic.Int32, quiet time.Duration) int32 {
	t.Helper()

	var settled int32
	require.Eventually(t, func() bool {
		n := counter.Load()
		time.Sleep(quiet)
		settled = counter.Load()
		return settled == n
	}, 5*time.Second, 10*time.Millisecond, "watch notifications never settled")
	return settled
}
