package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSettingsDetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pollers: []\n"), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	result := make(chan error, 1)
	go func() {
		result <- watchSettings(context.Background(), path, logger)
	}()

	// Give the watcher time to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("pollers: [] # edited\n"), 0o600))

	select {
	case err := <-result:
		assert.True(t, errors.Is(err, errSettingsChanged))
	case <-time.After(5 * time.Second):
		t.Fatal("settings change not detected")
	}
}

func TestWatchSettingsIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pollers: []\n"), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() {
		result <- watchSettings(ctx, path, logger)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x\n"), 0o600))
	time.Sleep(200 * time.Millisecond)

	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}
