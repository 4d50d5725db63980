package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_RotatesAndWrites(t *testing.T) {
	dir := t.TempDir()
	serverPath := filepath.Join(dir, "logs", "server.log")
	reqPath := filepath.Join(dir, "logs", "requests.log")

	require.NoError(t, os.MkdirAll(filepath.Dir(serverPath), 0o755))
	require.NoError(t, os.WriteFile(serverPath, []byte("previous run\n"), 0o644))

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cleanup, err := Init(Config{Path: serverPath, Level: "DEBUG"}, Config{Path: reqPath, Level: "INFO"})
	require.NoError(t, err)

	slog.Debug("grid built", "cells", 12)
	RequestLogger.Info("Request Processed", "path", "/health")
	cleanup()

	old, err := os.ReadFile(serverPath + ".old")
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(old))

	current, err := os.ReadFile(serverPath)
	require.NoError(t, err)
	assert.Contains(t, string(current), "grid built")

	reqs, err := os.ReadFile(reqPath)
	require.NoError(t, err)
	assert.Contains(t, string(reqs), "/health")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestTraceLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("trace"))

	dir := t.TempDir()
	cleanup, err := Init(
		Config{Path: filepath.Join(dir, "s.log"), Level: "TRACE"},
		Config{Path: filepath.Join(dir, "r.log"), Level: "INFO"},
	)
	require.NoError(t, err)
	defer cleanup()
	defer SetTrace(false)

	assert.True(t, TraceEnabled())
	SetTrace(false)
	assert.False(t, TraceEnabled())
}
