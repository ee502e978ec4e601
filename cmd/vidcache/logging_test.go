package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := newLogger(&Globals{LogLevel: "info", LogFormat: "json"}, &buf)
		require.NoError(t, err)
		t.Cleanup(func() { _ = closer.Close() })

		logger.Debug("hidden")
		logger.Info("hello", "path", "/videos/a.mp4")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "/videos/a.mp4", entry["path"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _, err := newLogger(&Globals{LogLevel: "warn", LogFormat: "text"}, &buf)
		require.NoError(t, err)

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	t.Run("tint", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _, err := newLogger(&Globals{LogLevel: "info", LogFormat: "tint"}, &buf)
		require.NoError(t, err)

		logger.Info("tinted")
		assert.Contains(t, buf.String(), "tinted")
	})

	t.Run("file", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "vidcache.log")
		logger, closer, err := newLogger(&Globals{LogLevel: "info", LogFormat: "text", LogFile: path}, &buf)
		require.NoError(t, err)

		logger.Info("to file")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
		assert.Empty(t, buf.String())
	})

	t.Run("bad level", func(t *testing.T) {
		_, _, err := newLogger(&Globals{LogLevel: "loud"}, &bytes.Buffer{})
		require.Error(t, err)
	})
}

func TestStartMetricsDisabled(t *testing.T) {
	shutdown, err := startMetrics(context.Background(), &Globals{}, nil)
	require.NoError(t, err)
	shutdown()
}
