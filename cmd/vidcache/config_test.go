package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := writeConfig(t, `
save-threshold = 5
log_level = "debug"

[update]
workers = 3
exclude-ext = ["txt", "nfo"]
`)

	t.Run("values applied", func(t *testing.T) {
		var cli CLI
		parser, err := newParser(&cli, io.Discard, io.Discard)
		require.NoError(t, err)

		_, err = parser.Parse([]string{"--config", cfg, "update", "/videos"})
		require.NoError(t, err)

		assert.Equal(t, uint32(5), cli.SaveThreshold)
		assert.Equal(t, "debug", cli.LogLevel)
		assert.Equal(t, 3, cli.Update.Workers)
		assert.Equal(t, []string{"txt", "nfo"}, cli.Update.ExcludeExt)
		assert.Equal(t, []string{"/videos"}, cli.Update.Src)
	})

	t.Run("command line wins", func(t *testing.T) {
		var cli CLI
		parser, err := newParser(&cli, io.Discard, io.Discard)
		require.NoError(t, err)

		_, err = parser.Parse([]string{"--config", cfg, "--save-threshold", "7", "update", "--workers", "2", "/videos"})
		require.NoError(t, err)

		assert.Equal(t, uint32(7), cli.SaveThreshold)
		assert.Equal(t, 2, cli.Update.Workers)
	})

	t.Run("command table not applied to other commands", func(t *testing.T) {
		var cli CLI
		parser, err := newParser(&cli, io.Discard, io.Discard)
		require.NoError(t, err)

		_, err = parser.Parse([]string{"--config", cfg, "stats"})
		require.NoError(t, err)

		assert.Equal(t, 1, cli.Update.Workers)
	})
}

func TestConfigFileInvalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := writeConfig(t, "save-threshold = [")

	var cli CLI
	parser, err := newParser(&cli, io.Discard, io.Discard)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--config", cfg, "stats"})
	require.Error(t, err)
}

func TestLookup(t *testing.T) {
	values := map[string]any{
		"cache-file":  "a.db",
		"log_level":   "warn",
		"exclude-ext": []any{"txt", "nfo"},
		"update":      map[string]any{"workers": int64(2)},
	}

	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{name: "cache-file", want: "a.db", wantOK: true},
		{name: "log-level", want: "warn", wantOK: true},
		{name: "exclude-ext", want: "txt,nfo", wantOK: true},
		{name: "update"},
		{name: "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lookup(values, tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTomlLoaderRejectsGarbage(t *testing.T) {
	_, err := tomlLoader(strings.NewReader("= nope"))
	require.Error(t, err)
}
