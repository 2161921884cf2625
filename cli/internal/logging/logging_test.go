package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":      slog.LevelDebug,
		"DEV":        slog.LevelDebug,
		"info":       slog.LevelInfo,
		" warning ":  slog.LevelWarn,
		"production": slog.LevelError,
		"":           slog.LevelError,
		"verbose":    slog.LevelError,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestInit_RespectsLogLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("LOG_LEVEL", "info")

	var buf bytes.Buffer
	logger := Init(&buf)
	logger.Debug("hidden")
	slog.Info("shown", "room", "lobby")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown room=lobby")
}

func TestInitFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "call.log")
	logger, closeLog, err := InitFile(path)
	require.NoError(t, err)
	logger.Debug("negotiating")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "negotiating")

	_, closeLog, err = InitFile("")
	require.NoError(t, err)
	assert.NoError(t, closeLog())

	_, _, err = InitFile(filepath.Join(t.TempDir(), "missing", "call.log"))
	assert.Error(t, err)
}
