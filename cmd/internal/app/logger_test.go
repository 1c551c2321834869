package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLogLevel(tc.in), tc.in)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	newLogger(&buf, LogConfig{Level: "info", Format: "json"}).Info("server.start", "addr", ":8080")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "server.start", line["msg"])

	buf.Reset()
	newLogger(&buf, LogConfig{Level: "warn", Format: "TEXT"}).Info("dropped")
	assert.Empty(t, buf.String())

	newLogger(&buf, LogConfig{Level: "warn", Format: "text"}).Warn("kept")
	assert.True(t, strings.Contains(buf.String(), "msg=kept"))
}
