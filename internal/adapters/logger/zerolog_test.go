package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" Error ", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestZeroLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: "json", Output: &buf})

	l.Info(context.Background(), "signal emitted", map[string]interface{}{"type": "FVG", "bar": 42})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "signal emitted", entry["message"])
	assert.Equal(t, "FVG", entry["type"])
	assert.Equal(t, float64(42), entry["bar"])
	assert.Contains(t, entry, "time")
}

func TestZeroLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	ctx := context.Background()
	l.Debug(ctx, "hidden")
	l.Info(ctx, "hidden")
	l.Warn(ctx, "shown")
	l.Error(ctx, errors.New("boom"), "also shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "shown")
	assert.Contains(t, lines[1], `"error":"boom"`)
}

func TestZeroLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf}).With(map[string]interface{}{"run_id": "abc"})

	l.Info(context.Background(), "started")
	assert.Contains(t, buf.String(), `"run_id":"abc"`)
}
