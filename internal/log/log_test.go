package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "JSON", Component: ComponentViews, Output: &buf})
	l.Debug("hidden")
	l.Info("shown", FieldDay, "2026-03-10")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "views", lines[0][FieldComponent])
	assert.Equal(t, "2026-03-10", lines[0][FieldDay])
	assert.Equal(t, ComponentViews, l.Component())

	buf.Reset()
	New(Config{Output: &buf}).Info("plain")
	assert.Contains(t, buf.String(), "component=app")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogContext_AddsRequestIDOnce(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf})
	ctx := WithRequestID(context.Background(), "req_1")

	l.LogContext(ctx, slog.LevelInfo, "direct")

	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).LogContext(r.Context(), slog.LevelInfo, "scoped")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	for _, m := range lines {
		assert.Equal(t, "req_1", m[FieldRequestID])
	}
	assert.Equal(t, 1, strings.Count(strings.Split(buf.String(), "\n")[1], FieldRequestID))
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, "unknown", l.Component())
}

func TestStructuredLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Component: ComponentHTTP, Output: &buf}))

	sl.LogError(context.Background(), "Request failed", errors.New("boom"), ComponentStorage, OpRead, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0][FieldError])
	assert.Equal(t, OpRead, lines[0][FieldOperation])
}
