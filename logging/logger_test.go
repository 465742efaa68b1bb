package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger = (*RelayLogger)(nil)
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func newBufferLogger(level LogLevel) (*RelayLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestRelayLogger_WithAttributes(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.With("component", "conversation").With("session_id", "s1").Info("hello", "agent", "a")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0]["msg"])
	assert.Equal(t, "conversation", lines[0]["component"])
	assert.Equal(t, "s1", lines[0]["session_id"])
	assert.Equal(t, "a", lines[0]["agent"])
}

func TestRelayLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "w", lines[0]["msg"])
	assert.Equal(t, "e", lines[1]["msg"])
}

func TestRelayLogger_WithLeavesParentUntouched(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo)
	child := base.With("k", "v")
	base.Info("plain")
	child.Debug("filtered")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	_, ok := lines[0]["k"]
	assert.False(t, ok)
	assert.Equal(t, LogLevelInfo, child.(*RelayLogger).Level())
}

func TestSlogAdapter_With(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, nil))).With("agent", "billing")
	l.Warn("w")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "billing", lines[0]["agent"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))
	l := NewSlogAdapter(slog.Default())
	assert.Equal(t, l, OrNoOp(l))
	assert.Equal(t, NoOpLogger{}, NoOpLogger{}.With("k", "v"))
}
