package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSetup(t *testing.T) {
	// Reset logger for testing
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", "json")
	require.NotNil(t, logger)
	assert.Same(t, logger, Get())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "text")
	l.Info("hello", "k", "v")

	assert.True(t, strings.Contains(buf.String(), "msg=hello"))
	assert.True(t, strings.Contains(buf.String(), "k=v"))
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("dropped")

	assert.Zero(t, buf.Len())
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("webhook").Info("hello")
	out := decodeLine(t, &buf)
	assert.Equal(t, "webhook", out["component"])
	assert.Equal(t, "hello", out["msg"])
}

func TestPackageLevelHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	Warn("careful", "k", "v")
	out := decodeLine(t, &buf)
	assert.Equal(t, "WARN", out["level"])
	assert.Equal(t, "v", out["k"])
}
