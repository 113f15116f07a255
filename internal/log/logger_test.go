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

func resetGlobal() {
	logger = nil
	once = sync.Once{}
}

func TestSetupWriterJSON(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	var buf bytes.Buffer
	SetupWriter(&buf, "DEBUG", "json")
	require.NotNil(t, logger)

	Debug("probe", "k", "v")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "probe", out["msg"])
	assert.Equal(t, "v", out["k"])
}

func TestSetupWriterText(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "text")
	Info("hello")
	Debug("hidden")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestSetupOnlyOnce(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	var first, second bytes.Buffer
	SetupWriter(&first, "INFO", "json")
	SetupWriter(&second, "INFO", "json")
	Info("once")

	assert.NotEmpty(t, first.String())
	assert.Empty(t, second.String())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(resetGlobal)

	WithCapability(WithAttempt("a-1"), "camera").Info("hello")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "a-1", out["attempt_id"])
	assert.Equal(t, "camera", out["capability"])

	buf.Reset()
	WithComponent("dispatch").Warn("careful")
	line := strings.TrimSpace(buf.String())
	require.NoError(t, json.Unmarshal([]byte(line), &out))
	assert.Equal(t, "dispatch", out["component"])
	assert.Equal(t, "WARN", out["level"])
}
