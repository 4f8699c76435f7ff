package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpn/hpn-unillm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter_JSONRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"})

	logger.Debug("hidden")
	logger.Info("sending", slog.String("api_key", "sk-abcdefghijklmnopqrstuvwxyz"), slog.Int("prompt_tokens", 12))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sending", entry["msg"])
	assert.NotContains(t, buf.String(), "sk-abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, float64(12), entry["prompt_tokens"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"})

	logger.Debug("attempt", slog.Int("n", 2))
	assert.Contains(t, buf.String(), "msg=attempt")
	assert.Contains(t, buf.String(), "n=2")
}

func TestNew_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unillm.log")
	logger, closer, err := New(config.LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	logger.Info("written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written"`)
}

func TestNew_BadOutputPath(t *testing.T) {
	_, _, err := New(config.LoggingConfig{OutputPath: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
