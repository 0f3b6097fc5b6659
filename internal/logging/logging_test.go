package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/sentinel/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, domain.LoggingConfig{Level: "info", Format: "json"})

	logger.Debug("hidden")
	logger.Info("transaction evaluated", "tx_id", "tx-1", "decision", "BLOCK")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "transaction evaluated", entry["msg"])
	assert.Equal(t, "tx-1", entry["tx_id"])
	assert.Equal(t, "BLOCK", entry["decision"])
}

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, domain.LoggingConfig{Level: "debug", Format: "text"})

	logger.Debug("checkpoint written", "stage", "SCORED")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, `msg="checkpoint written"`)
	assert.Contains(t, out, "stage=SCORED")
}
