package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_ConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.File = filepath.Join(t.TempDir(), "engine.log")
	cfg.Compress = false

	l, err := newWithConsole(cfg, &console)
	require.NoError(t, err)

	l.Info("trade executed", zap.String("instrument", "mint"))
	l.Debug("hidden")
	_ = l.Sync()

	assert.Contains(t, console.String(), "trade executed")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "trade executed", entry["msg"])
	assert.Equal(t, "mint", entry["instrument"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithOperation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := zap.New(core)

	WithOperation(l, "buy").Info("a")
	WithOperation(l, "buy").Info("b")

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	second := entries[1].ContextMap()
	assert.Equal(t, "buy", first["operation"])
	assert.NotEmpty(t, first["correlation_id"])
	assert.NotEqual(t, first["correlation_id"], second["correlation_id"])
}

func TestWithInstrument(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	WithInstrument(zap.New(core), "mint-1").Info("snapshot")

	require.Equal(t, 1, logs.FilterField(zap.String("instrument", "mint-1")).Len())
}

func TestTrackPerformance(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	end := TrackPerformance(zap.New(core), "restore")
	end()

	require.Equal(t, 2, logs.Len())
	assert.Contains(t, logs.All()[1].ContextMap(), "duration")
}
