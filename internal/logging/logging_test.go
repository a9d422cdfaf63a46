package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexloan-indexer/internal/config"
)

func TestNew_WritesRotatedJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.log")
	cfg := config.LogConfig{Level: "info", Format: "console", File: path, MaxSizeMB: 1}

	logger, err := New(cfg, false)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("batch processed", zap.String("batch_id", "b1"), zap.Int("transactions", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry), "exactly one JSON line expected")
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "batch processed", entry["msg"])
	assert.Equal(t, "b1", entry["batch_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)
}

func TestNew_DevelopmentPanicsOnDPanic(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "error", Format: "json"}, true)
	require.NoError(t, err)
	assert.Panics(t, func() { logger.DPanic("unroutable") })

	prod, err := New(config.LogConfig{Level: "error", Format: "json"}, false)
	require.NoError(t, err)
	assert.NotPanics(t, func() { prod.DPanic("unroutable") })
}
