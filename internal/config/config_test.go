package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
tree:
  file_path: /data/history.ht
  block_size: 4096
  max_children: 10
  start_timestamp: 1000
worker:
  queue_size: 64
  stop_timeout: 5s
server:
  port: 7000
disk:
  enabled: true
  check_interval: 1m
logging:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/history.ht", cfg.Tree.FilePath)
	assert.Equal(t, 4096, cfg.Tree.BlockSize)
	assert.Equal(t, 10, cfg.Tree.MaxChildren)
	assert.Equal(t, int64(1000), cfg.Tree.StartTimestamp)
	assert.Equal(t, 256, cfg.Tree.CacheCapacity)
	assert.Equal(t, 64, cfg.Worker.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Worker.StopTimeout)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Disk.Enabled)
	assert.Equal(t, time.Minute, cfg.Disk.CheckInterval)
	assert.Equal(t, 90.0, cfg.Disk.ThrottleThreshold)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)

	hf := cfg.HistoryFile(nil, nil)
	assert.Equal(t, "/data/history.ht", hf.FilePath)
	assert.Equal(t, 4096, hf.BlockSize)
	assert.Equal(t, int64(1000), hf.StartTimestamp)

	assert.Equal(t, 64, cfg.WorkerOptions().QueueSize)
	assert.Equal(t, "/data", cfg.DiskManager().DataDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad port", body: "server:\n  port: 70000\n"},
		{name: "negative children", body: "tree:\n  max_children: -2\n"},
		{name: "thresholds inverted", body: "disk:\n  throttle_threshold: 99\n  circuit_breaker_threshold: 95\n"},
		{name: "unknown log format", body: "logging:\n  format: xml\n"},
		{name: "not yaml", body: "tree: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64*1024, cfg.Tree.BlockSize)
	assert.Equal(t, 50, cfg.Tree.MaxChildren)
	assert.Equal(t, 1024, cfg.Worker.QueueSize)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_SampleFile(t *testing.T) {
	cfg, err := LoadConfig("../../config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "./data/history.ht", cfg.Tree.FilePath)
	assert.True(t, cfg.Disk.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}
