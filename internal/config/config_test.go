package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CGNATLOG_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Receiver.Host)
	assert.Equal(t, 5514, cfg.Receiver.Port)
	assert.Equal(t, 500, cfg.Processor.BatchSize)
	assert.Equal(t, 10, cfg.Processor.BatchTimeoutSec)
	assert.Equal(t, "WAL", cfg.DB.JournalMode)
	assert.Equal(t, "NORMAL", cfg.DB.Synchronous)
	assert.Equal(t, 0, cfg.Retention.Days)
	assert.Contains(t, cfg.Processor.NoiseFilters, "->8.8.8.8:53")
}

func TestLoadFromFile(t *testing.T) {
	content := `
storage:
  hot_dir: "/data/hot"
  cold_dir: "/data/cold"

receiver:
  host: "127.0.0.1"
  port: 6514

processor:
  batch_size: 250
  batch_timeout_sec: 5
  noise_filters:
    - "->9.9.9.9:53"

db:
  journal_mode: "delete"
  synchronous: "full"

retention:
  days: 90

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/hot", cfg.Storage.HotDir)
	assert.Equal(t, "/data/cold", cfg.Storage.ColdDir)
	assert.Equal(t, "127.0.0.1", cfg.Receiver.Host)
	assert.Equal(t, 6514, cfg.Receiver.Port)
	assert.Equal(t, 250, cfg.Processor.BatchSize)
	assert.Equal(t, 5, cfg.Processor.BatchTimeoutSec)
	assert.Equal(t, []string{"->9.9.9.9:53"}, cfg.Processor.NoiseFilters)
	assert.Equal(t, "DELETE", cfg.DB.JournalMode)
	assert.Equal(t, "FULL", cfg.DB.Synchronous)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("receiver:\n  port: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidReceiverPort(t *testing.T) {
	content := "receiver:\n  port: 0\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidJournalMode(t *testing.T) {
	content := "db:\n  journal_mode: \"bogus\"\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CGNATLOG_RECEIVER_HOST", "192.168.1.1")
	t.Setenv("CGNATLOG_RECEIVER_PORT", "8053")
	t.Setenv("CGNATLOG_PROCESSOR_BATCH_SIZE", "100")
	t.Setenv("CGNATLOG_RETENTION_DAYS", "30")
	t.Setenv("CGNATLOG_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Receiver.Host)
	assert.Equal(t, 8053, cfg.Receiver.Port)
	assert.Equal(t, 100, cfg.Processor.BatchSize)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
