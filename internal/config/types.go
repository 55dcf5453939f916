// Package config provides configuration loading for the cgnatlog pipeline
// using Viper.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see the cmd/ binaries)
//  2. Environment variables (CGNATLOG_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables use CGNATLOG_CATEGORY_SETTING format, e.g.
// CGNATLOG_STORAGE_HOT_DIR maps to storage.hot_dir in YAML.
package config

import (
	"os"
	"strings"
)

// StorageConfig locates the hot buffer and cold shard directories.
type StorageConfig struct {
	HotDir      string `yaml:"hot_dir"       mapstructure:"hot_dir"`
	ColdDir     string `yaml:"cold_dir"      mapstructure:"cold_dir"`
	UsersDBPath string `yaml:"users_db_path" mapstructure:"users_db_path"` // owned by the UI collaborator; passed through untouched
}

// ReceiverConfig controls the UDP syslog ingestion endpoint.
type ReceiverConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// ProcessorConfig controls batching, filtering, and rotation behavior.
type ProcessorConfig struct {
	BatchSize        int      `yaml:"batch_size"          mapstructure:"batch_size"`
	BatchTimeoutSec  int      `yaml:"batch_timeout_sec"   mapstructure:"batch_timeout_sec"`
	NoiseFilters     []string `yaml:"noise_filters"       mapstructure:"noise_filters"`
	StatsFlushEvery  int      `yaml:"stats_flush_every"   mapstructure:"stats_flush_every"` // heartbeat at least every N inserts
	TailIdleSleepSec int      `yaml:"tail_idle_sleep_sec" mapstructure:"tail_idle_sleep_sec"`
}

// DBConfig controls per-shard SQLite connection tuning.
type DBConfig struct {
	TimeoutMS    int    `yaml:"timeout_ms"     mapstructure:"timeout_ms"`
	JournalMode  string `yaml:"journal_mode"   mapstructure:"journal_mode"`
	Synchronous  string `yaml:"synchronous"    mapstructure:"synchronous"`
	CacheSizeKiB int    `yaml:"cache_size_kib" mapstructure:"cache_size_kib"`
}

// RetentionConfig controls the shard pruning sweep.
type RetentionConfig struct {
	Days int `yaml:"days" mapstructure:"days"` // <= 0 disables the sweep
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// APIConfig controls the thin Query API host (internal/apihost).
type APIConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// MetricsConfig controls the per-process /metrics listener started by
// each long-running binary (receiver, processor). Each binary is a
// separate OS process with its own in-memory counters, so each binds
// its own listener; the receiver and processor cmd/ packages default
// this to different ports (see their -metrics-port flags) so both can
// run on one host without a config override.
type MetricsConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// AuditConfig is accepted for compatibility with the external UI
// collaborator's audit log feature. The core pipeline never reads it.
type AuditConfig struct {
	Enabled bool `yaml:"enable_audit_log" mapstructure:"enable_audit_log"`
}

// Config is the root configuration structure.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"   mapstructure:"storage"`
	Receiver  ReceiverConfig  `yaml:"receiver"  mapstructure:"receiver"`
	Processor ProcessorConfig `yaml:"processor" mapstructure:"processor"`
	DB        DBConfig        `yaml:"db"        mapstructure:"db"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	Logging   LoggingConfig   `yaml:"logging"   mapstructure:"logging"`
	API       APIConfig       `yaml:"api"       mapstructure:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"   mapstructure:"metrics"`
	Audit     AuditConfig     `yaml:"audit"     mapstructure:"audit"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("CGNATLOG_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (CGNATLOG_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
