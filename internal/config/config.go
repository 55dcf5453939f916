package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// defaultNoiseFilters matches the survivors of the scenario in spec.md §8.3:
// DNS lookups against well-known resolvers are filtered by default.
var defaultNoiseFilters = []string{"->8.8.8.8:53", "->1.1.1.1:53"}

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding.
	// Uses CGNATLOG_ prefix: CGNATLOG_STORAGE_HOT_DIR -> storage.hot_dir
	v.SetEnvPrefix("CGNATLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.hot_dir", "./hot")
	v.SetDefault("storage.cold_dir", "./cold")
	v.SetDefault("storage.users_db_path", "users.db")

	// Receiver defaults
	v.SetDefault("receiver.host", "0.0.0.0")
	v.SetDefault("receiver.port", 5514)

	// Processor defaults
	v.SetDefault("processor.batch_size", 500)
	v.SetDefault("processor.batch_timeout_sec", 10)
	v.SetDefault("processor.noise_filters", defaultNoiseFilters)
	v.SetDefault("processor.stats_flush_every", 500)
	v.SetDefault("processor.tail_idle_sleep_sec", 1)

	// DB defaults
	v.SetDefault("db.timeout_ms", 5000)
	v.SetDefault("db.journal_mode", "WAL")
	v.SetDefault("db.synchronous", "NORMAL")
	v.SetDefault("db.cache_size_kib", 64*1024)

	// Retention defaults
	v.SetDefault("retention.days", 0) // disabled unless operator opts in

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// API defaults
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8088)

	// Metrics defaults. Each binary's cmd/ package overrides the port
	// via its own -metrics-port flag default so receiver and processor
	// don't collide when run on the same host.
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9100)

	// Audit defaults
	v.SetDefault("audit.enable_audit_log", false)
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadStorageConfig(v, cfg)
	loadReceiverConfig(v, cfg)
	loadProcessorConfig(v, cfg)
	loadDBConfig(v, cfg)
	loadRetentionConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)
	loadMetricsConfig(v, cfg)
	loadAuditConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadStorageConfig(v *viper.Viper, cfg *Config) {
	cfg.Storage.HotDir = v.GetString("storage.hot_dir")
	cfg.Storage.ColdDir = v.GetString("storage.cold_dir")
	cfg.Storage.UsersDBPath = v.GetString("storage.users_db_path")
}

func loadReceiverConfig(v *viper.Viper, cfg *Config) {
	cfg.Receiver.Host = v.GetString("receiver.host")
	cfg.Receiver.Port = v.GetInt("receiver.port")
}

func loadProcessorConfig(v *viper.Viper, cfg *Config) {
	cfg.Processor.BatchSize = v.GetInt("processor.batch_size")
	cfg.Processor.BatchTimeoutSec = v.GetInt("processor.batch_timeout_sec")
	cfg.Processor.NoiseFilters = getStringSliceOrSplit(v, "processor.noise_filters")
	cfg.Processor.StatsFlushEvery = v.GetInt("processor.stats_flush_every")
	cfg.Processor.TailIdleSleepSec = v.GetInt("processor.tail_idle_sleep_sec")
}

func loadDBConfig(v *viper.Viper, cfg *Config) {
	cfg.DB.TimeoutMS = v.GetInt("db.timeout_ms")
	cfg.DB.JournalMode = strings.ToUpper(v.GetString("db.journal_mode"))
	cfg.DB.Synchronous = strings.ToUpper(v.GetString("db.synchronous"))
	cfg.DB.CacheSizeKiB = v.GetInt("db.cache_size_kib")
}

func loadRetentionConfig(v *viper.Viper, cfg *Config) {
	cfg.Retention.Days = v.GetInt("retention.days")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
}

func loadMetricsConfig(v *viper.Viper, cfg *Config) {
	cfg.Metrics.Host = v.GetString("metrics.host")
	cfg.Metrics.Port = v.GetInt("metrics.port")
}

func loadAuditConfig(v *viper.Viper, cfg *Config) {
	cfg.Audit.Enabled = v.GetBool("audit.enable_audit_log")
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			if s = strings.TrimSpace(s); s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Receiver.Port <= 0 || cfg.Receiver.Port > 65535 {
		return errors.New("receiver.port must be 1..65535")
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return errors.New("api.port must be 1..65535")
	}

	if cfg.Processor.BatchSize <= 0 {
		cfg.Processor.BatchSize = 500
	}
	if cfg.Processor.BatchTimeoutSec <= 0 {
		cfg.Processor.BatchTimeoutSec = 10
	}
	if cfg.Processor.StatsFlushEvery <= 0 {
		cfg.Processor.StatsFlushEvery = 500
	}
	if cfg.Processor.TailIdleSleepSec <= 0 {
		cfg.Processor.TailIdleSleepSec = 1
	}

	switch cfg.DB.JournalMode {
	case "":
		cfg.DB.JournalMode = "WAL"
	case "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF":
	default:
		return fmt.Errorf("db.journal_mode %q is not a recognized SQLite journal mode", cfg.DB.JournalMode)
	}

	switch cfg.DB.Synchronous {
	case "":
		cfg.DB.Synchronous = "NORMAL"
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("db.synchronous %q is not a recognized SQLite synchronous mode", cfg.DB.Synchronous)
	}
	if cfg.DB.TimeoutMS <= 0 {
		cfg.DB.TimeoutMS = 5000
	}
	if cfg.DB.CacheSizeKiB <= 0 {
		cfg.DB.CacheSizeKiB = 64 * 1024
	}

	if cfg.Storage.HotDir == "" {
		cfg.Storage.HotDir = "./hot"
	}
	if cfg.Storage.ColdDir == "" {
		cfg.Storage.ColdDir = "./cold"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}

	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "0.0.0.0"
	}
	if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
		cfg.Metrics.Port = 9100
	}

	return nil
}
