// Command queryhost serves the thin forensic query API: search,
// daily-summary, available-dates, chart-aggregates, and /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forensics/cgnatlog/internal/apihost"
	"github.com/forensics/cgnatlog/internal/config"
	"github.com/forensics/cgnatlog/internal/logging"
	"github.com/forensics/cgnatlog/internal/query"
	"github.com/forensics/cgnatlog/internal/shard"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	host       string
	port       int
	debug      bool
	jsonLogs   bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.host, "host", "", "Override API bind host")
	flag.IntVar(&f.port, "port", 0, "Override API bind port")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.API.Host = f.host
	}
	if f.port != 0 {
		cfg.API.Port = f.port
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shardCfg := shard.Config{
		JournalMode:  cfg.DB.JournalMode,
		Synchronous:  cfg.DB.Synchronous,
		TimeoutMS:    cfg.DB.TimeoutMS,
		CacheSizeKiB: cfg.DB.CacheSizeKiB,
	}
	eng := query.New(cfg.Storage.ColdDir, shardCfg, logger)
	srv := apihost.New(cfg, eng, logger)

	logger.Info("queryhost starting", "addr", srv.Addr())

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("queryhost server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("queryhost shutdown: %w", err)
	}
	logger.Info("queryhost stopped")
	return nil
}
