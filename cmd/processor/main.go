// Command processor runs the tail/parse/normalize/insert pipeline,
// consuming the hot buffer and writing into per-day shards, and the
// retention sweeper that prunes shards past their retention window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/forensics/cgnatlog/internal/config"
	"github.com/forensics/cgnatlog/internal/logging"
	"github.com/forensics/cgnatlog/internal/metrics"
	"github.com/forensics/cgnatlog/internal/processor"
	"github.com/forensics/cgnatlog/internal/retention"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath  string
	metricsPort int
	debug       bool
	jsonLogs    bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.IntVar(&f.metricsPort, "metrics-port", 9101, "Port to serve /metrics on")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.metricsPort != 0 {
		cfg.Metrics.Port = f.metricsPort
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
	logger.Info("processor starting", "hot_dir", cfg.Storage.HotDir, "cold_dir", cfg.Storage.ColdDir,
		"batch_size", cfg.Processor.BatchSize, "retention_days", cfg.Retention.Days)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsSrv := metrics.NewServer(cfg.Metrics.Host, cfg.Metrics.Port)
	logger.Info("metrics listening", "addr", metricsSrv.Addr())
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	p := processor.New(cfg, logger)
	sweeper := &retention.Sweeper{ColdDir: cfg.Storage.ColdDir, Days: cfg.Retention.Days, Logger: logger}

	var wg sync.WaitGroup
	var sweepErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepErr = sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	runErr := p.Run(ctx)
	cancel()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("processor exited with error: %w", runErr)
	}
	if sweepErr != nil {
		return fmt.Errorf("retention sweeper exited with error: %w", sweepErr)
	}
	return nil
}
