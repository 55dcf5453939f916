// Command receiver runs the UDP syslog ingestion endpoint: bind one
// socket, append every datagram to the hot buffer file.
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
	"github.com/forensics/cgnatlog/internal/receiver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath  string
	host        string
	port        int
	metricsPort int
	debug       bool
	jsonLogs    bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.host, "host", "", "Override receiver bind host")
	flag.IntVar(&f.port, "port", 0, "Override receiver bind port")
	flag.IntVar(&f.metricsPort, "metrics-port", 9100, "Port to serve /metrics on")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.Receiver.Host = f.host
	}
	if f.port != 0 {
		cfg.Receiver.Port = f.port
	}
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
	logger.Info("receiver starting", "host", cfg.Receiver.Host, "port", cfg.Receiver.Port, "hot_dir", cfg.Storage.HotDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsSrv := metrics.NewServer(cfg.Metrics.Host, cfg.Metrics.Port)
	logger.Info("metrics listening", "addr", metricsSrv.Addr())
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
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

	r := receiver.New(cfg, logger)
	runErr := r.Run(ctx)
	cancel()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("receiver exited with error: %w", runErr)
	}
	return nil
}
