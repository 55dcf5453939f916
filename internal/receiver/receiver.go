// Package receiver implements the UDP syslog ingestion endpoint of
// spec.md §4.1: bind one socket, append each datagram to the hot
// buffer file, flush at line granularity.
package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forensics/cgnatlog/internal/config"
	"github.com/forensics/cgnatlog/internal/metrics"
	"github.com/forensics/cgnatlog/internal/pool"
)

const (
	maxDatagramSize = 65535
	readDeadline    = time.Second
	writeRetryDelay = 50 * time.Millisecond
	maxWriteRetries = 5
)

// Stats holds the receiver's running counters (spec.md §4.1,
// "received, written, errors, start time, last-seen timestamp").
type Stats struct {
	Received  atomic.Uint64
	Written   atomic.Uint64
	Errors    atomic.Uint64
	StartTime time.Time

	lastSeenUnix atomic.Int64
}

func (s *Stats) recordSeen(t time.Time) {
	s.lastSeenUnix.Store(t.Unix())
}

// Snapshot is a point-in-time copy for logging/metrics.
type Snapshot struct {
	Received uint64
	Written  uint64
	Errors   uint64
	LastSeen int64
	Uptime   time.Duration
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Received: s.Received.Load(),
		Written:  s.Written.Load(),
		Errors:   s.Errors.Load(),
		LastSeen: s.lastSeenUnix.Load(),
		Uptime:   time.Since(s.StartTime),
	}
}

// Receiver owns the UDP socket and the hot buffer file handle.
type Receiver struct {
	host string
	port int

	hotBufferPath string

	logger *slog.Logger
	stats  *Stats

	bufPool *pool.Pool[[]byte]
}

// New builds a Receiver from configuration. It does not bind the socket
// until Run is called.
func New(cfg *config.Config, logger *slog.Logger) *Receiver {
	return &Receiver{
		host:          cfg.Receiver.Host,
		port:          cfg.Receiver.Port,
		hotBufferPath: filepath.Join(cfg.Storage.HotDir, "hot_logs.raw"),
		logger:        logger,
		stats:         &Stats{StartTime: time.Now()},
		bufPool: pool.New(func() []byte {
			return make([]byte, maxDatagramSize)
		}),
	}
}

// Stats exposes the running counters for the metrics layer.
func (r *Receiver) Stats() *Stats { return r.stats }

// syncMetrics pushes the current snapshot onto the shared Prometheus
// registry. Called roughly once per second (the read-deadline cadence)
// rather than per-datagram.
func (r *Receiver) syncMetrics() {
	snap := r.stats.Snapshot()
	metrics.SyncFromReceiver(snap.Received, snap.Written, snap.Errors, snap.LastSeen)
}

// Run binds the UDP socket and serves until ctx is cancelled. It
// mirrors the teacher's runner.Run shape: a single loop with a bounded
// read timeout, so a cancelled context is observed within one second
// even with no inbound traffic (spec.md §5, grounded also on
// gastrolog's syslog ingester read-deadline loop).
func (r *Receiver) Run(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.ParseIP(r.host), Port: r.port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("receiver: listen udp %s:%d: %w", r.host, r.port, err)
	}
	defer conn.Close()

	if err := os.MkdirAll(filepath.Dir(r.hotBufferPath), 0o755); err != nil {
		return fmt.Errorf("receiver: create hot dir: %w", err)
	}
	bufFile, err := os.OpenFile(r.hotBufferPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("receiver: open hot buffer: %w", err)
	}
	defer bufFile.Close()

	r.logger.Info("receiver listening", "addr", conn.LocalAddr())

	buf := r.bufPool.Get()
	defer r.bufPool.Put(buf)

	lastSync := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.syncMetrics()
			r.logger.Info("receiver shutting down", "stats", r.stats.Snapshot())
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("receiver: set read deadline: %w", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				r.syncMetrics()
				lastSync = time.Now()
				continue
			}
			r.stats.Errors.Add(1)
			r.logger.Warn("udp read error", "error", err)
			continue
		}

		r.stats.Received.Add(1)
		now := time.Now()
		r.stats.recordSeen(now)

		line := decodeLine(buf[:n])
		if line == "" {
			continue
		}

		if err := r.appendLine(bufFile, line); err != nil {
			r.stats.Errors.Add(1)
			r.logger.Error("failed to write datagram to hot buffer, terminating", "error", err)
			return fmt.Errorf("receiver: persistent write failure: %w", err)
		}
		r.stats.Written.Add(1)

		if now.Sub(lastSync) >= readDeadline {
			r.syncMetrics()
			lastSync = now
		}
	}
}

// decodeLine implements spec.md §4.1's "decode as UTF-8 (replacing
// invalid bytes), strip trailing whitespace, discard if empty".
func decodeLine(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "�")
	return strings.TrimRight(s, " \t\r\n")
}

// appendLine writes line+'\n' and flushes, retrying transient errors
// with a short backoff before giving up (spec.md §4.1, "Write errors to
// the buffer file are retried after a short backoff; persistent write
// failure terminates the process").
func (r *Receiver) appendLine(f *os.File, line string) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetryDelay)
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			lastErr = err
			continue
		}
		if err := f.Sync(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}
