// Package retention implements the shard pruning sweep left undecided
// by spec.md §9's open question: "Retention (LOG_RETENTION_DAYS) is
// declared in config but no component actually enforces it." This
// package is the chosen resolution — a ticker-driven sweeper that
// deletes shard files older than the configured window.
package retention

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const sweepInterval = time.Hour

// Sweeper periodically deletes shard files under ColdDir whose
// filename-date is older than Days calendar days relative to the
// current local date. A non-positive Days disables the sweep entirely,
// matching the teacher pattern of a zero-value-disables knob
// (`jroosing-HydraDNS/internal/server/rate_limit.go`'s disabled-when-zero
// threshold).
type Sweeper struct {
	ColdDir string
	Days    int
	Logger  *slog.Logger
}

// Run blocks until ctx is cancelled, sweeping once immediately and then
// once per sweepInterval.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Days <= 0 {
		s.Logger.Info("retention sweeper disabled (retention.days <= 0)")
		<-ctx.Done()
		return nil
	}

	s.sweepOnce()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	now := time.Now().Local()
	cutoff := time.Date(now.Year(), now.Month(), now.Day()-s.Days, 0, 0, 0, 0, time.Local)

	entries, err := os.ReadDir(s.ColdDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.Logger.Error("retention: failed to list cold dir", "error", err)
		}
		return
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasSuffix(name, ".db") {
			continue
		}
		date := strings.TrimSuffix(name, ".db")
		t, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			path := filepath.Join(s.ColdDir, name)
			if err := os.Remove(path); err != nil {
				s.Logger.Error("retention: failed to remove expired shard", "path", path, "error", err)
				continue
			}
			s.Logger.Info("retention: removed expired shard", "path", path, "date", date)
			removeSidecars(s.ColdDir, date, s.Logger)
		}
	}
}

// removeSidecars deletes WAL/SHM journal files left behind by the
// storage engine's WAL mode alongside a deleted shard.
func removeSidecars(coldDir, date string, logger *slog.Logger) {
	for _, ext := range []string{"-wal", "-shm"} {
		path := filepath.Join(coldDir, date+".db"+ext)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("retention: failed to remove sidecar file", "path", path, "error", err)
		}
	}
}
