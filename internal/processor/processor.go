// Package processor implements the batched tail/parse/normalize/insert
// pipeline that consumes the hot buffer written by the receiver and
// writes normalized rows into daily shards.
//
// It is organized the way the teacher's internal/server package splits
// one long-lived loop into single-concern files: tail.go (buffer
// reading), parse.go (regex + timestamp/IP decoding), filter.go (noise
// substrings), batch.go (flush triggers), rotate.go (day boundary),
// stats.go (counters), offset.go (crash-safe progress), and this file
// (state machine wiring).
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forensics/cgnatlog/internal/config"
	"github.com/forensics/cgnatlog/internal/metrics"
	"github.com/forensics/cgnatlog/internal/shard"
)

// State names the processor's position in the state machine of
// spec.md §4.2.7.
type State string

const (
	StateInit         State = "INIT"
	StateOpeningShard State = "OPENING_SHARD"
	StateTailing      State = "TAILING"
	StateFlushing     State = "FLUSHING"
	StateRotating     State = "ROTATING"
	StateShutdown     State = "SHUTDOWN"
)

// Processor is the single-writer stream consumer described in
// spec.md §4.2.
type Processor struct {
	hotBufferPath string
	offsetPath    string
	coldDir       string
	shardCfg      shard.Config

	noiseFilters    []string
	statsFlushEvery int
	tailIdleSleep   time.Duration

	logger *slog.Logger
	stats  *Stats

	current     *shard.Handle
	currentDate string
	b           *batch
	offset      offsetState // persisted (disk) progress, advanced only after commit
	readPos     int64       // in-memory tail position, may run ahead of offset

	state             State
	insertsSinceFlush int
}

// New builds a Processor from configuration. It does not touch the
// filesystem until Run is called.
func New(cfg *config.Config, logger *slog.Logger) *Processor {
	return &Processor{
		hotBufferPath: filepath.Join(cfg.Storage.HotDir, "hot_logs.raw"),
		offsetPath:    filepath.Join(cfg.Storage.ColdDir, ".processor.offset"),
		coldDir:       cfg.Storage.ColdDir,
		shardCfg: shard.Config{
			JournalMode:  cfg.DB.JournalMode,
			Synchronous:  cfg.DB.Synchronous,
			TimeoutMS:    cfg.DB.TimeoutMS,
			CacheSizeKiB: cfg.DB.CacheSizeKiB,
		},
		noiseFilters:    cfg.Processor.NoiseFilters,
		statsFlushEvery: cfg.Processor.StatsFlushEvery,
		tailIdleSleep:   time.Duration(cfg.Processor.TailIdleSleepSec) * time.Second,
		b:               newBatch(cfg.Processor.BatchSize, time.Duration(cfg.Processor.BatchTimeoutSec)*time.Second),
		logger:          logger,
		stats:           NewStats(),
		state:           StateInit,
	}
}

// Stats exposes the running counters for the metrics/API layer.
func (p *Processor) Stats() *Stats { return p.stats }

// Run drives the state machine until ctx is cancelled, then performs a
// terminal flush before returning (spec.md §4.2.7).
func (p *Processor) Run(ctx context.Context) error {
	p.state = StateOpeningShard

	st, err := readOffsetState(p.offsetPath)
	if err != nil {
		return err
	}
	p.offset = st
	p.readPos = st.Offset

	if err := p.openShardForDate(shardDateFor(time.Now())); err != nil {
		return err
	}
	p.state = StateTailing

	var watchEvents <-chan fsnotify.Event
	if watcher, werr := fsnotify.NewWatcher(); werr != nil {
		p.logger.Warn("fsnotify unavailable, falling back to fixed-interval polling", "error", werr)
	} else {
		defer watcher.Close()
		if werr := watcher.Add(filepath.Dir(p.hotBufferPath)); werr != nil {
			p.logger.Warn("fsnotify watch failed, falling back to fixed-interval polling", "error", werr)
		} else {
			watchEvents = watcher.Events
		}
	}

	for {
		select {
		case <-ctx.Done():
			p.state = StateShutdown
			if err := p.commitAndAdvanceOffset(); err != nil {
				p.logger.Error("terminal flush failed", "error", err)
			}
			p.persistStats()
			if p.current != nil {
				p.current.Close()
			}
			p.logger.Info("processor shutdown complete", "stats", p.stats.Snapshot())
			return nil
		default:
		}

		if err := p.maybeRotate(time.Now()); err != nil {
			// Non-fatal: retried every tick until it succeeds (spec.md §7).
			p.logger.Error("day rotation failed, will retry", "error", err)
		}

		advanced, err := p.tick()
		if err != nil {
			p.logger.Error("tick failed", "error", err)
		}

		if !advanced {
			select {
			case <-ctx.Done():
				continue
			case <-watchEvents:
				// Hot buffer directory changed; re-tick immediately instead
				// of waiting out the idle sleep.
			case <-time.After(p.tailIdleSleep):
			}
		}
	}
}

// tick reads whatever new lines are available, parses/filters/batches
// them, and flushes if a trigger has fired. It returns advanced=true if
// any line was read, so the caller can skip the idle sleep.
func (p *Processor) tick() (advanced bool, err error) {
	lines, rotated, err := readLines(p.hotBufferPath, p.readPos)
	if err != nil {
		return false, err
	}
	if rotated {
		p.logger.Warn("hot buffer rotation detected, resetting offset to 0")
		p.readPos = 0
	}
	if len(lines) > 0 {
		advanced = true
	}

	now := time.Now()
	for _, tl := range lines {
		p.stats.LinesProcessed.Add(1)
		// The in-memory tail position advances per line immediately, so
		// this process never re-reads the same bytes into the batch
		// twice even across several flushes within one tick.
		p.readPos = tl.endOffset

		if isNoise(tl.text, p.noiseFilters) {
			p.stats.LinesFiltered.Add(1)
			continue
		}

		rec, perr := ParseLine(tl.text, now)
		if perr != nil {
			p.stats.LinesFailed.Add(1)
			p.logger.Debug("parse failure", "error", perr)
			continue
		}

		p.b.add(rec)
		p.stats.RecordLastLogSeen(rec.Timestamp)

		// Flush exactly at the size threshold rather than after the
		// whole tick, so a 700-line backlog commits in a 500-row batch
		// followed by a 200-row batch, matching spec.md §8's flush law.
		if p.b.shouldFlush() {
			if err := p.commitAndAdvanceOffset(); err != nil {
				return advanced, err
			}
		}
	}

	if p.b.shouldFlush() {
		if err := p.commitAndAdvanceOffset(); err != nil {
			return advanced, err
		}
	}

	return advanced, nil
}

// commitAndAdvanceOffset commits the current batch, and only on success
// advances and persists the offset file to the current read position.
// The on-disk offset only moves once the rows up to it have actually
// committed (spec.md §4.2.1, commit-then-offset); a crash before that
// commit replays the gap from the stale persisted offset on restart.
func (p *Processor) commitAndAdvanceOffset() error {
	if p.b.empty() {
		return nil
	}
	if err := p.flush(); err != nil {
		return err
	}
	p.offset.Offset = p.readPos
	p.offset.BufferSize = p.readPos
	if err := writeOffsetState(p.offsetPath, p.offset); err != nil {
		return fmt.Errorf("processor: persist offset: %w", err)
	}
	return nil
}

// flush commits the pending batch to the current shard without
// touching the offset file; commitAndAdvanceOffset wraps it for callers
// that need the offset advanced afterward.
func (p *Processor) flush() error {
	if p.b.empty() || p.current == nil {
		return nil
	}

	prevState := p.state
	p.state = StateFlushing
	defer func() { p.state = prevState }()

	if err := p.current.InsertBatch(p.b.rows); err != nil {
		return fmt.Errorf("processor: insert batch: %w", err)
	}

	p.stats.LinesInserted.Add(uint64(len(p.b.rows)))
	p.insertsSinceFlush += len(p.b.rows)
	p.b.reset()

	if p.insertsSinceFlush >= p.statsFlushEvery || p.statsFlushEvery <= 0 {
		p.persistStats()
		p.insertsSinceFlush = 0
	}

	return nil
}

// persistStats upserts the heartbeat keys of spec.md §4.2.6 into the
// current shard's processor_stats table.
func (p *Processor) persistStats() {
	snap := p.stats.Snapshot()
	metrics.SyncFromProcessor(snap.LinesProcessed, snap.LinesInserted, snap.LinesFiltered, snap.LinesFailed, snap.Rotations, snap.LastLogSeen)

	if p.current == nil {
		return
	}
	kv := map[string]string{
		"lines_processed": strconv.FormatUint(snap.LinesProcessed, 10),
		"lines_inserted":  strconv.FormatUint(snap.LinesInserted, 10),
		"lines_filtered":  strconv.FormatUint(snap.LinesFiltered, 10),
		"lines_failed":    strconv.FormatUint(snap.LinesFailed, 10),
		"last_log_seen":   strconv.FormatInt(snap.LastLogSeen, 10),
	}
	for k, v := range kv {
		if err := p.current.UpsertStats(k, v); err != nil {
			p.logger.Warn("failed to persist stat", "key", k, "error", err)
		}
	}
}
