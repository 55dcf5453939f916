package processor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/forensics/cgnatlog/internal/shard"
)

const shardDateLayout = "2006-01-02"

func shardDateFor(t time.Time) string {
	return t.Format(shardDateLayout)
}

func shardPath(coldDir, date string) string {
	return filepath.Join(coldDir, date+".db")
}

// openShardForDate opens (creating if necessary) the shard for date,
// closing any previously open handle first. It is used both at startup
// (OPENING_SHARD) and at day rotation (spec.md §4.2.5).
func (p *Processor) openShardForDate(date string) error {
	if p.current != nil {
		if err := p.current.Close(); err != nil {
			p.logger.Warn("error closing previous shard", "date", p.currentDate, "error", err)
		}
		p.current = nil
	}

	h, err := shard.Open(shardPath(p.coldDir, date), date, p.shardCfg)
	if err != nil {
		return fmt.Errorf("processor: open shard %s: %w", date, err)
	}
	p.current = h
	p.currentDate = date
	return nil
}

// maybeRotate checks the wall-clock day against the currently open
// shard and, on change, flushes the pending batch into the PREVIOUS
// shard before opening the new one — never the other way around
// (spec.md §4.2.5, law: "the batch is committed to the previous day's
// shard, not the next").
func (p *Processor) maybeRotate(now time.Time) error {
	today := shardDateFor(now)
	if p.currentDate == "" || p.currentDate == today {
		return nil
	}

	if err := p.commitAndAdvanceOffset(); err != nil {
		return fmt.Errorf("processor: flush before rotation: %w", err)
	}
	if p.current != nil {
		p.persistStats()
	}

	if err := p.openShardForDate(today); err != nil {
		return err
	}
	p.stats.Rotations.Add(1)
	p.logger.Info("rotated shard", "date", today)
	return nil
}
