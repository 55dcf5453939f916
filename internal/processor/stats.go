package processor

import (
	"sync/atomic"
	"time"
)

// Stats holds the processor's running counters. Mirrors the shape of
// the teacher's atomic-counter DNSStats: plain fields of atomic types,
// read via Snapshot for reporting (metrics, processor_stats heartbeat).
type Stats struct {
	LinesProcessed atomic.Uint64
	LinesInserted  atomic.Uint64
	LinesFiltered  atomic.Uint64
	LinesFailed    atomic.Uint64
	Rotations      atomic.Uint64
	StartTime      time.Time

	lastLogSeen atomic.Int64 // unix seconds, 0 == none yet
}

// NewStats returns a Stats with StartTime set to now.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// RecordLastLogSeen updates the most-recent-parsed-record timestamp if
// ts is newer than what's currently recorded.
func (s *Stats) RecordLastLogSeen(ts int64) {
	for {
		cur := s.lastLogSeen.Load()
		if ts <= cur {
			return
		}
		if s.lastLogSeen.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// LastLogSeen returns the most recent successfully parsed record
// timestamp, or 0 if none yet.
func (s *Stats) LastLogSeen() int64 {
	return s.lastLogSeen.Load()
}

// Snapshot is a point-in-time, non-atomic copy suitable for
// serialization into processor_stats or the /metrics handler.
type Snapshot struct {
	LinesProcessed uint64
	LinesInserted  uint64
	LinesFiltered  uint64
	LinesFailed    uint64
	Rotations      uint64
	LastLogSeen    int64
	UptimeSeconds  float64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		LinesProcessed: s.LinesProcessed.Load(),
		LinesInserted:  s.LinesInserted.Load(),
		LinesFiltered:  s.LinesFiltered.Load(),
		LinesFailed:    s.LinesFailed.Load(),
		Rotations:      s.Rotations.Load(),
		LastLogSeen:    s.LastLogSeen(),
		UptimeSeconds:  time.Since(s.StartTime).Seconds(),
	}
}
