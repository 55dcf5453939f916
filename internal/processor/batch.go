package processor

import (
	"time"

	"github.com/forensics/cgnatlog/internal/shard"
)

// batch accumulates prepared rows for one shard and tracks flush
// triggers per spec.md §4.2.4: size threshold, or non-empty with the
// timeout elapsed since the last flush (or since creation).
type batch struct {
	rows      []shard.Record
	size      int
	timeout   time.Duration
	lastFlush time.Time
}

func newBatch(size int, timeout time.Duration) *batch {
	return &batch{size: size, timeout: timeout, lastFlush: time.Now()}
}

func (b *batch) add(r shard.Record) {
	b.rows = append(b.rows, r)
}

func (b *batch) empty() bool {
	return len(b.rows) == 0
}

// shouldFlush reports whether the batch has crossed a flush trigger:
// reached its size threshold, or is non-empty and has aged past its
// timeout since the last flush.
func (b *batch) shouldFlush() bool {
	if len(b.rows) >= b.size {
		return true
	}
	return !b.empty() && time.Since(b.lastFlush) >= b.timeout
}

// reset clears the batch and starts a new flush-timeout window. Called
// only after a successful commit.
func (b *batch) reset() {
	b.rows = b.rows[:0]
	b.lastFlush = time.Now()
}
