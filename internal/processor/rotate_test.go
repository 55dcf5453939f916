package processor

import (
	"context"
	"testing"
	"time"

	"github.com/forensics/cgnatlog/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeRotateCommitsToOldShardNotNew(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, discardLogger())

	day1 := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	require.NoError(t, p.openShardForDate(shardDateFor(day1)))
	p.b.add(sampleRecordAt(day1))

	day2 := time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC)
	require.NoError(t, p.maybeRotate(day2))

	assert.Equal(t, shardDateFor(day2), p.currentDate)

	oldShard, err := shard.Open(shardPath(cfg.Storage.ColdDir, shardDateFor(day1)), shardDateFor(day1), p.shardCfg)
	require.NoError(t, err)
	defer oldShard.Close()

	rows, err := oldShard.Query(context.Background(), shard.Filter{StartUnix: 0, EndUnix: 1 << 62})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "pending batch must land in the previous day's shard")

	newRows, err := p.current.Query(context.Background(), shard.Filter{StartUnix: 0, EndUnix: 1 << 62})
	require.NoError(t, err)
	assert.Empty(t, newRows)

	p.current.Close()
}

func sampleRecordAt(t time.Time) shard.Record {
	return shard.Record{
		Timestamp:    t.Unix(),
		InterfaceIn:  "ether1",
		InterfaceOut: "ether2",
		Protocol:     "tcp",
		SrcIPPriv:    0x0a000001,
		SrcPortPriv:  1234,
		DstIP:        0x08080404,
		DstPort:      443,
	}
}
