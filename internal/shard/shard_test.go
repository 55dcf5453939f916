package shard_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/forensics/cgnatlog/internal/ipcodec"
	"github.com/forensics/cgnatlog/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestShard(t *testing.T) *shard.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2026-08-01.db")
	h, err := shard.Open(path, "2026-08-01", shard.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func sampleRecord(t *testing.T) shard.Record {
	t.Helper()
	src, err := ipcodec.ToUint32("100.80.3.210")
	require.NoError(t, err)
	dst, err := ipcodec.ToUint32("8.8.8.8")
	require.NoError(t, err)
	nat, err := ipcodec.ToUint32("177.67.176.147")
	require.NoError(t, err)

	return shard.Record{
		Timestamp:    time.Date(2026, 12, 2, 14, 23, 45, 0, time.UTC).Unix(),
		InterfaceIn:  "ether1",
		InterfaceOut: "ether2",
		Protocol:     "tcp",
		SrcIPPriv:    src,
		SrcPortPriv:  41760,
		DstIP:        dst,
		DstPort:      443,
		NATIPPub:     nat,
		NATPortPub:   41760,
		NATPresent:   true,
	}
}

func TestInsertBatchAndQueryRoundTrip(t *testing.T) {
	h := openTestShard(t)
	rec := sampleRecord(t)

	require.NoError(t, h.InsertBatch([]shard.Record{rec}))

	rows, err := h.Query(context.Background(), shard.Filter{
		StartUnix: rec.Timestamp - 1,
		EndUnix:   rec.Timestamp + 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, rec.Timestamp, got.Timestamp)
	assert.Equal(t, "ether1", got.InterfaceIn)
	assert.Equal(t, "ether2", got.InterfaceOut)
	assert.Equal(t, "tcp", got.Protocol)
	assert.Equal(t, "", got.State)
	assert.Equal(t, rec.SrcIPPriv, got.SrcIPPriv)
	assert.Equal(t, rec.SrcPortPriv, got.SrcPortPriv)
	require.NotNil(t, got.NATIPPub)
	assert.Equal(t, rec.NATIPPub, *got.NATIPPub)
	require.NotNil(t, got.NATPortPub)
	assert.Equal(t, rec.NATPortPub, *got.NATPortPub)
}

func TestInsertBatchDictionaryDedup(t *testing.T) {
	h := openTestShard(t)
	rec := sampleRecord(t)

	batch := make([]shard.Record, 1000)
	for i := range batch {
		batch[i] = rec
	}
	require.NoError(t, h.InsertBatch(batch))

	rows, err := h.Query(context.Background(), shard.Filter{
		StartUnix: rec.Timestamp - 1,
		EndUnix:   rec.Timestamp + 1,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1000)
}

func TestInsertBatchWithoutNAT(t *testing.T) {
	h := openTestShard(t)
	rec := sampleRecord(t)
	rec.NATPresent = false
	rec.NATIPPub = 0
	rec.NATPortPub = 0
	rec.State = "established"

	require.NoError(t, h.InsertBatch([]shard.Record{rec}))

	rows, err := h.Query(context.Background(), shard.Filter{
		StartUnix: rec.Timestamp - 1,
		EndUnix:   rec.Timestamp + 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].NATIPPub)
	assert.Nil(t, rows[0].NATPortPub)
	assert.Equal(t, "established", rows[0].State)
}

func TestQueryFilterByNATFields(t *testing.T) {
	h := openTestShard(t)
	match := sampleRecord(t)
	miss := sampleRecord(t)
	miss.NATPortPub = 9999

	require.NoError(t, h.InsertBatch([]shard.Record{match, miss}))

	natIP := match.NATIPPub
	natPort := match.NATPortPub
	rows, err := h.Query(context.Background(), shard.Filter{
		StartUnix:  match.Timestamp - 1,
		EndUnix:    match.Timestamp + 1,
		NATIPPub:   &natIP,
		NATPortPub: &natPort,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUpsertAndGetStats(t *testing.T) {
	h := openTestShard(t)
	require.NoError(t, h.UpsertStats("lines_processed", "42"))
	require.NoError(t, h.UpsertStats("lines_processed", "43"))

	stats, err := h.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "43", stats["lines_processed"])
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2026-08-01.db")
	h1, err := shard.Open(path, "2026-08-01", shard.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, h1.InsertBatch([]shard.Record{sampleRecord(t)}))
	require.NoError(t, h1.Close())

	h2, err := shard.Open(path, "2026-08-01", shard.DefaultConfig())
	require.NoError(t, err)
	defer h2.Close()

	rows, err := h2.Query(context.Background(), shard.Filter{StartUnix: 0, EndUnix: 1 << 62})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
