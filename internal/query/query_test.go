package query_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forensics/cgnatlog/internal/ipcodec"
	"github.com/forensics/cgnatlog/internal/query"
	"github.com/forensics/cgnatlog/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func seedShard(t *testing.T, coldDir, date string, rows []shard.Record) {
	t.Helper()
	h, err := shard.Open(filepath.Join(coldDir, date+".db"), date, shard.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, h.InsertBatch(rows))
	require.NoError(t, h.Close())
}

func TestSearchMergesAcrossShardsOrderedDescending(t *testing.T) {
	coldDir := t.TempDir()
	natIP, _ := ipcodec.ToUint32("177.67.176.147")

	today := time.Now().UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)

	matchToday := shard.Record{
		Timestamp: today.Add(10 * time.Hour).Unix(), InterfaceIn: "e1", InterfaceOut: "e2",
		Protocol: "tcp", SrcIPPriv: 1, DstIP: 2, NATIPPub: natIP, NATPortPub: 41760, NATPresent: true,
	}
	matchYesterday := matchToday
	matchYesterday.Timestamp = yesterday.Add(10 * time.Hour).Unix()

	var noise []shard.Record
	for i := 0; i < 50; i++ {
		noise = append(noise, shard.Record{
			Timestamp: today.Add(time.Duration(i) * time.Minute).Unix(),
			InterfaceIn: "e1", InterfaceOut: "e2", Protocol: "tcp",
			SrcIPPriv: uint32(i + 100), DstIP: 2,
		})
	}

	seedShard(t, coldDir, today.Format("2006-01-02"), append([]shard.Record{matchToday}, noise...))
	seedShard(t, coldDir, yesterday.Format("2006-01-02"), append([]shard.Record{matchYesterday}, noise...))

	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())

	natIPStr := "177.67.176.147"
	natPortStr := "41760"
	rows, total, truncated, err := eng.Search(context.Background(), query.Filter{
		StartDT:    yesterday,
		EndDT:      today.Add(23*time.Hour + 59*time.Minute + 59*time.Second),
		NATIPPub:   natIPStr,
		NATPortPub: natPortStr,
	}, 100, 0)

	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 2)
	assert.GreaterOrEqual(t, rows[0].Timestamp, rows[1].Timestamp, "must be timestamp-descending")
}

func TestSearchEmptyRangeReturnsEmptyNoError(t *testing.T) {
	coldDir := t.TempDir()
	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())

	rows, total, truncated, err := eng.Search(context.Background(), query.Filter{
		StartDT: time.Now(),
		EndDT:   time.Now(),
	}, 50, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.False(t, truncated)
	assert.Empty(t, rows)
}

func TestSearchInvalidFilterAbortsQuery(t *testing.T) {
	coldDir := t.TempDir()
	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())

	_, _, _, err := eng.Search(context.Background(), query.Filter{
		StartDT:   time.Now(),
		EndDT:     time.Now(),
		SrcIPPriv: "not-an-ip",
	}, 50, 0)

	require.Error(t, err)
	var ferr *query.FilterError
	assert.ErrorAs(t, err, &ferr)
}

func TestAvailableDatesSortedDescending(t *testing.T) {
	coldDir := t.TempDir()
	seedShard(t, coldDir, "2026-07-30", []shard.Record{{Timestamp: 1, InterfaceIn: "a", InterfaceOut: "b", Protocol: "tcp"}})
	seedShard(t, coldDir, "2026-08-01", []shard.Record{{Timestamp: 1, InterfaceIn: "a", InterfaceOut: "b", Protocol: "tcp"}})

	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())
	dates, err := eng.AvailableDates()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-01", "2026-07-30"}, dates)
}

func TestDailySummaryMissingShard(t *testing.T) {
	coldDir := t.TempDir()
	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())

	summary, err := eng.DailySummary(context.Background(), "2099-01-01")
	require.NoError(t, err)
	assert.False(t, summary.Exists)
}

func TestDailySummaryExistingShard(t *testing.T) {
	coldDir := t.TempDir()
	seedShard(t, coldDir, "2026-08-01", []shard.Record{
		{Timestamp: 1, InterfaceIn: "a", InterfaceOut: "b", Protocol: "tcp"},
		{Timestamp: 2, InterfaceIn: "a", InterfaceOut: "b", Protocol: "tcp"},
	})

	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())
	summary, err := eng.DailySummary(context.Background(), "2026-08-01")
	require.NoError(t, err)
	assert.True(t, summary.Exists)
	assert.Equal(t, 2, summary.TotalLogs)
	assert.Positive(t, summary.ShardSizeBytes)
}

func TestChartAggregates(t *testing.T) {
	coldDir := t.TempDir()
	natIP, _ := ipcodec.ToUint32("9.9.9.9")
	seedShard(t, coldDir, "2026-08-01", []shard.Record{
		{Timestamp: time.Date(2026, 8, 1, 5, 0, 0, 0, time.UTC).Unix(), InterfaceIn: "e1", InterfaceOut: "e2", Protocol: "tcp", DstIP: 1, NATIPPub: natIP, NATPresent: true},
		{Timestamp: time.Date(2026, 8, 1, 5, 30, 0, 0, time.UTC).Unix(), InterfaceIn: "e1", InterfaceOut: "e2", Protocol: "udp", DstIP: 1},
	})

	eng := query.New(coldDir, shard.DefaultConfig(), discardLogger())
	agg, err := eng.ChartAggregates(context.Background(), "2026-08-01")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Protocols["tcp"])
	assert.Equal(t, 1, agg.Protocols["udp"])
	assert.Equal(t, 2, agg.TimelineByHour[5])
	require.Len(t, agg.TopDstIPs, 1)
	assert.Equal(t, 2, agg.TopDstIPs[0].Count)
}
