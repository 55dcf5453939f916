package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forensics/cgnatlog/internal/shard"
)

// DailySummary answers spec.md §6's daily_summary(date) contract.
type DailySummary struct {
	Exists         bool
	TotalLogs      int
	ShardSizeBytes int64
	ProcessorStats map[string]string
}

// DailySummary reports whether a shard exists for date and, if so, its
// row count, file size, and current processor_stats snapshot.
func (e *Engine) DailySummary(ctx context.Context, date string) (DailySummary, error) {
	path := filepath.Join(e.coldDir, date+".db")
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return DailySummary{Exists: false}, nil
	}
	if err != nil {
		return DailySummary{}, fmt.Errorf("query: stat shard %s: %w", date, err)
	}

	h, err := shard.OpenReadOnly(path, date, e.shardCfg)
	if err != nil {
		return DailySummary{}, fmt.Errorf("query: open shard %s: %w", date, err)
	}
	defer h.Close()

	rows, err := h.Query(ctx, shard.Filter{StartUnix: 0, EndUnix: 1 << 62})
	if err != nil {
		return DailySummary{}, fmt.Errorf("query: count shard %s: %w", date, err)
	}

	stats, err := h.GetStats(ctx)
	if err != nil {
		return DailySummary{}, fmt.Errorf("query: stats for shard %s: %w", date, err)
	}

	return DailySummary{
		Exists:         true,
		TotalLogs:      len(rows),
		ShardSizeBytes: info.Size(),
		ProcessorStats: stats,
	}, nil
}

// AvailableDates answers spec.md §6's available_dates() contract,
// listing every "YYYY-MM-DD.db" filename found under ColdDir, newest
// first.
func (e *Engine) AvailableDates() ([]string, error) {
	entries, err := os.ReadDir(e.coldDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query: read cold dir: %w", err)
	}

	var dates []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasSuffix(name, ".db") {
			continue
		}
		date := strings.TrimSuffix(name, ".db")
		if _, err := time.Parse(shardDateLayout, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// ChartAggregates answers spec.md §6's chart_aggregates(date) contract:
// per-protocol and per-interface counts, an hourly timeline, and the
// busiest NAT/destination IPs for one shard.
type ChartAggregates struct {
	Protocols     map[string]int
	Interfaces    map[string]int
	TimelineByHour [24]int
	TopNATIPs     []IPCount
	TopDstIPs     []IPCount
}

// IPCount pairs a dotted-quad address with its occurrence count,
// descending, truncated to the top N.
type IPCount struct {
	IP    string
	Count int
}

const topNLimit = 10

func (e *Engine) ChartAggregates(ctx context.Context, date string) (ChartAggregates, error) {
	path := filepath.Join(e.coldDir, date+".db")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ChartAggregates{}, nil
	}

	h, err := shard.OpenReadOnly(path, date, e.shardCfg)
	if err != nil {
		return ChartAggregates{}, fmt.Errorf("query: open shard %s: %w", date, err)
	}
	defer h.Close()

	rows, err := h.Query(ctx, shard.Filter{StartUnix: 0, EndUnix: 1 << 62})
	if err != nil {
		return ChartAggregates{}, fmt.Errorf("query: scan shard %s: %w", date, err)
	}

	agg := ChartAggregates{
		Protocols:  map[string]int{},
		Interfaces: map[string]int{},
	}
	natCounts := map[string]int{}
	dstCounts := map[string]int{}

	for _, r := range rows {
		agg.Protocols[r.Protocol]++
		agg.Interfaces[r.InterfaceIn]++
		agg.Interfaces[r.InterfaceOut]++
		agg.TimelineByHour[time.Unix(r.Timestamp, 0).UTC().Hour()]++
		if r.NATIPPub != nil {
			natCounts[decodeRow(r).NATIPPub]++
		}
		dstCounts[decodeRow(r).DstIP]++
	}

	agg.TopNATIPs = topN(natCounts, topNLimit)
	agg.TopDstIPs = topN(dstCounts, topNLimit)
	return agg, nil
}

func topN(counts map[string]int, n int) []IPCount {
	out := make([]IPCount, 0, len(counts))
	for ip, c := range counts {
		out = append(out, IPCount{IP: ip, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IP < out[j].IP
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
