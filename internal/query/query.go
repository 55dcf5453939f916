// Package query implements the multi-shard forensic query engine of
// spec.md §4.3: enumerate shards touching a date range, run the same
// parameterized filter against each, merge results by timestamp.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forensics/cgnatlog/internal/ipcodec"
	"github.com/forensics/cgnatlog/internal/shard"
	"golang.org/x/sync/errgroup"
)

// MaxMergedResults bounds how many rows the engine will hold in memory
// across all shards before truncating (spec.md §4.3, "a hard upper
// bound on merged results to bound memory").
const MaxMergedResults = 100_000

// Filter mirrors the six optional request-level filters of spec.md
// §4.3, expressed as strings exactly as a caller would supply them on
// the wire (dotted-quad IPs, decimal ports); Engine.Search converts and
// validates them.
type Filter struct {
	StartDT time.Time
	EndDT   time.Time

	SrcIPPriv   string
	SrcPortPriv string
	NATIPPub    string
	NATPortPub  string
	DstIP       string
	DstPort     string
}

// Record is one decoded, caller-facing search result.
type Record struct {
	Timestamp    string
	InterfaceIn  string
	InterfaceOut string
	State        string
	Protocol     string
	SrcIPPriv    string
	SrcPortPriv  uint16
	DstIP        string
	DstPort      uint16
	NATIPPub     string
	NATPortPub   string
}

// FilterError reports a malformed filter value (spec.md §7, "Filter
// error"); the caller should treat it as a 400-equivalent and abort the
// whole query rather than degrading to partial results.
type FilterError struct {
	Field string
	Value string
	Err   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("query: invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }

// Engine runs searches across the shard files under ColdDir.
type Engine struct {
	coldDir  string
	shardCfg shard.Config
	logger   *slog.Logger
}

// New builds an Engine reading shards from coldDir.
func New(coldDir string, shardCfg shard.Config, logger *slog.Logger) *Engine {
	return &Engine{coldDir: coldDir, shardCfg: shardCfg, logger: logger}
}

const shardDateLayout = "2006-01-02"

// Search enumerates shards whose filename-date falls within
// [f.StartDT.Date, f.EndDT.Date], queries each concurrently, and
// returns the merged, timestamp-descending page plus a truncated flag
// (spec.md §4.3).
func (e *Engine) Search(ctx context.Context, f Filter, pageSize, pageIndex int) (rows []Record, total int, truncated bool, err error) {
	shardFilter, err := toShardFilter(f)
	if err != nil {
		return nil, 0, false, err
	}

	dates := datesInRange(f.StartDT, f.EndDT)
	if len(dates) == 0 {
		return nil, 0, false, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]Record, len(dates))

	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			path := filepath.Join(e.coldDir, date+".db")
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				return nil
			}

			h, openErr := shard.OpenReadOnly(path, date, e.shardCfg)
			if openErr != nil {
				// Failure to open one shard is logged and skipped; the
				// query still returns partial results (spec.md §4.3).
				e.logger.Warn("skipping shard that failed to open", "date", date, "error", openErr)
				return nil
			}
			defer h.Close()

			shardRows, queryErr := h.Query(gctx, shardFilter)
			if queryErr != nil {
				e.logger.Warn("skipping shard that failed to query", "date", date, "error", queryErr)
				return nil
			}

			decoded := make([]Record, len(shardRows))
			for j, r := range shardRows {
				decoded[j] = decodeRow(r)
			}
			results[i] = decoded
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, false, fmt.Errorf("query: search failed: %w", err)
	}

	var merged []Record
	for _, rs := range results {
		merged = append(merged, rs...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})

	total = len(merged)
	if total > MaxMergedResults {
		merged = merged[:MaxMergedResults]
		truncated = true
	}

	start := pageIndex * pageSize
	if start > len(merged) {
		start = len(merged)
	}
	end := start + pageSize
	if end > len(merged) || pageSize <= 0 {
		end = len(merged)
	}

	return merged[start:end], total, truncated, nil
}

func datesInRange(start, end time.Time) []string {
	if end.Before(start) {
		return nil
	}
	// time.Truncate rounds on absolute duration since the Unix epoch,
	// not on start's wall-clock date in its own Location, so it must
	// not be used here: for any non-UTC Location it can shift the
	// truncated day across a calendar boundary.
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	var out []string
	for d := day; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(shardDateLayout))
	}
	return out
}

func toShardFilter(f Filter) (shard.Filter, error) {
	sf := shard.Filter{
		StartUnix: f.StartDT.Unix(),
		EndUnix:   f.EndDT.Unix(),
	}

	var err error
	if sf.SrcIPPriv, err = parseOptionalIP("src_ip_priv", f.SrcIPPriv); err != nil {
		return shard.Filter{}, err
	}
	if sf.NATIPPub, err = parseOptionalIP("nat_ip_pub", f.NATIPPub); err != nil {
		return shard.Filter{}, err
	}
	if sf.DstIP, err = parseOptionalIP("dst_ip", f.DstIP); err != nil {
		return shard.Filter{}, err
	}
	if sf.SrcPortPriv, err = parseOptionalPort("src_port_priv", f.SrcPortPriv); err != nil {
		return shard.Filter{}, err
	}
	if sf.NATPortPub, err = parseOptionalPort("nat_port_pub", f.NATPortPub); err != nil {
		return shard.Filter{}, err
	}
	if sf.DstPort, err = parseOptionalPort("dst_port", f.DstPort); err != nil {
		return shard.Filter{}, err
	}
	return sf, nil
}

func parseOptionalIP(field, value string) (*uint32, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := ipcodec.ToUint32(value)
	if err != nil {
		return nil, &FilterError{Field: field, Value: value, Err: err}
	}
	return &v, nil
}

func parseOptionalPort(field, value string) (*uint16, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return nil, &FilterError{Field: field, Value: value, Err: err}
	}
	v := uint16(n)
	return &v, nil
}

func decodeRow(r shard.Row) Record {
	rec := Record{
		Timestamp:    time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"),
		InterfaceIn:  r.InterfaceIn,
		InterfaceOut: r.InterfaceOut,
		State:        r.State,
		Protocol:     r.Protocol,
		SrcIPPriv:    ipcodec.ToDotted(r.SrcIPPriv),
		SrcPortPriv:  r.SrcPortPriv,
		DstIP:        ipcodec.ToDotted(r.DstIP),
		DstPort:      r.DstPort,
		NATIPPub:     "N/A",
		NATPortPub:   "N/A",
	}
	if r.NATIPPub != nil {
		rec.NATIPPub = ipcodec.ToDotted(*r.NATIPPub)
	}
	if r.NATPortPub != nil {
		rec.NATPortPub = strconv.FormatUint(uint64(*r.NATPortPub), 10)
	}
	return rec
}
