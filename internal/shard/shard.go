// Package shard provides the per-day SQLite-backed storage layer for the
// cgnatlog pipeline.
//
// A shard is one self-contained file named "YYYY-MM-DD.db" holding a
// normalized fact table (logs) plus three dictionary tables
// (d_interfaces, d_protocols, d_states) and a processor_stats key/value
// table. Schema creation is idempotent: Open runs CREATE TABLE/INDEX IF
// NOT EXISTS every time, so a shard file can be moved to another host's
// cold storage directory and queried immediately (spec.md §6).
//
// Exactly one process writes to a given shard (the Processor, for the
// current day only); any number of readers may open the same file
// concurrently in the storage engine's multi-reader/single-writer WAL
// mode.
package shard

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Config tunes the underlying SQLite connection. Mirrors spec.md §4.4's
// "journal mode favouring concurrent readers + single writer,
// synchronous mode NORMAL, per-handle page cache ~64MiB".
type Config struct {
	JournalMode  string // "WAL", "DELETE", ...
	Synchronous  string // "NORMAL", "FULL", ...
	TimeoutMS    int    // busy_timeout
	CacheSizeKiB int    // negative cache_size pragma, in KiB
}

// DefaultConfig returns the spec's recommended tuning.
func DefaultConfig() Config {
	return Config{
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		TimeoutMS:    5000,
		CacheSizeKiB: 64 * 1024,
	}
}

// Handle wraps one open shard file with its dictionary caches.
//
// The dictionary cache is owned by the handle, not by the process: each
// Open performs a full scan of each dictionary table and populates a
// private map, so a process holding handles to two different days never
// confuses one day's ids with another's (spec.md §9, "Global mutable
// dictionary cache" re-architecture).
type Handle struct {
	Date string // "YYYY-MM-DD"
	Path string

	db *sql.DB
	mu sync.Mutex

	interfaces *dictCache
	protocols  *dictCache
	states     *dictCache
}

// Open creates the shard file if absent, idempotently creates its schema,
// and rebuilds the dictionary caches from a full table scan.
func Open(path, date string, cfg Config) (*Handle, error) {
	dsn := buildDSN(path, cfg)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("shard: open %s: %w", path, err)
	}
	// Exactly one writer per shard by construction (spec.md §5); a single
	// connection avoids SQLITE_BUSY from the driver's own pool contending
	// with itself under WAL.
	db.SetMaxOpenConns(1)

	h := &Handle{Date: date, Path: path, db: db}

	if err := h.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("shard: create schema %s: %w", path, err)
	}

	if err := h.loadDictionaries(); err != nil {
		db.Close()
		return nil, fmt.Errorf("shard: load dictionaries %s: %w", path, err)
	}

	return h, nil
}

// OpenReadOnly opens an existing shard file for querying only. It still
// rebuilds its own dictionary cache (each process/request handle owns
// its own), per spec.md §5's "Shared database handle across request
// threads" re-architecture: every reader gets its own handle.
func OpenReadOnly(path, date string, cfg Config) (*Handle, error) {
	dsn := buildDSN(path, cfg) + "&mode=ro"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("shard: open read-only %s: %w", path, err)
	}

	h := &Handle{Date: date, Path: path, db: db}
	if err := h.loadDictionaries(); err != nil {
		db.Close()
		return nil, fmt.Errorf("shard: load dictionaries %s: %w", path, err)
	}
	return h, nil
}

func buildDSN(path string, cfg Config) string {
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 5000
	}
	if cfg.CacheSizeKiB <= 0 {
		cfg.CacheSizeKiB = 64 * 1024
	}
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(%s)&_pragma=synchronous(%s)&_pragma=busy_timeout(%d)&_pragma=cache_size(-%d)",
		path, cfg.JournalMode, cfg.Synchronous, cfg.TimeoutMS, cfg.CacheSizeKiB,
	)
}

// Close releases the handle.
func (h *Handle) Close() error {
	return h.db.Close()
}

// DB exposes the underlying *sql.DB. Query-only consumers should prefer
// Handle.Query, which holds the dynamic WHERE-clause builder;
// internal/query goes through Handle.Query and does not call DB.
func (h *Handle) DB() *sql.DB {
	return h.db
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS d_interfaces (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_protocols (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS d_states (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp        INTEGER NOT NULL,
	interface_in_id  INTEGER NOT NULL REFERENCES d_interfaces(id),
	interface_out_id INTEGER NOT NULL REFERENCES d_interfaces(id),
	state_id         INTEGER REFERENCES d_states(id),
	protocol_id      INTEGER NOT NULL REFERENCES d_protocols(id),
	src_ip_priv      INTEGER NOT NULL,
	src_port_priv    INTEGER NOT NULL,
	dst_ip           INTEGER NOT NULL,
	dst_port         INTEGER NOT NULL,
	nat_ip_pub       INTEGER,
	nat_port_pub     INTEGER
);

CREATE TABLE IF NOT EXISTS processor_stats (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_logs_src_ip_priv ON logs(src_ip_priv);
CREATE INDEX IF NOT EXISTS idx_logs_nat_ip_pub ON logs(nat_ip_pub);
CREATE INDEX IF NOT EXISTS idx_logs_dst_ip ON logs(dst_ip);
CREATE INDEX IF NOT EXISTS idx_logs_nat_composite ON logs(nat_ip_pub, nat_port_pub, timestamp DESC);
`

func (h *Handle) createSchema() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(schemaDDL)
	return err
}

func (h *Handle) loadDictionaries() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.interfaces, err = loadDictCache(h.db, "d_interfaces"); err != nil {
		return err
	}
	if h.protocols, err = loadDictCache(h.db, "d_protocols"); err != nil {
		return err
	}
	if h.states, err = loadDictCache(h.db, "d_states"); err != nil {
		return err
	}
	return nil
}

// UpsertStats writes a processor_stats key/value pair (spec.md §4.2.6).
func (h *Handle) UpsertStats(key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(
		`INSERT INTO processor_stats (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	return err
}

// GetStats returns the current processor_stats contents as a map.
func (h *Handle) GetStats(ctx context.Context) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.QueryContext(ctx, `SELECT key, value FROM processor_stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
