package shard

import (
	"database/sql"
	"fmt"
)

// dictCache is the per-shard, per-handle cache for one dictionary table
// (d_interfaces, d_protocols, d_states). It maps the categorical string
// to the integer id stored in the logs table.
//
// Concurrency: callers serialize access through Handle.mu; dictCache
// itself is not safe for concurrent use on its own.
type dictCache struct {
	table string
	byName map[string]int64
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting the
// dictionary-resolution logic run identically on the plain and
// transactional paths.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// resolveDictID inserts name into table if it is not already present,
// returning its id either way. It uses INSERT ... ON CONFLICT DO
// NOTHING followed by a lookup so that two unrelated codepaths racing
// on the same name within a single writer still converge on one id
// (spec.md §4.2.3).
//
// RowsAffected, not LastInsertId, is what distinguishes "this call
// inserted a new row" from "a conflicting row already existed":
// SQLite's last_insert_rowid() is a per-connection value that is not
// reset to 0 by a no-op conflicting insert, so checking LastInsertId
// against 0 would misreport a genuine conflict as a fresh insert and
// return a stale id left over from an earlier row.
func resolveDictID(e execer, table, name string) (int64, error) {
	res, err := e.Exec(
		fmt.Sprintf("INSERT INTO %s (name) VALUES (?) ON CONFLICT(name) DO NOTHING", table),
		name,
	)
	if err != nil {
		return 0, fmt.Errorf("shard: insert into %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("shard: rows affected for %s: %w", table, err)
	}
	if affected == 0 {
		var id int64
		row := e.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name)
		if err := row.Scan(&id); err != nil {
			return 0, fmt.Errorf("shard: lookup %s %q after conflict: %w", table, name, err)
		}
		return id, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("shard: last insert id for %s: %w", table, err)
	}
	return id, nil
}

func loadDictCache(db *sql.DB, table string) (*dictCache, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT id, name FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("shard: scan %s: %w", table, err)
	}
	defer rows.Close()

	c := &dictCache{table: table, byName: make(map[string]int64)}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("shard: scan %s row: %w", table, err)
		}
		c.byName[name] = id
	}
	return c, rows.Err()
}

// getOrCreate returns the id for name, inserting a new dictionary row if
// this is the first time the shard has seen it, via the plain *sql.DB
// path, outside of InsertBatch's transaction. Nothing in this module
// calls it; InsertBatch uses getOrCreateTx in insert.go instead.
// The insert uses INSERT ... ON CONFLICT DO NOTHING followed by a
// lookup so that two unrelated codepaths racing on the same name within
// a single writer (there is only ever one writer per shard) still
// converge on one id, matching spec.md §4.2.3's "string gets exactly
// one id per shard, assigned on first sight".
//
// This path runs outside any surrounding transaction (each Exec
// autocommits), so unlike the transactional path in insert.go it is
// safe to record the id into c.byName as soon as the insert succeeds.
func (c *dictCache) getOrCreate(db *sql.DB, name string) (int64, error) {
	if id, ok := c.byName[name]; ok {
		return id, nil
	}
	id, err := resolveDictID(db, c.table, name)
	if err != nil {
		return 0, err
	}
	c.byName[name] = id
	return id, nil
}
