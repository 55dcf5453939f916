package shard

import (
	"database/sql"
	"fmt"
)

// InsertBatch inserts rows into the logs table as a single transaction,
// resolving/creating dictionary ids along the way. Either every row in
// the batch lands, or none do (spec.md §4.4, "single transaction,
// atomic").
//
// Callers (the Processor) must only advance their persisted offset
// after this returns nil, preserving the commit-then-offset discipline
// of spec.md §4.2.1.
func (h *Handle) InsertBatch(rows []Record) error {
	if len(rows) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("shard: begin insert batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT INTO logs (
			timestamp, interface_in_id, interface_out_id, state_id, protocol_id,
			src_ip_priv, src_port_priv, dst_ip, dst_port, nat_ip_pub, nat_port_pub
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("shard: prepare insert: %w", err)
	}
	defer stmt.Close()

	// Dictionary ids resolved (or freshly inserted) during this
	// transaction are staged here rather than written straight into the
	// long-lived dictCache.byName maps. If the transaction never
	// commits — most notably a failed Commit below, which spec.md §7
	// documents as a retryable "storage transient" — the dictionary
	// rows those ids point to never existed, and the caches must not
	// remember them. Only once Commit succeeds does this staging get
	// merged into the real caches.
	staged := dictStaging{
		interfaces: map[string]int64{},
		protocols:  map[string]int64{},
		states:     map[string]int64{},
	}

	for i, r := range rows {
		inID, err := h.interfaceIDTx(tx, staged, r.InterfaceIn)
		if err != nil {
			return fmt.Errorf("shard: row %d: %w", i, err)
		}
		outID, err := h.interfaceIDTx(tx, staged, r.InterfaceOut)
		if err != nil {
			return fmt.Errorf("shard: row %d: %w", i, err)
		}
		protoID, err := h.protocolIDTx(tx, staged, r.Protocol)
		if err != nil {
			return fmt.Errorf("shard: row %d: %w", i, err)
		}
		stID, err := h.stateIDTx(tx, staged, r.State)
		if err != nil {
			return fmt.Errorf("shard: row %d: %w", i, err)
		}

		var natIP, natPort sql.NullInt64
		if r.NATPresent {
			natIP = sql.NullInt64{Int64: int64(r.NATIPPub), Valid: true}
			natPort = sql.NullInt64{Int64: int64(r.NATPortPub), Valid: true}
		}

		if _, err := stmt.Exec(
			r.Timestamp, inID, outID, stID, protoID,
			int64(r.SrcIPPriv), int64(r.SrcPortPriv), int64(r.DstIP), int64(r.DstPort),
			natIP, natPort,
		); err != nil {
			return fmt.Errorf("shard: insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("shard: commit insert batch: %w", err)
	}

	staged.mergeInto(h.interfaces, h.protocols, h.states)
	return nil
}

// dictStaging holds dictionary ids resolved within a single InsertBatch
// transaction, keyed per dictionary table, until that transaction
// commits successfully.
type dictStaging struct {
	interfaces map[string]int64
	protocols  map[string]int64
	states     map[string]int64
}

func (s dictStaging) mergeInto(interfaces, protocols, states *dictCache) {
	for name, id := range s.interfaces {
		interfaces.byName[name] = id
	}
	for name, id := range s.protocols {
		protocols.byName[name] = id
	}
	for name, id := range s.states {
		states.byName[name] = id
	}
}

// The *Tx variants mirror dict.go's getOrCreate but execute within the
// caller's transaction, staging any newly resolved id instead of
// writing straight into the cache, so dictionary inserts and the fact
// rows that depend on them commit or roll back together.

func (h *Handle) interfaceIDTx(tx *sql.Tx, staged dictStaging, name string) (int64, error) {
	return h.interfaces.getOrCreateTx(tx, staged.interfaces, name)
}

func (h *Handle) protocolIDTx(tx *sql.Tx, staged dictStaging, name string) (int64, error) {
	return h.protocols.getOrCreateTx(tx, staged.protocols, name)
}

func (h *Handle) stateIDTx(tx *sql.Tx, staged dictStaging, name string) (sql.NullInt64, error) {
	if name == "" {
		return sql.NullInt64{}, nil
	}
	id, err := h.states.getOrCreateTx(tx, staged.states, name)
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

// getOrCreateTx resolves name within tx, consulting (in order) the
// committed cache, this transaction's staging map, and finally the
// database itself. A freshly resolved id is written into staged, never
// into c.byName directly — see the comment in InsertBatch for why.
func (c *dictCache) getOrCreateTx(tx *sql.Tx, staged map[string]int64, name string) (int64, error) {
	if id, ok := c.byName[name]; ok {
		return id, nil
	}
	if id, ok := staged[name]; ok {
		return id, nil
	}

	id, err := resolveDictID(tx, c.table, name)
	if err != nil {
		return 0, err
	}
	staged[name] = id
	return id, nil
}
