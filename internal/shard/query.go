package shard

import (
	"context"
	"fmt"
	"strings"
)

// Filter holds the six optional equality filters from spec.md §4.3,
// plus the inclusive timestamp range every query carries.
type Filter struct {
	StartUnix int64
	EndUnix   int64

	SrcIPPriv   *uint32
	SrcPortPriv *uint16
	NATIPPub    *uint32
	NATPortPub  *uint16
	DstIP       *uint32
	DstPort     *uint16
}

// Query runs one parameterized SELECT against this shard, joining
// dictionary tables back to names, and returns decoded rows ordered by
// timestamp descending. It is the "exec_query(handle, sql, params)"
// capability of spec.md §4.4, specialized to the one query shape the
// engine needs.
func (h *Handle) Query(ctx context.Context, f Filter) ([]Row, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			l.timestamp, fi.name, fo.name, s.name, p.name,
			l.src_ip_priv, l.src_port_priv, l.dst_ip, l.dst_port,
			l.nat_ip_pub, l.nat_port_pub
		FROM logs l
		JOIN d_interfaces fi ON fi.id = l.interface_in_id
		JOIN d_interfaces fo ON fo.id = l.interface_out_id
		JOIN d_protocols p ON p.id = l.protocol_id
		LEFT JOIN d_states s ON s.id = l.state_id
		WHERE l.timestamp BETWEEN ? AND ?`)

	args := []any{f.StartUnix, f.EndUnix}

	addFilter := func(col string, v any) {
		b.WriteString(fmt.Sprintf(" AND %s = ?", col))
		args = append(args, v)
	}
	if f.SrcIPPriv != nil {
		addFilter("l.src_ip_priv", int64(*f.SrcIPPriv))
	}
	if f.SrcPortPriv != nil {
		addFilter("l.src_port_priv", int64(*f.SrcPortPriv))
	}
	if f.NATIPPub != nil {
		addFilter("l.nat_ip_pub", int64(*f.NATIPPub))
	}
	if f.NATPortPub != nil {
		addFilter("l.nat_port_pub", int64(*f.NATPortPub))
	}
	if f.DstIP != nil {
		addFilter("l.dst_ip", int64(*f.DstIP))
	}
	if f.DstPort != nil {
		addFilter("l.dst_port", int64(*f.DstPort))
	}

	b.WriteString(" ORDER BY l.timestamp DESC")

	h.mu.Lock()
	rows, err := h.db.QueryContext(ctx, b.String(), args...)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("shard: query %s: %w", h.Path, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var state *string
		var natIP, natPort *int64
		if err := rows.Scan(
			&r.Timestamp, &r.InterfaceIn, &r.InterfaceOut, &state, &r.Protocol,
			&r.SrcIPPriv, &r.SrcPortPriv, &r.DstIP, &r.DstPort,
			&natIP, &natPort,
		); err != nil {
			return nil, fmt.Errorf("shard: scan row in %s: %w", h.Path, err)
		}
		if state != nil {
			r.State = *state
		}
		if natIP != nil {
			v := uint32(*natIP)
			r.NATIPPub = &v
		}
		if natPort != nil {
			v := uint16(*natPort)
			r.NATPortPub = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
