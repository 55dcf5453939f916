package shard

// Record is one normalized CGNAT log line, ready for insertion into a
// shard's logs table. Field names mirror the wire format of spec.md §2,
// with IPs already encoded as big-endian uint32 (see internal/ipcodec).
type Record struct {
	Timestamp     int64 // unix seconds
	InterfaceIn   string
	InterfaceOut  string
	State         string // "" when the line carries no TCP state
	Protocol      string
	SrcIPPriv     uint32
	SrcPortPriv   uint16
	DstIP         uint32
	DstPort       uint16
	NATIPPub      uint32 // 0 + !NATPresent when absent
	NATPortPub    uint16
	NATPresent    bool
}

// Row is a Record decoded back out of a shard, with dictionary ids
// resolved back to names and NAT fields materialized as pointers so
// query.go can render the "N/A" sentinel for rows with no NAT mapping.
type Row struct {
	Timestamp    int64
	InterfaceIn  string
	InterfaceOut string
	State        string
	Protocol     string
	SrcIPPriv    uint32
	SrcPortPriv  uint16
	DstIP        uint32
	DstPort      uint16
	NATIPPub     *uint32
	NATPortPub   *uint16
}
