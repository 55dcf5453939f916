// Package ipcodec converts between dotted-quad IPv4 strings and the
// big-endian uint32 representation stored in shard files (spec.md §3).
package ipcodec

import (
	"fmt"
	"net"
)

// ToUint32 parses a dotted-quad IPv4 address into its big-endian u32
// form. It returns an error for anything that is not a valid IPv4
// address, including IPv6 literals.
func ToUint32(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("ipcodec: %q is not a valid IP address", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("ipcodec: %q is not an IPv4 address", s)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}

// ToDotted renders a big-endian u32 as a dotted-quad string. The
// conversion is total: every uint32 value maps to a syntactically valid
// IPv4 literal, making ToUint32/ToDotted round-trip exact for the full
// domain (spec.md §8, property 4).
func ToDotted(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
