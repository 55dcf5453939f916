package processor

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/forensics/cgnatlog/internal/ipcodec"
	"github.com/forensics/cgnatlog/internal/shard"
)

// withNAT matches a CGNAT firewall log line that includes a NAT
// translation segment. noNAT is the fallback for lines that never left
// the private address space.
var (
	withNAT = regexp.MustCompile(
		`^(\w{3}\s+\d{1,2} \d{2}:\d{2}:\d{2}).*?in:(\S+) out:(\S+),.*?proto (\S+),\s*` +
			`([\d.]+):(\d+)->([\d.]+):(\d+),.*?NAT \(([\d.]+):(\d+)->([\d.]+):(\d+)\)->`)

	noNAT = regexp.MustCompile(
		`^(\w{3}\s+\d{1,2} \d{2}:\d{2}:\d{2}).*?in:(\S+) out:(\S+),.*?proto (\S+),\s*` +
			`([\d.]+):(\d+)->([\d.]+):(\d+)`)

	stateToken = regexp.MustCompile(`state:(\S+)`)
)

const syslogTimeLayout = "Jan 2 15:04:05"

// ParseError identifies a line that matched neither regex, or matched
// but carried a malformed field. It is always discarded and counted,
// never retried (spec.md §7, "Parse error").
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("processor: parse error: %s: %q", e.Reason, e.Line)
}

// ParseLine extracts a shard.Record from one raw log line, using `now`
// to resolve the missing year in the syslog timestamp (spec.md §4.2.2).
// State is extracted opportunistically from a "state:<token>" fragment
// anywhere in the line; its absence is not a parse failure.
func ParseLine(line string, now time.Time) (shard.Record, error) {
	if m := withNAT.FindStringSubmatch(line); m != nil {
		return buildRecord(line, m, true, now)
	}
	if m := noNAT.FindStringSubmatch(line); m != nil {
		return buildRecord(line, m, false, now)
	}
	return shard.Record{}, &ParseError{Line: line, Reason: "no pattern matched"}
}

func buildRecord(line string, m []string, nat bool, now time.Time) (shard.Record, error) {
	ts, err := parseSyslogTimestamp(m[1], now)
	if err != nil {
		return shard.Record{}, &ParseError{Line: line, Reason: err.Error()}
	}

	srcIP, err := ipcodec.ToUint32(m[5])
	if err != nil {
		return shard.Record{}, &ParseError{Line: line, Reason: "bad src ip: " + err.Error()}
	}
	srcPort, err := parsePort(m[6])
	if err != nil {
		return shard.Record{}, &ParseError{Line: line, Reason: "bad src port: " + err.Error()}
	}
	dstIP, err := ipcodec.ToUint32(m[7])
	if err != nil {
		return shard.Record{}, &ParseError{Line: line, Reason: "bad dst ip: " + err.Error()}
	}
	dstPort, err := parsePort(m[8])
	if err != nil {
		return shard.Record{}, &ParseError{Line: line, Reason: "bad dst port: " + err.Error()}
	}

	rec := shard.Record{
		Timestamp:    ts,
		InterfaceIn:  m[2],
		InterfaceOut: m[3],
		Protocol:     m[4],
		State:        extractState(line),
		SrcIPPriv:    srcIP,
		SrcPortPriv:  srcPort,
		DstIP:        dstIP,
		DstPort:      dstPort,
	}

	if nat {
		// m[9]/m[10] are the NAT-private pair, re-derived from the same
		// private address/port already captured above; m[11]/m[12] are the
		// translated public pair we care about.
		natIP, err := ipcodec.ToUint32(m[11])
		if err != nil {
			return shard.Record{}, &ParseError{Line: line, Reason: "bad nat ip: " + err.Error()}
		}
		natPort, err := parsePort(m[12])
		if err != nil {
			return shard.Record{}, &ParseError{Line: line, Reason: "bad nat port: " + err.Error()}
		}
		rec.NATIPPub = natIP
		rec.NATPortPub = natPort
		rec.NATPresent = true
	}

	return rec, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func extractState(line string) string {
	if m := stateToken.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// parseSyslogTimestamp resolves the year-less "Mon D HH:MM:SS" syslog
// timestamp against wall-clock `now`, applying the December->January
// correction of spec.md §4.2.2: logs observed in January but stamped
// December belong to the previous year.
func parseSyslogTimestamp(s string, now time.Time) (int64, error) {
	t, err := time.Parse(syslogTimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q: %w", s, err)
	}

	year := now.Year()
	if t.Month() == time.December && now.Month() == time.January {
		year--
	}

	full := time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	return full.Unix(), nil
}
