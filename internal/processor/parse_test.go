package processor

import (
	"testing"
	"time"

	"github.com/forensics/cgnatlog/internal/ipcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNATLine = `Dec  2 14:23:45 router firewall,info forward: in:ether1 out:ether2, proto tcp, 100.80.3.210:41760->8.8.8.8:443, NAT (100.80.3.210:41760->177.67.176.147:41760)->8.8.8.8:443`

func TestParseLineWithNAT(t *testing.T) {
	now := time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)
	rec, err := ParseLine(sampleNATLine, now)
	require.NoError(t, err)

	srcIP, _ := ipcodec.ToUint32("100.80.3.210")
	dstIP, _ := ipcodec.ToUint32("8.8.8.8")
	natIP, _ := ipcodec.ToUint32("177.67.176.147")

	assert.Equal(t, "ether1", rec.InterfaceIn)
	assert.Equal(t, "ether2", rec.InterfaceOut)
	assert.Equal(t, "tcp", rec.Protocol)
	assert.Equal(t, srcIP, rec.SrcIPPriv)
	assert.Equal(t, uint16(41760), rec.SrcPortPriv)
	assert.Equal(t, dstIP, rec.DstIP)
	assert.Equal(t, uint16(443), rec.DstPort)
	require.True(t, rec.NATPresent)
	assert.Equal(t, natIP, rec.NATIPPub)
	assert.Equal(t, uint16(41760), rec.NATPortPub)

	want := time.Date(2026, 12, 2, 14, 23, 45, 0, time.UTC).Unix()
	assert.Equal(t, want, rec.Timestamp)
}

func TestParseLineWithoutNAT(t *testing.T) {
	line := `Aug  1 09:00:01 router firewall,info forward: in:ether3 out:ether4, proto udp, 10.0.0.5:5353->1.1.1.1:53`
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rec, err := ParseLine(line, now)
	require.NoError(t, err)
	assert.False(t, rec.NATPresent)
	assert.Equal(t, "udp", rec.Protocol)
}

func TestParseLineNoMatch(t *testing.T) {
	_, err := ParseLine("this is not a firewall log line", time.Now())
	require.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParseLineBadIP(t *testing.T) {
	line := `Aug  1 09:00:01 router firewall,info forward: in:ether3 out:ether4, proto udp, 999.0.0.5:5353->1.1.1.1:53`
	_, err := ParseLine(line, time.Now())
	assert.Error(t, err)
}

func TestYearInferenceDecemberToJanuary(t *testing.T) {
	now := time.Date(2027, 1, 3, 0, 0, 0, 0, time.UTC)
	ts, err := parseSyslogTimestamp("Dec 31 23:59:59", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC).Unix(), ts)
}

func TestYearInferenceSameYear(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ts, err := parseSyslogTimestamp("Aug  1 09:00:01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 9, 0, 1, 0, time.UTC).Unix(), ts)
}

func TestExtractState(t *testing.T) {
	assert.Equal(t, "established", extractState("... state:established ..."))
	assert.Equal(t, "", extractState("... no state here ..."))
}
