package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncFromReceiverIsMonotonicAndGaugeTracksLatest(t *testing.T) {
	SyncFromReceiver(10, 8, 1, 1000)
	SyncFromReceiver(25, 20, 3, 2000)

	assert.Equal(t, float64(25), testutil.ToFloat64(ReceiverDatagramsReceived))
	assert.Equal(t, float64(20), testutil.ToFloat64(ReceiverDatagramsWritten))
	assert.Equal(t, float64(3), testutil.ToFloat64(ReceiverErrors))
	assert.Equal(t, float64(2000), testutil.ToFloat64(ReceiverLastSeenUnix))
}

func TestSyncFromReceiverIgnoresStaleSnapshot(t *testing.T) {
	SyncFromReceiver(50, 50, 0, 5000)
	before := testutil.ToFloat64(ReceiverDatagramsReceived)

	SyncFromReceiver(10, 10, 0, 1)

	assert.Equal(t, before, testutil.ToFloat64(ReceiverDatagramsReceived), "counter must never decrease")
}

func TestSyncFromProcessor(t *testing.T) {
	SyncFromProcessor(100, 90, 5, 5, 2, 12345)

	assert.Equal(t, float64(100), testutil.ToFloat64(ProcessorLinesProcessed))
	assert.Equal(t, float64(90), testutil.ToFloat64(ProcessorLinesInserted))
	assert.Equal(t, float64(5), testutil.ToFloat64(ProcessorLinesFiltered))
	assert.Equal(t, float64(5), testutil.ToFloat64(ProcessorLinesFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(ProcessorRotations))
	assert.Equal(t, float64(12345), testutil.ToFloat64(ProcessorLastLogSeenUnix))
}

func TestRegistryGathersAllSeries(t *testing.T) {
	families, err := Registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
