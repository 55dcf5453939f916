// Package metrics exposes the pipeline's operational counters as
// Prometheus gauges/counters, mirroring in spirit the teacher's
// server/stats.go atomic counters but surfaced for external scraping
// rather than an internal query_handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Receiver metrics.
var (
	ReceiverDatagramsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "receiver",
		Name:      "datagrams_received_total",
		Help:      "UDP datagrams received by the receiver.",
	})
	ReceiverDatagramsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "receiver",
		Name:      "datagrams_written_total",
		Help:      "Datagrams successfully appended to the hot buffer.",
	})
	ReceiverErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "receiver",
		Name:      "errors_total",
		Help:      "Socket read or buffer write errors.",
	})
	ReceiverLastSeenUnix = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cgnatlog",
		Subsystem: "receiver",
		Name:      "last_datagram_unixtime",
		Help:      "Unix timestamp of the most recently received datagram.",
	})
)

// Processor metrics.
var (
	ProcessorLinesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "processor",
		Name:      "lines_processed_total",
		Help:      "Lines read from the hot buffer.",
	})
	ProcessorLinesInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "processor",
		Name:      "lines_inserted_total",
		Help:      "Rows committed to a shard.",
	})
	ProcessorLinesFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "processor",
		Name:      "lines_filtered_total",
		Help:      "Lines dropped by noise filters.",
	})
	ProcessorLinesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "processor",
		Name:      "lines_failed_total",
		Help:      "Lines that failed to parse (no regex matched, or a malformed timestamp, IP or port).",
	})
	ProcessorRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgnatlog",
		Subsystem: "processor",
		Name:      "rotations_total",
		Help:      "Day-boundary shard rotations performed.",
	})
	ProcessorLastLogSeenUnix = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cgnatlog",
		Subsystem: "processor",
		Name:      "last_log_seen_unixtime",
		Help:      "Timestamp of the most recently parsed record.",
	})
)

// Registry is a dedicated Prometheus registry so the /metrics endpoint
// exposes exactly this pipeline's series, not the process defaults
// registered on prometheus.DefaultRegisterer by other imports.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ReceiverDatagramsReceived, ReceiverDatagramsWritten, ReceiverErrors, ReceiverLastSeenUnix,
		ProcessorLinesProcessed, ProcessorLinesInserted, ProcessorLinesFiltered, ProcessorLinesFailed,
		ProcessorRotations, ProcessorLastLogSeenUnix,
	)
}

// SyncFromReceiver copies a receiver.Stats-shaped snapshot into the
// Prometheus series. Accepts plain values rather than importing
// internal/receiver, keeping this package dependency-free of the
// components it instruments.
func SyncFromReceiver(received, written, errs uint64, lastSeenUnix int64) {
	setCounterTo(ReceiverDatagramsReceived, received)
	setCounterTo(ReceiverDatagramsWritten, written)
	setCounterTo(ReceiverErrors, errs)
	ReceiverLastSeenUnix.Set(float64(lastSeenUnix))
}

// SyncFromProcessor mirrors SyncFromReceiver for processor.Stats.
func SyncFromProcessor(processed, inserted, filtered, failed, rotations uint64, lastLogSeenUnix int64) {
	setCounterTo(ProcessorLinesProcessed, processed)
	setCounterTo(ProcessorLinesInserted, inserted)
	setCounterTo(ProcessorLinesFiltered, filtered)
	setCounterTo(ProcessorLinesFailed, failed)
	setCounterTo(ProcessorRotations, rotations)
	ProcessorLastLogSeenUnix.Set(float64(lastLogSeenUnix))
}

// lastValues lets setCounterTo resync an absolute snapshot value onto a
// monotonic Counter by adding only the delta since the last sync.
var lastValues = map[prometheus.Counter]uint64{}

func setCounterTo(c prometheus.Counter, absolute uint64) {
	prev := lastValues[c]
	if absolute > prev {
		c.Add(float64(absolute - prev))
		lastValues[c] = absolute
	}
}
