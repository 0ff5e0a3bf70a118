// Package metrics provides Prometheus counters for row filling, buffer
// regrowth and container persistence.
//
// # Basic Usage
//
//	// Count a committed row
//	metrics.RowsFilled.WithLabelValues("Events").Inc()
//
//	// Time a container upload
//	timer := metrics.NewTimer("close")
//	uploadBlobs()
//	metrics.ContainerIODuration.WithLabelValues("close").Observe(timer.Stop().Seconds())
//
// Batch jobs have no scrape endpoint; Dump writes the registry in the text
// exposition format so node_exporter's textfile collector can pick it up.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aux row decisions.
const (
	DecisionKept    = "kept"
	DecisionDropped = "dropped"
)

var (
	// RowsFilled counts rows appended to output trees.
	// Labels: tree
	RowsFilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntuple_rows_filled_total",
			Help: "Total number of rows committed to output trees",
		},
		[]string{"tree"},
	)

	// BufferRegrowths counts variable-length column buffers replaced by a
	// larger one. Labels: tree
	BufferRegrowths = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntuple_buffer_regrowths_total",
			Help: "Total number of column buffer reallocations",
		},
		[]string{"tree"},
	)

	// AuxRows counts rows of auxiliary trees seen while copying, by whether
	// the row filter kept them. Labels: tree, decision (kept/dropped)
	AuxRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntuple_aux_rows_total",
			Help: "Auxiliary tree rows copied or dropped by the row filter",
		},
		[]string{"tree", "decision"},
	)

	// BytesPersisted counts bytes uploaded to blob storage.
	// Labels: kind (tree/object/manifest/export)
	BytesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntuple_bytes_persisted_total",
			Help: "Total bytes written to blob storage",
		},
		[]string{"kind"},
	)

	// ContainerIODuration tracks how long container open and close take.
	// Labels: operation (open/close)
	ContainerIODuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ntuple_container_io_duration_seconds",
			Help:    "Container open/close duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"operation"},
	)

	// Throughput tracks rows per second of the last copy job.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ntuple_throughput_rows_per_second",
			Help: "Rows per second of the last measured window",
		},
		[]string{"tree"},
	)
)

// Dump writes every registered metric to path in the text exposition format.
func Dump(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	tree      string
}

// NewThroughputTracker creates a new throughput tracker for a tree.
func NewThroughputTracker(tree string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		tree:      tree,
	}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates rows/second since the last reset, publishes it to
// the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.tree).Set(throughput)
	return throughput
}
