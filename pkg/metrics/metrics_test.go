package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(RowsFilled.WithLabelValues("metrics-test"))
	RowsFilled.WithLabelValues("metrics-test").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(RowsFilled.WithLabelValues("metrics-test")))

	AuxRows.WithLabelValues("Runs", DecisionDropped).Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(AuxRows.WithLabelValues("Runs", DecisionDropped)), 1.0)
}

func TestDump(t *testing.T) {
	BytesPersisted.WithLabelValues("manifest").Add(42)

	path := filepath.Join(t.TempDir(), "ntuple.prom")
	require.NoError(t, Dump(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `ntuple_bytes_persisted_total{kind="manifest"}`))
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("Events")
	tracker.Increment(100)
	time.Sleep(5 * time.Millisecond)

	rate := tracker.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, testutil.ToFloat64(Throughput.WithLabelValues("Events")))

	timer := NewTimer("close")
	assert.Equal(t, "close", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}

func TestResourceMonitorPublish(t *testing.T) {
	rm := NewResourceMonitor()
	usage := rm.Publish()
	require.NotNil(t, usage)
	assert.Greater(t, usage.MemoryRSS, uint64(0))
	assert.Greater(t, usage.GoroutineCount, 0)
	assert.Equal(t, float64(usage.MemoryRSS), testutil.ToFloat64(ProcessRSS))
}
