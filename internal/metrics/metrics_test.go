package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordInsert(0.1, true)
		m.RecordNodeWrite(4096, 0.1)
		m.UpdateTreeShape(3, 10)
		m.RecordQuery("all", 0.1, 2)
		m.RecordNodeRead(0.1, nil)
		m.RecordCacheHit()
		m.RecordCacheMiss()
		m.RecordCacheEviction()
		m.UpdateCacheEntries(4)
		m.UpdateQueueDepth("writer", 1)
		m.RecordWorkerTask("writer", nil)
		m.RecordBlockedSubmit("writer")
		m.UpdateSystemStats(1, 1, 1, 1)
	})
}

func TestNewMetrics_RegistersPerTree(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetrics(reg, "a")
	b := NewMetrics(reg, "b")

	a.RecordInsert(0.01, false)
	a.RecordInsert(0.01, true)
	b.RecordInsert(0.01, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.IntervalsInsertedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.IntervalsBubbledTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.IntervalsInsertedTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordings(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "t")

	m.RecordNodeWrite(256, 0.001)
	m.RecordNodeWrite(256, 0.001)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodesSealedTotal))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.NodeBytesWrittenTotal))

	m.UpdateTreeShape(4, 17)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TreeHeight))
	assert.Equal(t, 17.0, testutil.ToFloat64(m.TreeNodesTotal))

	m.RecordQuery("all", 0.001, 3)
	m.RecordQuery("single", 0.001, 1)
	m.RecordQuery("all", 0.001, 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("single")))

	m.RecordNodeRead(0.001, nil)
	m.RecordNodeRead(0, errors.New("short read"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeReadsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeReadErrorsTotal))

	m.RecordWorkerTask("writer", nil)
	m.RecordWorkerTask("writer", errors.New("boom"))
	m.RecordBlockedSubmit("writer")
	m.UpdateQueueDepth("writer", 5)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerTasksTotal.WithLabelValues("writer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerTasksTotal.WithLabelValues("writer", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerBlockedSubmit.WithLabelValues("writer")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.WorkerQueueDepth.WithLabelValues("writer")))

	m.UpdateSystemStats(25, 75, 1024, 12)
	assert.Equal(t, 25.0, testutil.ToFloat64(m.DiskUsagePercent))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.GoroutinesTotal))
}
