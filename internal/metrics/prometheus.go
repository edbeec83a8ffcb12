package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one history tree.
// All recording methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Write path metrics
	IntervalsInsertedTotal prometheus.Counter
	InsertDuration         prometheus.Histogram
	IntervalsBubbledTotal  prometheus.Counter
	NodesSealedTotal       prometheus.Counter
	NodeBytesWrittenTotal  prometheus.Counter
	NodeWriteDuration      prometheus.Histogram
	TreeHeight             prometheus.Gauge
	TreeNodesTotal         prometheus.Gauge

	// Read path metrics
	QueriesTotal        *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
	QueryResultsTotal   prometheus.Histogram
	NodeReadsTotal      prometheus.Counter
	NodeReadDuration    prometheus.Histogram
	NodeReadErrorsTotal prometheus.Counter

	// Cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheEntries        prometheus.Gauge

	// Worker metrics
	WorkerQueueDepth    *prometheus.GaugeVec
	WorkerTasksTotal    *prometheus.CounterVec
	WorkerBlockedSubmit *prometheus.CounterVec

	// System metrics
	DiskUsageBytes     prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	DiskUsagePercent   prometheus.Gauge
	MemoryUsageBytes   prometheus.Gauge
	GoroutinesTotal    prometheus.Gauge
}

// NewMetrics creates all metrics for the named tree and registers them with reg
func NewMetrics(reg prometheus.Registerer, treeName string) *Metrics {
	labels := prometheus.Labels{"tree": treeName}
	factory := promauto.With(reg)

	return &Metrics{
		IntervalsInsertedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "writer",
			Name:        "intervals_inserted_total",
			Help:        "Total number of intervals inserted",
			ConstLabels: labels,
		}),
		InsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "histtree",
			Subsystem:   "writer",
			Name:        "insert_duration_seconds",
			Help:        "Histogram of insert durations, including node splits",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~260ms
		}),
		IntervalsBubbledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "writer",
			Name:        "intervals_bubbled_total",
			Help:        "Intervals stored in an ancestor of the open leaf",
			ConstLabels: labels,
		}),
		NodesSealedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "writer",
			Name:        "nodes_sealed_total",
			Help:        "Total number of nodes sealed and flushed",
			ConstLabels: labels,
		}),
		NodeBytesWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "writer",
			Name:        "node_bytes_written_total",
			Help:        "Total bytes of node blocks written",
			ConstLabels: labels,
		}),
		NodeWriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "histtree",
			Subsystem:   "writer",
			Name:        "node_write_duration_seconds",
			Help:        "Histogram of node block write durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		TreeHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "tree",
			Name:        "height",
			Help:        "Current number of levels in the tree",
			ConstLabels: labels,
		}),
		TreeNodesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "tree",
			Name:        "nodes",
			Help:        "Current number of nodes in the tree",
			ConstLabels: labels,
		}),

		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "reader",
			Name:        "queries_total",
			Help:        "Total number of queries by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "histtree",
			Subsystem:   "reader",
			Name:        "query_duration_seconds",
			Help:        "Histogram of query durations by kind",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"kind"}),
		QueryResultsTotal: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "histtree",
			Subsystem:   "reader",
			Name:        "query_results",
			Help:        "Histogram of intervals returned per query",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),
		NodeReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "reader",
			Name:        "node_reads_total",
			Help:        "Total number of node blocks read from disk",
			ConstLabels: labels,
		}),
		NodeReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "histtree",
			Subsystem:   "reader",
			Name:        "node_read_duration_seconds",
			Help:        "Histogram of node block read durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		NodeReadErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "reader",
			Name:        "node_read_errors_total",
			Help:        "Total number of failed node loads",
			ConstLabels: labels,
		}),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Total number of node cache hits",
			ConstLabels: labels,
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Total number of node cache misses",
			ConstLabels: labels,
		}),
		CacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Total number of node cache evictions",
			ConstLabels: labels,
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "cache",
			Name:        "entries",
			Help:        "Current number of cached nodes",
			ConstLabels: labels,
		}),

		WorkerQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "worker",
			Name:        "queue_depth",
			Help:        "Requests waiting for the background worker",
			ConstLabels: labels,
		}, []string{"worker"}),
		WorkerTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "worker",
			Name:        "tasks_total",
			Help:        "Requests processed by the background worker by outcome",
			ConstLabels: labels,
		}, []string{"worker", "status"}),
		WorkerBlockedSubmit: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "histtree",
			Subsystem:   "worker",
			Name:        "blocked_submits_total",
			Help:        "Submits that found the queue full and waited",
			ConstLabels: labels,
		}, []string{"worker"}),

		DiskUsageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "system",
			Name:        "disk_usage_bytes",
			Help:        "Disk space used on the history file's filesystem",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Disk space available on the history file's filesystem",
			ConstLabels: labels,
		}),
		DiskUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage percentage",
			ConstLabels: labels,
		}),
		MemoryUsageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Heap bytes allocated",
			ConstLabels: labels,
		}),
		GoroutinesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "histtree",
			Subsystem:   "system",
			Name:        "goroutines",
			Help:        "Number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordInsert records one inserted interval
func (m *Metrics) RecordInsert(duration float64, bubbled bool) {
	if m == nil {
		return
	}
	m.IntervalsInsertedTotal.Inc()
	m.InsertDuration.Observe(duration)
	if bubbled {
		m.IntervalsBubbledTotal.Inc()
	}
}

// RecordNodeWrite records a sealed node flushed to disk
func (m *Metrics) RecordNodeWrite(bytes int, duration float64) {
	if m == nil {
		return
	}
	m.NodesSealedTotal.Inc()
	m.NodeBytesWrittenTotal.Add(float64(bytes))
	m.NodeWriteDuration.Observe(duration)
}

// UpdateTreeShape updates the height and node count gauges
func (m *Metrics) UpdateTreeShape(height int, nodes uint32) {
	if m == nil {
		return
	}
	m.TreeHeight.Set(float64(height))
	m.TreeNodesTotal.Set(float64(nodes))
}

// RecordQuery records a query of the given kind and its result size
func (m *Metrics) RecordQuery(kind string, duration float64, results int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration)
	m.QueryResultsTotal.Observe(float64(results))
}

// RecordNodeRead records a node block loaded from disk
func (m *Metrics) RecordNodeRead(duration float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.NodeReadErrorsTotal.Inc()
		return
	}
	m.NodeReadsTotal.Inc()
	m.NodeReadDuration.Observe(duration)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordCacheEviction records a cache eviction
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.CacheEvictionsTotal.Inc()
}

// UpdateCacheEntries updates the cached node count
func (m *Metrics) UpdateCacheEntries(entries int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(entries))
}

// UpdateQueueDepth updates the pending request gauge of a worker
func (m *Metrics) UpdateQueueDepth(worker string, depth int) {
	if m == nil {
		return
	}
	m.WorkerQueueDepth.WithLabelValues(worker).Set(float64(depth))
}

// RecordWorkerTask records a request completed by a worker
func (m *Metrics) RecordWorkerTask(worker string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.WorkerTasksTotal.WithLabelValues(worker, status).Inc()
}

// RecordBlockedSubmit records a producer that had to wait for queue space
func (m *Metrics) RecordBlockedSubmit(worker string) {
	if m == nil {
		return
	}
	m.WorkerBlockedSubmit.WithLabelValues(worker).Inc()
}

// UpdateSystemStats updates system-level statistics
func (m *Metrics) UpdateSystemStats(diskUsage, diskAvailable, memoryUsage int64, goroutines int) {
	if m == nil {
		return
	}
	m.DiskUsageBytes.Set(float64(diskUsage))
	m.DiskAvailableBytes.Set(float64(diskAvailable))
	if diskUsage+diskAvailable > 0 {
		m.DiskUsagePercent.Set(float64(diskUsage) / float64(diskUsage+diskAvailable) * 100)
	}
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}
