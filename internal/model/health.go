package model

// HealthStatus represents the health state of a history tree server
type HealthStatus struct {
	FilePath  string
	Status    TreeStatus
	Timestamp int64
	Metrics   HealthMetrics
}

// TreeStatus defines the operational status of a served tree
type TreeStatus string

const (
	TreeStatusHealthy   TreeStatus = "healthy"
	TreeStatusDegraded  TreeStatus = "degraded"
	TreeStatusUnhealthy TreeStatus = "unhealthy"
)

// HealthMetrics contains various health metrics
type HealthMetrics struct {
	DiskUsage     float64
	QueuedQueries int
	CacheEntries  int
	CacheHitRate  float64
}
