package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/diskmanager"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/devrev/histtree/internal/storage/nodecache"
	"go.uber.org/zap"
)

// TreeSource is the served tree as seen by the health checker
type TreeSource interface {
	Metadata() model.TreeMetadata
	QueueDepth() int
	CacheStats(ctx context.Context) (nodecache.Stats, error)
}

// DiskSource reports usage of the filesystem holding the tree
type DiskSource interface {
	GetDiskUsage() diskmanager.DiskUsageStats
}

const (
	statusHealthy  = "healthy"
	statusWarning  = "warning"
	statusCritical = "critical"
)

// HealthChecker periodically checks a served history tree
type HealthChecker struct {
	tree          TreeSource
	disk          DiskSource
	queueSize     int
	checkInterval time.Duration
	logger        *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.TreeStatus
	metrics     model.HealthMetrics
	checks      map[string]CheckResult
	readinessOK bool
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string
	Status    string
	Message   string
	Timestamp time.Time
}

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	// QueueSize is the capacity of the tree's query queue
	QueueSize     int
	CheckInterval time.Duration
}

// NewHealthChecker creates a new health checker. disk may be nil.
func NewHealthChecker(cfg *HealthCheckConfig, tree TreeSource, disk DiskSource, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthChecker{
		tree:          tree,
		disk:          disk,
		queueSize:     cfg.QueueSize,
		checkInterval: interval,
		logger:        logger,
		checks:        make(map[string]CheckResult),
		status:        model.TreeStatusHealthy,
		readinessOK:   true,
	}
}

// Start runs the checks until ctx is done
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			h.RunChecks(ctx)
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// RunChecks runs all checks once and updates the reported status
func (h *HealthChecker) RunChecks(ctx context.Context) {
	var hm model.HealthMetrics
	results := []CheckResult{
		h.checkTreeFile(),
		h.checkDiskSpace(&hm),
		h.checkQueryQueue(&hm),
		h.checkNodeCache(ctx, &hm),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()
	allHealthy, allReady := true, true
	for _, result := range results {
		h.checks[result.Name] = result
		if result.Status != statusHealthy {
			allHealthy = false
			if result.Status == statusCritical {
				allReady = false
			}
		}
	}

	switch {
	case allHealthy:
		h.status = model.TreeStatusHealthy
	case allReady:
		h.status = model.TreeStatusDegraded
	default:
		h.status = model.TreeStatusUnhealthy
	}
	h.readinessOK = allReady
	h.metrics = hm

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("readiness", h.readinessOK))
}

// checkTreeFile checks that the served file is still in place
func (h *HealthChecker) checkTreeFile() CheckResult {
	meta := h.tree.Metadata()
	info, err := os.Stat(meta.FilePath)
	if err != nil {
		return newResult("tree_file", statusCritical, fmt.Sprintf("History file not accessible: %v", err))
	}

	want := historyfile.NodeOffset(meta.NodeCount, int(meta.BlockSize))
	if info.Size() < want {
		return newResult("tree_file", statusCritical,
			fmt.Sprintf("History file shrank to %d bytes, expected at least %d", info.Size(), want))
	}

	return newResult("tree_file", statusHealthy,
		fmt.Sprintf("%d nodes covering [%d, %d]", meta.NodeCount, meta.Start, meta.End))
}

// checkDiskSpace checks usage of the filesystem holding the tree
func (h *HealthChecker) checkDiskSpace(hm *model.HealthMetrics) CheckResult {
	if h.disk == nil {
		return newResult("disk_space", statusHealthy, "Disk monitoring disabled")
	}

	stats := h.disk.GetDiskUsage()
	hm.DiskUsage = stats.UsagePercent

	switch {
	case stats.IsCircuitBroken:
		return newResult("disk_space", statusCritical, fmt.Sprintf("Disk usage critical: %.2f%%", stats.UsagePercent))
	case stats.IsThrottled:
		return newResult("disk_space", statusWarning, fmt.Sprintf("Disk usage high: %.2f%%", stats.UsagePercent))
	}
	return newResult("disk_space", statusHealthy,
		fmt.Sprintf("Disk usage: %.2f%%, available: %.2f GB", stats.UsagePercent, float64(stats.AvailableBytes)/1024/1024/1024))
}

// checkQueryQueue checks how far the query worker is behind
func (h *HealthChecker) checkQueryQueue(hm *model.HealthMetrics) CheckResult {
	depth := h.tree.QueueDepth()
	hm.QueuedQueries = depth

	if h.queueSize > 0 && depth*10 >= h.queueSize*9 {
		return newResult("query_queue", statusWarning, fmt.Sprintf("Query queue nearly full: %d/%d", depth, h.queueSize))
	}
	return newResult("query_queue", statusHealthy, fmt.Sprintf("Queued queries: %d", depth))
}

// checkNodeCache round-trips through the query worker and reports cache use
func (h *HealthChecker) checkNodeCache(ctx context.Context, hm *model.HealthMetrics) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.checkInterval)
	defer cancel()

	stats, err := h.tree.CacheStats(ctx)
	if err != nil {
		return newResult("node_cache", statusCritical, fmt.Sprintf("Query worker not responding: %v", err))
	}
	hm.CacheEntries = stats.Entries
	hm.CacheHitRate = stats.HitRate()

	return newResult("node_cache", statusHealthy,
		fmt.Sprintf("Cached nodes: %d/%d, hit rate %.2f%%", stats.Entries, stats.Capacity, stats.HitRate()))
}

func newResult(name, status, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message, Timestamp: time.Now()}
}

// IsReady returns whether the tree can serve queries
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// GetStatus returns the current health status
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return model.HealthStatus{
		FilePath:  h.tree.Metadata().FilePath,
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
		Metrics:   h.metrics,
	}
}

// GetChecks returns all check results
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}

// SetReadiness manually sets readiness status (for graceful shutdown)
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := h.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy": true,
		"status":  status.Status,
	})
}

// ReadinessHandler handles HTTP readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	status := h.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":          ready,
		"status":         status.Status,
		"path":           status.FilePath,
		"queued_queries": status.Metrics.QueuedQueries,
		"cache_hit_rate": status.Metrics.CacheHitRate,
		"disk_usage":     status.Metrics.DiskUsage,
	})
}
