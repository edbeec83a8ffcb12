package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/diskmanager"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/devrev/histtree/internal/storage/nodecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTree struct {
	meta     model.TreeMetadata
	depth    int
	stats    nodecache.Stats
	statsErr error
}

func (f *fakeTree) Metadata() model.TreeMetadata { return f.meta }
func (f *fakeTree) QueueDepth() int              { return f.depth }

func (f *fakeTree) CacheStats(context.Context) (nodecache.Stats, error) {
	return f.stats, f.statsErr
}

type fakeDisk struct {
	stats diskmanager.DiskUsageStats
}

func (f *fakeDisk) GetDiskUsage() diskmanager.DiskUsageStats { return f.stats }

func newFakeTree(t *testing.T) *fakeTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.ht")
	size := historyfile.NodeOffset(2, 256)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return &fakeTree{
		meta:  model.TreeMetadata{FilePath: path, BlockSize: 256, NodeCount: 2},
		stats: nodecache.Stats{Entries: 2, Capacity: 8, Hits: 3, Misses: 1},
	}
}

func TestRunChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeTree, *fakeDisk)
		status model.TreeStatus
		ready  bool
	}{
		{
			name:   "all healthy",
			mutate: func(*fakeTree, *fakeDisk) {},
			status: model.TreeStatusHealthy,
			ready:  true,
		},
		{
			name:   "queue nearly full",
			mutate: func(tr *fakeTree, _ *fakeDisk) { tr.depth = 95 },
			status: model.TreeStatusDegraded,
			ready:  true,
		},
		{
			name:   "disk throttled",
			mutate: func(_ *fakeTree, d *fakeDisk) { d.stats.IsThrottled = true },
			status: model.TreeStatusDegraded,
			ready:  true,
		},
		{
			name:   "disk full",
			mutate: func(_ *fakeTree, d *fakeDisk) { d.stats.IsCircuitBroken = true },
			status: model.TreeStatusUnhealthy,
			ready:  false,
		},
		{
			name:   "worker stuck",
			mutate: func(tr *fakeTree, _ *fakeDisk) { tr.statsErr = fmt.Errorf("deadline exceeded") },
			status: model.TreeStatusUnhealthy,
			ready:  false,
		},
		{
			name:   "file removed",
			mutate: func(tr *fakeTree, _ *fakeDisk) { os.Remove(tr.meta.FilePath) },
			status: model.TreeStatusUnhealthy,
			ready:  false,
		},
		{
			name:   "file truncated",
			mutate: func(tr *fakeTree, _ *fakeDisk) { os.Truncate(tr.meta.FilePath, 100) },
			status: model.TreeStatusUnhealthy,
			ready:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newFakeTree(t)
			disk := &fakeDisk{stats: diskmanager.DiskUsageStats{UsagePercent: 42, AvailableBytes: 1 << 30}}
			tt.mutate(tree, disk)

			h := NewHealthChecker(&HealthCheckConfig{QueueSize: 100}, tree, disk, zap.NewNop())
			h.RunChecks(context.Background())

			status := h.GetStatus()
			assert.Equal(t, tt.status, status.Status)
			assert.Equal(t, tt.ready, h.IsReady())
			assert.Equal(t, tree.meta.FilePath, status.FilePath)
			assert.Len(t, h.GetChecks(), 4)
		})
	}
}

func TestRunChecks_Metrics(t *testing.T) {
	tree := newFakeTree(t)
	tree.depth = 7
	h := NewHealthChecker(&HealthCheckConfig{}, tree, &fakeDisk{stats: diskmanager.DiskUsageStats{UsagePercent: 42}}, nil)
	h.RunChecks(context.Background())

	hm := h.GetStatus().Metrics
	assert.Equal(t, 42.0, hm.DiskUsage)
	assert.Equal(t, 7, hm.QueuedQueries)
	assert.Equal(t, 2, hm.CacheEntries)
	assert.Equal(t, 75.0, hm.CacheHitRate)
}

func TestHandlers(t *testing.T) {
	tree := newFakeTree(t)
	h := NewHealthChecker(&HealthCheckConfig{}, tree, nil, nil)
	h.RunChecks(context.Background())

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "healthy", body["status"])

	h.SetReadiness(false)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
