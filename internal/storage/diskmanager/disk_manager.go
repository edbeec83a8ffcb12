package diskmanager

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"go.uber.org/zap"
)

// UsageFunc reports the total and available bytes of the filesystem holding dir
type UsageFunc func(dir string) (total, available uint64, err error)

// DiskManager monitors the filesystem holding a history file and vetoes
// node flushes when it runs out of room
type DiskManager struct {
	dataDir       string
	logger        *zap.Logger
	usage         UsageFunc
	checkInterval time.Duration

	// Thresholds in percent of capacity used
	warningThreshold        float64
	throttleThreshold       float64
	circuitBreakerThreshold float64

	mu                   sync.Mutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedTotalBytes     uint64
	cachedAvailableBytes uint64
	isThrottled          bool
	isCircuitBroken      bool
}

// DiskManagerConfig holds configuration for disk manager
type DiskManagerConfig struct {
	DataDir                 string
	CheckInterval           time.Duration
	WarningThreshold        float64
	ThrottleThreshold       float64
	CircuitBreakerThreshold float64

	// Usage overrides the statfs probe
	Usage UsageFunc
}

// NewDiskManager creates a new disk manager with specified thresholds
func NewDiskManager(cfg *DiskManagerConfig, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, errors.InvalidArgument("data directory is required", nil)
	}
	if cfg.ThrottleThreshold > cfg.CircuitBreakerThreshold {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("throttle threshold %.1f above circuit breaker threshold %.1f",
				cfg.ThrottleThreshold, cfg.CircuitBreakerThreshold), nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	usage := cfg.Usage
	if usage == nil {
		usage = statfsUsage
	}

	dm := &DiskManager{
		dataDir:                 cfg.DataDir,
		logger:                  logger,
		usage:                   usage,
		checkInterval:           cfg.CheckInterval,
		warningThreshold:        cfg.WarningThreshold,
		throttleThreshold:       cfg.ThrottleThreshold,
		circuitBreakerThreshold: cfg.CircuitBreakerThreshold,
	}

	if err := dm.ForceCheck(); err != nil {
		logger.Warn("Initial disk space check failed", zap.Error(err))
	}

	return dm, nil
}

// DefaultConfig returns default disk manager configuration
func DefaultConfig(dataDir string) *DiskManagerConfig {
	return &DiskManagerConfig{
		DataDir:                 dataDir,
		CheckInterval:           10 * time.Second,
		WarningThreshold:        80.0,
		ThrottleThreshold:       90.0,
		CircuitBreakerThreshold: 95.0,
	}
}

// CheckBeforeWrite returns an error if a write of estimatedBytes should be rejected
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	if dm.isCircuitBroken {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes).
			WithDetail("circuit_broken", true)
	}

	// Small writes still pass while throttled
	if dm.isThrottled && estimatedBytes > dm.cachedAvailableBytes/10 {
		return errors.DiskThrottled(dm.cachedUsagePercent).
			WithDetail("estimated_bytes", estimatedBytes)
	}

	if estimatedBytes > dm.cachedAvailableBytes {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes).
			WithDetail("estimated_bytes", estimatedBytes)
	}

	return nil
}

// checkDiskSpace refreshes usage and updates state. Must be called with mu held.
func (dm *DiskManager) checkDiskSpace() error {
	totalBytes, availableBytes, err := dm.usage(dm.dataDir)
	if err != nil {
		return err
	}
	if totalBytes == 0 {
		return fmt.Errorf("filesystem at %s reports zero capacity", dm.dataDir)
	}

	usedBytes := totalBytes - availableBytes
	usagePercent := (float64(usedBytes) / float64(totalBytes)) * 100.0

	dm.cachedUsagePercent = usagePercent
	dm.cachedTotalBytes = totalBytes
	dm.cachedAvailableBytes = availableBytes
	dm.lastCheck = time.Now()

	previouslyThrottled := dm.isThrottled
	previouslyBroken := dm.isCircuitBroken

	dm.isCircuitBroken = usagePercent >= dm.circuitBreakerThreshold
	dm.isThrottled = usagePercent >= dm.throttleThreshold && !dm.isCircuitBroken

	if dm.isCircuitBroken && !previouslyBroken {
		dm.logger.Error("Disk circuit breaker ENGAGED",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("threshold", dm.circuitBreakerThreshold))
	} else if !dm.isCircuitBroken && previouslyBroken {
		dm.logger.Info("Disk circuit breaker DISENGAGED",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes))
	}

	if dm.isThrottled && !previouslyThrottled {
		dm.logger.Warn("Disk write throttling ENABLED",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("threshold", dm.throttleThreshold))
	} else if !dm.isThrottled && previouslyThrottled {
		dm.logger.Info("Disk write throttling DISABLED",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes))
	}

	if usagePercent >= dm.warningThreshold && !dm.isThrottled && !dm.isCircuitBroken {
		dm.logger.Warn("Disk usage warning",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("warning_threshold", dm.warningThreshold))
	}

	return nil
}

// GetDiskUsage returns current disk usage statistics
func (dm *DiskManager) GetDiskUsage() DiskUsageStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	return DiskUsageStats{
		UsagePercent:    dm.cachedUsagePercent,
		TotalBytes:      dm.cachedTotalBytes,
		AvailableBytes:  dm.cachedAvailableBytes,
		IsThrottled:     dm.isThrottled,
		IsCircuitBroken: dm.isCircuitBroken,
		LastCheck:       dm.lastCheck,
	}
}

// ForceCheck forces an immediate disk space check
func (dm *DiskManager) ForceCheck() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.checkDiskSpace()
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	UsagePercent    float64
	TotalBytes      uint64
	AvailableBytes  uint64
	IsThrottled     bool
	IsCircuitBroken bool
	LastCheck       time.Time
}

// UsedBytes returns the bytes in use at the last check
func (s DiskUsageStats) UsedBytes() uint64 {
	return s.TotalBytes - s.AvailableBytes
}

func statfsUsage(dir string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}
