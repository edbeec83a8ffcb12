package diskmanager

import (
	"fmt"
	"testing"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedUsage reports a filesystem of 1000 bytes with the given bytes free
func fixedUsage(available uint64) UsageFunc {
	return func(string) (uint64, uint64, error) {
		return 1000, available, nil
	}
}

func newManager(t *testing.T, usage UsageFunc) *DiskManager {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.CheckInterval = time.Hour
	cfg.Usage = usage
	dm, err := NewDiskManager(cfg, zap.NewNop())
	require.NoError(t, err)
	return dm
}

func TestCheckBeforeWrite(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		write     uint64
		want      errors.ErrorCode
	}{
		{name: "plenty of room", available: 500, write: 100, want: errors.ErrCodeOK},
		{name: "warning only", available: 150, write: 100, want: errors.ErrCodeOK},
		{name: "throttled small write", available: 80, write: 5, want: errors.ErrCodeOK},
		{name: "throttled large write", available: 80, write: 50, want: errors.ErrCodeDiskThrottled},
		{name: "circuit broken", available: 40, write: 1, want: errors.ErrCodeDiskFull},
		{name: "does not fit", available: 300, write: 301, want: errors.ErrCodeDiskFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := newManager(t, fixedUsage(tt.available))

			err := dm.CheckBeforeWrite(tt.write)
			if tt.want == errors.ErrCodeOK {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.GetCode(err))
		})
	}
}

func TestGetDiskUsage(t *testing.T) {
	dm := newManager(t, fixedUsage(80))

	stats := dm.GetDiskUsage()
	assert.InDelta(t, 92.0, stats.UsagePercent, 0.001)
	assert.Equal(t, uint64(1000), stats.TotalBytes)
	assert.Equal(t, uint64(920), stats.UsedBytes())
	assert.True(t, stats.IsThrottled)
	assert.False(t, stats.IsCircuitBroken)
}

func TestForceCheck_RecoversAfterSpaceFreed(t *testing.T) {
	available := uint64(10)
	dm := newManager(t, func(string) (uint64, uint64, error) {
		return 1000, available, nil
	})
	assert.Equal(t, errors.ErrCodeDiskFull, errors.GetCode(dm.CheckBeforeWrite(1)))

	available = 900
	require.NoError(t, dm.ForceCheck())
	assert.NoError(t, dm.CheckBeforeWrite(1))
}

func TestForceCheck_ProbeFailure(t *testing.T) {
	dm := newManager(t, func(dir string) (uint64, uint64, error) {
		return 0, 0, fmt.Errorf("statfs %s: no such device", dir)
	})
	assert.Error(t, dm.ForceCheck())
}

func TestNewDiskManager_InvalidConfig(t *testing.T) {
	_, err := NewDiskManager(&DiskManagerConfig{}, nil)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	_, err = NewDiskManager(&DiskManagerConfig{
		DataDir:                 t.TempDir(),
		ThrottleThreshold:       99,
		CircuitBreakerThreshold: 90,
	}, nil)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
}

func TestStatfsUsage(t *testing.T) {
	total, available, err := statfsUsage(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, total, uint64(0))
	assert.LessOrEqual(t, available, total)
}
