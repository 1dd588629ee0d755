package diskmanager

import (
	"fmt"
	"testing"
	"time"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, total, available uint64) *DiskManager {
	t.Helper()
	dm, err := NewDiskManager(DefaultConfig(t.TempDir()), zap.NewNop())
	require.NoError(t, err)
	dm.statfs = func(string) (uint64, uint64, error) { return total, available, nil }
	return dm
}

func TestCheckBeforeWrite(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		available uint64
		estimate  uint64
		wantErr   bool
	}{
		{"plenty of room", 1000, 800, 100, false},
		{"does not fit", 1000, 800, 900, true},
		{"disk nearly full", 1000, 10, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := newTestManager(t, tt.total, tt.available)
			err := dm.CheckBeforeWrite(tt.estimate)
			if tt.wantErr {
				assert.Equal(t, fabricerrors.ErrCodeDiskFull, fabricerrors.GetCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStatFailureDoesNotBlockWrites(t *testing.T) {
	dm := newTestManager(t, 0, 0)
	dm.statfs = func(string) (uint64, uint64, error) { return 0, 0, fmt.Errorf("no statfs") }

	assert.NoError(t, dm.CheckBeforeWrite(1<<40))
}

func TestGetDiskUsageCachesFigures(t *testing.T) {
	dm := newTestManager(t, 1000, 250)
	calls := 0
	dm.statfs = func(string) (uint64, uint64, error) {
		calls++
		return 1000, 250, nil
	}
	dm.checkInterval = time.Hour

	stats := dm.GetDiskUsage()
	assert.InDelta(t, 75.0, stats.UsagePercent, 0.001)
	assert.Equal(t, uint64(250), stats.AvailableBytes)
	assert.Equal(t, uint64(750), stats.UsedBytes())

	dm.GetDiskUsage()
	assert.Equal(t, 1, calls)
}

func TestRealFilesystem(t *testing.T) {
	dm, err := NewDiskManager(DefaultConfig(t.TempDir()), zap.NewNop())
	require.NoError(t, err)

	stats := dm.GetDiskUsage()
	assert.False(t, stats.LastCheck.IsZero())
}
