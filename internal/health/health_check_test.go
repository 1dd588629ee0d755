package health

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/storage/diskmanager"
)

type fakeDisk struct{ usage float64 }

func (d fakeDisk) GetDiskUsage() diskmanager.DiskUsageStats {
	return diskmanager.DiskUsageStats{UsagePercent: d.usage, AvailableBytes: 1 << 30, LastCheck: time.Now()}
}

type fakeLoader struct{}

func (fakeLoader) ItemCount() int     { return 7 }
func (fakeLoader) LoadedBytes() int64 { return 4096 }

type fakeCache struct{}

func (fakeCache) HitRate() float64 { return 0.25 }

func newChecker(t *testing.T, usage float64) *HealthChecker {
	t.Helper()
	return NewHealthChecker(&HealthCheckConfig{
		LafDir:  t.TempDir(),
		WorkDir: t.TempDir(),
		Disk:    fakeDisk{usage: usage},
		Loader:  fakeLoader{},
		Cache:   fakeCache{},
	}, zap.NewNop())
}

func TestChecksHealthy(t *testing.T) {
	h := newChecker(t, 50)
	h.RunChecks()

	checks := h.Checks()
	assert.Len(t, checks, 3)
	for name, c := range checks {
		assert.Equal(t, "healthy", c.Status, name)
	}
	assert.True(t, h.IsReady())
}

func TestDiskThresholds(t *testing.T) {
	tests := []struct {
		usage  float64
		status string
		ready  bool
	}{
		{50, "healthy", true},
		{92, "warning", true},
		{99, "critical", false},
	}
	for _, tt := range tests {
		h := newChecker(t, tt.usage)
		h.RunChecks()
		assert.Equal(t, tt.status, h.Checks()["disk_space"].Status)
		assert.Equal(t, tt.ready, h.IsReady())
	}
}

func TestWorkDirMissing(t *testing.T) {
	h := NewHealthChecker(&HealthCheckConfig{
		LafDir:  filepath.Join(t.TempDir(), "absent"),
		WorkDir: filepath.Join(t.TempDir(), "absent"),
	}, nil)
	h.RunChecks()

	checks := h.Checks()
	assert.Equal(t, "critical", checks["work_dir_writable"].Status)
	assert.Equal(t, "warning", checks["laf_dir_readable"].Status)
	assert.Equal(t, "healthy", checks["disk_space"].Status)
	assert.False(t, h.IsReady())
}

func TestStatus(t *testing.T) {
	h := newChecker(t, 40)
	h.RunChecks()
	h.SetStatus(model.FabricStatusRunning, "tiny", "px", "plain")

	st := h.Status()
	assert.Equal(t, model.FabricStatusRunning, st.Status)
	assert.Equal(t, "tiny", st.Source)
	assert.Equal(t, "px", st.Annox)
	assert.Equal(t, "plain", st.Task)
	assert.Equal(t, 7, st.Metrics.LoadedItems)
	assert.Equal(t, int64(4096), st.Metrics.LoadedBytes)
	assert.Equal(t, 0.25, st.Metrics.CacheHitRate)
	assert.Equal(t, 40.0, st.Metrics.DiskUsage)

	h.SetStatus(model.FabricStatusFailed, "tiny", "", "plain")
	assert.False(t, h.IsReady())
}

func TestProbeFileRemoved(t *testing.T) {
	h := newChecker(t, 10)
	h.RunChecks()
	entries, err := os.ReadDir(h.cfg.WorkDir)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
