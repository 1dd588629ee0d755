package diskmanager

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"go.uber.org/zap"
)

// DiskManager monitors the disk holding the compiled data and refuses
// compilations that would not fit
type DiskManager struct {
	dataDir              string
	logger               *zap.Logger
	mu                   sync.Mutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedAvailableBytes uint64
	cachedTotalBytes     uint64
	checkInterval        time.Duration

	warningThreshold float64
	fullThreshold    float64

	statfs func(path string) (total, available uint64, err error)
}

// DiskManagerConfig holds configuration for disk manager
type DiskManagerConfig struct {
	DataDir          string
	CheckInterval    time.Duration
	WarningThreshold float64
	FullThreshold    float64
}

// DefaultConfig returns default disk manager configuration
func DefaultConfig(dataDir string) *DiskManagerConfig {
	return &DiskManagerConfig{
		DataDir:          dataDir,
		CheckInterval:    10 * time.Second,
		WarningThreshold: 90.0,
		FullThreshold:    98.0,
	}
}

// NewDiskManager creates a new disk manager. The data directory is created
// when missing so that it can be inspected.
func NewDiskManager(cfg *DiskManagerConfig, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &DiskManager{
		dataDir:          cfg.DataDir,
		logger:           logger,
		checkInterval:    cfg.CheckInterval,
		warningThreshold: cfg.WarningThreshold,
		fullThreshold:    cfg.FullThreshold,
		statfs:           statfs,
	}, nil
}

// CheckBeforeWrite returns an error when a write of the given size should be refused
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
			return nil
		}
	}

	if dm.cachedUsagePercent >= dm.fullThreshold || estimatedBytes > dm.cachedAvailableBytes {
		return fabricerrors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes).
			WithDetail("estimated_bytes", estimatedBytes)
	}
	return nil
}

// checkDiskSpace refreshes the cached figures; the lock must be held
func (dm *DiskManager) checkDiskSpace() error {
	total, available, err := dm.statfs(dm.dataDir)
	if err != nil {
		return err
	}
	if total == 0 {
		return fmt.Errorf("filesystem of %s reports zero size", dm.dataDir)
	}

	dm.cachedAvailableBytes = available
	dm.cachedTotalBytes = total
	dm.cachedUsagePercent = float64(total-available) / float64(total) * 100.0
	dm.lastCheck = time.Now()

	if dm.cachedUsagePercent >= dm.warningThreshold {
		dm.logger.Warn("Disk usage warning",
			zap.String("dir", dm.dataDir),
			zap.Float64("usage_percent", dm.cachedUsagePercent),
			zap.Uint64("available_bytes", available),
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
		UsagePercent:   dm.cachedUsagePercent,
		AvailableBytes: dm.cachedAvailableBytes,
		TotalBytes:     dm.cachedTotalBytes,
		LastCheck:      dm.lastCheck,
	}
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	UsagePercent   float64
	AvailableBytes uint64
	TotalBytes     uint64
	LastCheck      time.Time
}

// UsedBytes is the part of the filesystem in use
func (s DiskUsageStats) UsedBytes() uint64 {
	if s.TotalBytes < s.AvailableBytes {
		return 0
	}
	return s.TotalBytes - s.AvailableBytes
}

func statfs(path string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}
