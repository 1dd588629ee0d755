// Package health tracks what the fabric is doing and whether its
// directories can be used.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/storage/diskmanager"
)

// DiskState reports the usage of the work directory's filesystem
type DiskState interface {
	GetDiskUsage() diskmanager.DiskUsageStats
}

// LoaderState reports what is held in memory
type LoaderState interface {
	ItemCount() int
	LoadedBytes() int64
}

// CacheState reports the hit rate of the item cache
type CacheState interface {
	HitRate() float64
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
	LafDir           string
	WorkDir          string
	Interval         time.Duration
	WarningThreshold float64
	FullThreshold    float64
	Disk             DiskState
	Loader           LoaderState
	Cache            CacheState
}

// HealthChecker performs health checks and records the fabric status
type HealthChecker struct {
	cfg    *HealthCheckConfig
	logger *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	checks      map[string]CheckResult
	readinessOK bool

	status model.FabricStatus
	source string
	annox  string
	task   string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(cfg *HealthCheckConfig, logger *zap.Logger) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.FullThreshold == 0 {
		cfg.FullThreshold = 98
	}
	if cfg.WarningThreshold == 0 {
		cfg.WarningThreshold = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		cfg:         cfg,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		readinessOK: true,
		status:      model.FabricStatusIdle,
	}
}

// Start runs the checks periodically until ctx is done
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.RunChecks()
	for {
		select {
		case <-ticker.C:
			h.RunChecks()
		case <-ctx.Done():
			h.logger.Debug("Health checker stopped")
			return
		}
	}
}

// RunChecks runs all checks once
func (h *HealthChecker) RunChecks() {
	checks := []func() CheckResult{
		h.checkDiskSpace,
		h.checkWorkDirWritable,
		h.checkLafDirReadable,
	}
	results := make([]CheckResult, 0, len(checks))
	ready := true
	for _, check := range checks {
		r := check()
		results = append(results, r)
		if r.Status == "critical" {
			ready = false
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCheck = time.Now()
	for _, r := range results {
		h.checks[r.Name] = r
	}
	h.readinessOK = ready
	h.logger.Debug("Health check completed", zap.Bool("readiness", ready))
}

func (h *HealthChecker) checkDiskSpace() CheckResult {
	r := CheckResult{Name: "disk_space", Timestamp: time.Now()}
	if h.cfg.Disk == nil {
		r.Status, r.Message = "healthy", "not monitored"
		return r
	}
	stats := h.cfg.Disk.GetDiskUsage()
	switch {
	case stats.LastCheck.IsZero():
		r.Status, r.Message = "warning", "disk usage unknown"
	case stats.UsagePercent >= h.cfg.FullThreshold:
		r.Status, r.Message = "critical", fmt.Sprintf("Disk usage critical: %.2f%%", stats.UsagePercent)
	case stats.UsagePercent >= h.cfg.WarningThreshold:
		r.Status, r.Message = "warning", fmt.Sprintf("Disk usage high: %.2f%%", stats.UsagePercent)
	default:
		r.Status = "healthy"
		r.Message = fmt.Sprintf("Disk usage: %.2f%%, available: %.2f GB",
			stats.UsagePercent, float64(stats.AvailableBytes)/1024/1024/1024)
	}
	return r
}

func (h *HealthChecker) checkWorkDirWritable() CheckResult {
	r := CheckResult{Name: "work_dir_writable", Timestamp: time.Now()}
	info, err := os.Stat(h.cfg.WorkDir)
	if err != nil || !info.IsDir() {
		r.Status, r.Message = "critical", fmt.Sprintf("Work directory not accessible: %v", err)
		return r
	}
	marker := filepath.Join(h.cfg.WorkDir, fmt.Sprintf(".health_check_%d", time.Now().UnixNano()))
	f, err := os.Create(marker)
	if err != nil {
		r.Status, r.Message = "critical", fmt.Sprintf("Cannot write in work directory: %v", err)
		return r
	}
	f.Close()
	os.Remove(marker)
	r.Status, r.Message = "healthy", "Work directory writable"
	return r
}

func (h *HealthChecker) checkLafDirReadable() CheckResult {
	r := CheckResult{Name: "laf_dir_readable", Timestamp: time.Now()}
	if _, err := os.ReadDir(h.cfg.LafDir); err != nil {
		// compiled data can still be used without the sources
		r.Status, r.Message = "warning", fmt.Sprintf("LAF directory not readable: %v", err)
		return r
	}
	r.Status, r.Message = "healthy", "LAF directory readable"
	return r
}

// SetStatus records what the fabric is doing
func (h *HealthChecker) SetStatus(status model.FabricStatus, source, annox, task string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status, h.source, h.annox, h.task = status, source, annox, task
}

// IsReady reports whether the fabric can take work
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK && h.status != model.FabricStatusFailed
}

// Checks returns the latest check results by name
func (h *HealthChecker) Checks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		out[k] = v
	}
	return out
}

// Status returns the current status with a snapshot of the loader figures
func (h *HealthChecker) Status() model.HealthStatus {
	h.mu.RLock()
	st := model.HealthStatus{
		Status:    h.status,
		Source:    h.source,
		Annox:     h.annox,
		Task:      h.task,
		Timestamp: time.Now().Unix(),
	}
	h.mu.RUnlock()

	if h.cfg.Loader != nil {
		st.Metrics.LoadedItems = h.cfg.Loader.ItemCount()
		st.Metrics.LoadedBytes = h.cfg.Loader.LoadedBytes()
	}
	if h.cfg.Cache != nil {
		st.Metrics.CacheHitRate = h.cfg.Cache.HitRate()
	}
	if h.cfg.Disk != nil {
		st.Metrics.DiskUsage = h.cfg.Disk.GetDiskUsage().UsagePercent
	}
	return st
}
