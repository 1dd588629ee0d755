package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of LAF Fabric. Every instance has its
// own registry. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Compile metrics
	CompilesTotal       *prometheus.CounterVec
	CompileDuration     prometheus.Histogram
	CompileItemsWritten prometheus.Counter
	CompileBytesWritten prometheus.Counter

	// Loader metrics
	LoaderItemsTotal  *prometheus.CounterVec
	LoaderBytesRead   prometheus.Counter
	LoaderDuration    prometheus.Histogram
	LoaderItemsLoaded prometheus.Gauge

	// Cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheSizeBytes      prometheus.Gauge
	CacheEntriesTotal   prometheus.Gauge

	// Task metrics
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// Worker pool metrics
	PoolTasksTotal   *prometheus.CounterVec
	PoolTaskDuration *prometheus.HistogramVec

	// System metrics
	DiskUsageBytes     prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	DiskUsagePercent   prometheus.Gauge
}

// NewMetrics creates all metrics on a fresh registry, together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		CompilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "compiler",
			Name:      "compiles_total",
			Help:      "Total number of compilations by kind and outcome",
		}, []string{"kind", "status"}),
		CompileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "laf_fabric",
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Histogram of compilation durations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~45min
		}),
		CompileItemsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "compiler",
			Name:      "items_written_total",
			Help:      "Total number of data items written",
		}),
		CompileBytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "compiler",
			Name:      "bytes_written_total",
			Help:      "Total number of bytes of data items written",
		}),

		LoaderItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "loader",
			Name:      "items_total",
			Help:      "Total number of data items handled by action (load, keep, clear, prepare)",
		}, []string{"action"}),
		LoaderBytesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "loader",
			Name:      "bytes_read_total",
			Help:      "Total number of payload bytes read from compiled data",
		}),
		LoaderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "laf_fabric",
			Subsystem: "loader",
			Name:      "load_duration_seconds",
			Help:      "Histogram of load request durations",
			Buckets:   prometheus.DefBuckets,
		}),
		LoaderItemsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "laf_fabric",
			Subsystem: "loader",
			Name:      "items_in_memory",
			Help:      "Number of data items currently held by the loader",
		}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}),
		CacheEvictionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of cache evictions",
		}),
		CacheSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "laf_fabric",
			Subsystem: "cache",
			Name:      "size_bytes",
			Help:      "Current cache size in bytes",
		}),
		CacheEntriesTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "laf_fabric",
			Subsystem: "cache",
			Name:      "entries_total",
			Help:      "Current number of cache entries",
		}),

		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "task",
			Name:      "runs_total",
			Help:      "Total number of task runs by task and outcome",
		}, []string{"task", "status"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "laf_fabric",
			Subsystem: "task",
			Name:      "run_duration_seconds",
			Help:      "Histogram of task run durations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"task"}),

		PoolTasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laf_fabric",
			Subsystem: "worker_pool",
			Name:      "tasks_total",
			Help:      "Total number of worker pool tasks by pool and outcome",
		}, []string{"pool", "status"}),
		PoolTaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "laf_fabric",
			Subsystem: "worker_pool",
			Name:      "task_duration_seconds",
			Help:      "Histogram of worker pool task durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool"}),

		DiskUsageBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "laf_fabric",
			Subsystem: "system",
			Name:      "disk_usage_bytes",
			Help:      "Used disk space in bytes of the work directory",
		}),
		DiskAvailableBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "laf_fabric",
			Subsystem: "system",
			Name:      "disk_available_bytes",
			Help:      "Available disk space in bytes of the work directory",
		}),
		DiskUsagePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "laf_fabric",
			Subsystem: "system",
			Name:      "disk_usage_percent",
			Help:      "Disk usage percentage of the work directory",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordCompile records one compilation. Skipped compilations count with
// status "skipped".
func (m *Metrics) RecordCompile(kind string, duration float64, skipped bool, err error) {
	if m == nil {
		return
	}
	st := status(err)
	if skipped && err == nil {
		st = "skipped"
	}
	m.CompilesTotal.WithLabelValues(kind, st).Inc()
	if !skipped {
		m.CompileDuration.Observe(duration)
	}
}

// RecordItemWritten records a data item written by the compiler
func (m *Metrics) RecordItemWritten(bytes int64) {
	if m == nil {
		return
	}
	m.CompileItemsWritten.Inc()
	m.CompileBytesWritten.Add(float64(bytes))
}

// RecordLoad records the outcome of one load request
func (m *Metrics) RecordLoad(duration float64, loaded, kept, cleared, prepared int, inMemory int) {
	if m == nil {
		return
	}
	m.LoaderDuration.Observe(duration)
	m.LoaderItemsTotal.WithLabelValues("load").Add(float64(loaded))
	m.LoaderItemsTotal.WithLabelValues("keep").Add(float64(kept))
	m.LoaderItemsTotal.WithLabelValues("clear").Add(float64(cleared))
	m.LoaderItemsTotal.WithLabelValues("prepare").Add(float64(prepared))
	m.LoaderItemsLoaded.Set(float64(inMemory))
}

// RecordBytesRead records payload bytes read from disk
func (m *Metrics) RecordBytesRead(bytes int64) {
	if m == nil {
		return
	}
	m.LoaderBytesRead.Add(float64(bytes))
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

// UpdateCacheSize updates cache size metrics
func (m *Metrics) UpdateCacheSize(bytes int64, entries int64) {
	if m == nil {
		return
	}
	m.CacheSizeBytes.Set(float64(bytes))
	m.CacheEntriesTotal.Set(float64(entries))
}

// RecordTask records one task run
func (m *Metrics) RecordTask(task string, duration float64, err error) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(task, status(err)).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(duration)
}

// ObservePoolTask records a finished worker pool task. Its signature fits
// the worker pool observer.
func (m *Metrics) ObservePoolTask(pool string, err error, duration float64) {
	if m == nil {
		return
	}
	m.PoolTasksTotal.WithLabelValues(pool, status(err)).Inc()
	m.PoolTaskDuration.WithLabelValues(pool).Observe(duration)
}

// UpdateDiskStats updates disk statistics of the work directory
func (m *Metrics) UpdateDiskStats(used, available uint64) {
	if m == nil {
		return
	}
	m.DiskUsageBytes.Set(float64(used))
	m.DiskAvailableBytes.Set(float64(available))
	if used+available > 0 {
		m.DiskUsagePercent.Set(float64(used) / float64(used+available) * 100)
	}
}
