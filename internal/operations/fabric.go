// Package operations holds the command line commands of laf-fabric.
package operations

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/compiler"
	"github.com/Dans-labs/laf-fabric/internal/config"
	"github.com/Dans-labs/laf-fabric/internal/health"
	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/metrics"
	"github.com/Dans-labs/laf-fabric/internal/model"
	"github.com/Dans-labs/laf-fabric/internal/prepare"
	"github.com/Dans-labs/laf-fabric/internal/server"
	"github.com/Dans-labs/laf-fabric/internal/service"
	"github.com/Dans-labs/laf-fabric/internal/storage/diskmanager"
	"github.com/Dans-labs/laf-fabric/internal/task"
	"github.com/Dans-labs/laf-fabric/internal/util/workerpool"
)

// Fabric is the set of services one command works with
type Fabric struct {
	Config   *config.Config
	Logger   *zap.Logger
	Stamp    *logging.Stamp
	Metrics  *metrics.Metrics
	Pool     *workerpool.WorkerPool
	Disk     *diskmanager.DiskManager
	Compiler *compiler.Compiler
	Cache    *service.CacheService
	Loader   *service.LoaderService
	Tasks    *service.TaskService
	Health   *health.HealthChecker

	metricsServer *server.MetricsServer
	stopHealth    context.CancelFunc
}

func readConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString(configFlag)
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return nil, errors.Errorf("no configuration: use --%s or set %s", configFlag, configEnv)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, errors.Wrapf(err, "problem loading configuration from '%s'", path)
	}
	if v := c.GlobalString(verboseFlag); v != "" {
		cfg.Logging.Verbose = v
	}
	return cfg, nil
}

// NewFabric wires all services from the configuration
func NewFabric(cfg *config.Config, logger *zap.Logger) (*Fabric, error) {
	verbose, err := logging.ParseVerbosity(cfg.Logging.Verbose)
	if err != nil {
		return nil, err
	}
	f := &Fabric{
		Config:  cfg,
		Logger:  logger,
		Stamp:   logging.NewStamp(logger, verbose),
		Metrics: metrics.NewMetrics(),
	}

	f.Pool = workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "fabric",
		MaxWorkers: cfg.WorkerPool.MaxWorkers,
		QueueSize:  cfg.WorkerPool.QueueSize,
		Logger:     logger,
		Observer: func(pool string, err error, d time.Duration) {
			f.Metrics.ObservePoolTask(pool, err, d.Seconds())
		},
	})

	f.Disk, err = diskmanager.NewDiskManager(&diskmanager.DiskManagerConfig{
		DataDir:          cfg.Locations.WorkDir,
		CheckInterval:    cfg.Disk.CheckInterval,
		WarningThreshold: cfg.Disk.WarningThreshold,
		FullThreshold:    cfg.Disk.FullThreshold,
	}, logger)
	if err != nil {
		f.Pool.Stop(cfg.WorkerPool.StopTimeout)
		return nil, err
	}

	f.Compiler = compiler.New(&compiler.Config{
		Locations: cfg.Locations,
		Pool:      f.Pool,
		Space:     f.Disk,
		Metrics:   f.Metrics,
		Logger:    logger,
		Stamp:     f.Stamp,
	})
	f.Cache = service.NewCacheService(&service.CacheConfig{
		MaxSize:         cfg.Cache.MaxSize,
		FrequencyWeight: cfg.Cache.FrequencyWeight,
		RecencyWeight:   cfg.Cache.RecencyWeight,
		AdaptiveWindow:  cfg.Cache.AdaptiveWindow,
	}, f.Metrics, logger)
	f.Loader = service.NewLoaderService(&service.LoaderConfig{
		Locations:    cfg.Locations,
		OTypeFeature: cfg.Loader.OTypeFeature,
		Pool:         f.Pool,
		Cache:        f.Cache,
		Preparers:    prepare.NewRegistry(prepare.NewEtcbcSort(cfg.Loader.OTypeRank)),
		Metrics:      f.Metrics,
		Logger:       logger,
		Stamp:        f.Stamp,
	})
	f.Tasks = service.NewTaskService(&service.TaskConfig{
		Locations: cfg.Locations,
		Loader:    f.Loader,
		Tasks:     task.Builtin(),
		Validate:  cfg.Validation,
		Metrics:   f.Metrics,
		Logger:    logger,
		Stamp:     f.Stamp,
	})
	f.Health = health.NewHealthChecker(&health.HealthCheckConfig{
		LafDir:           cfg.Locations.LafDir,
		WorkDir:          cfg.Locations.WorkDir,
		Interval:         cfg.Disk.CheckInterval,
		WarningThreshold: cfg.Disk.WarningThreshold,
		FullThreshold:    cfg.Disk.FullThreshold,
		Disk:             f.Disk,
		Loader:           f.Loader,
		Cache:            f.Cache,
	}, logger)

	if cfg.Metrics.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		f.stopHealth = cancel
		go f.Health.Start(ctx)

		f.metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Port:     cfg.Metrics.Port,
			Path:     cfg.Metrics.Path,
			Interval: cfg.Disk.CheckInterval,
			Disk:     f.Disk,
		}, f.Metrics, f.Health, logger)
		if err := f.metricsServer.Start(); err != nil {
			logger.Warn("Metrics server not started", zap.Error(err))
			f.metricsServer = nil
		}
	}
	return f, nil
}

// Close stops the background services
func (f *Fabric) Close() {
	if f.metricsServer != nil {
		if err := f.metricsServer.Stop(); err != nil {
			f.Logger.Warn("Metrics server stop failed", zap.Error(err))
		}
	}
	if f.stopHealth != nil {
		f.stopHealth()
	}
	if err := f.Pool.Stop(f.Config.WorkerPool.StopTimeout); err != nil {
		f.Logger.Warn("Worker pool stop failed", zap.Error(err))
	}
	f.Logger.Sync()
}

// withFabric sets up the fabric for a command and tears it down afterwards
func withFabric(c *cli.Context, op func(ctx context.Context, f *Fabric) error) error {
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "problem setting up logging")
	}
	f, err := NewFabric(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "problem setting up the fabric")
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return op(ctx, f)
}

// ensureCompiled compiles the source and the annox when their compiled
// data is missing or out of date
func (f *Fabric) ensureCompiled(ctx context.Context, source, annox string, force bool) error {
	f.Health.SetStatus(model.FabricStatusCompiling, source, annox, "")
	res, err := f.Compiler.Compile(ctx, source, force)
	if err != nil {
		f.Health.SetStatus(model.FabricStatusFailed, source, annox, "")
		return errors.Wrapf(err, "problem compiling '%s'", source)
	}
	f.report(res, source)

	if annox != "" && annox != config.NoAnnox {
		res, err := f.Compiler.CompileAnnox(ctx, source, annox, force)
		if err != nil {
			f.Health.SetStatus(model.FabricStatusFailed, source, annox, "")
			return errors.Wrapf(err, "problem compiling annotation package '%s'", annox)
		}
		f.report(res, source+"+"+annox)
	}
	f.Health.SetStatus(model.FabricStatusIdle, source, annox, "")
	return nil
}

func (f *Fabric) report(res *compiler.Result, what string) {
	if res.Skipped {
		f.Stamp.Imsg("%s is up to date", what)
		return
	}
	f.Stamp.Imsg("%s compiled: %d items, %s", what, len(res.Manifest.Items), humanBytes(res.Bytes))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
