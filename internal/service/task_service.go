package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/config"
	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/metrics"
	"github.com/Dans-labs/laf-fabric/internal/task"
	"github.com/Dans-labs/laf-fabric/internal/validation"
)

// TaskConfig holds the collaborators of the task service
type TaskConfig struct {
	Locations config.LocationsConfig
	Loader    *LoaderService
	Tasks     *task.Registry
	Validate  config.ValidateConfig
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Stamp     *logging.Stamp
}

// TaskService runs tasks: it loads what a task asks for, gives the task a
// result directory and a log file, and validates generated XML afterwards
type TaskService struct {
	cfg    *TaskConfig
	logger *zap.Logger
	stamp  *logging.Stamp
}

// TaskResult describes a finished task run
type TaskResult struct {
	Task       string
	Dir        string
	LogFile    string
	Results    []string
	Validation []validation.Result
	Load       *LoadResult
	Duration   time.Duration
}

// NewTaskService creates a task service
func NewTaskService(cfg *TaskConfig) *TaskService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stamp := cfg.Stamp
	if stamp == nil {
		stamp = logging.NewStamp(logger, logging.Normal)
	}
	if cfg.Tasks == nil {
		cfg.Tasks = task.Builtin()
	}
	return &TaskService{cfg: cfg, logger: logger, stamp: stamp}
}

// LogFileName is the name of the log file a task run writes in its directory
func LogFileName(name string) string {
	return "__log__" + name + ".txt"
}

// Run runs the named task on source and annox. A non-nil spec replaces the
// data the task asks for.
func (s *TaskService) Run(ctx context.Context, source, annox, name string, spec *loadspec.Spec) (res *TaskResult, err error) {
	start := time.Now()
	defer func() {
		s.cfg.Metrics.RecordTask(name, time.Since(start).Seconds(), err)
	}()

	t, err := s.cfg.Tasks.Lookup(name)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		spec = t.Spec()
	}
	if annox == config.NoAnnox {
		annox = ""
	}

	dir := s.cfg.Locations.TaskDir(source, annox, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}
	logPath := filepath.Join(dir, LogFileName(name))
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create task log: %w", err)
	}
	defer logFile.Close()

	s.stamp.Reset()
	s.stamp.SetSink(logFile)
	defer s.stamp.SetSink(nil)

	s.stamp.Imsg("BEGIN TASK %s SOURCE %s", name, sourceLabel(source, annox))
	loaded, err := s.cfg.Loader.Load(ctx, source, annox, spec)
	if err != nil {
		s.stamp.Emsg("Loading failed: %v", err)
		return nil, err
	}

	validator, err := validation.NewValidator(s.cfg.Validate, s.logger)
	if err != nil {
		return nil, err
	}
	run := task.NewRun(loaded.API, source, annox, dir, s.stamp, validator)
	runErr := t.Run(ctx, run)
	closeErr := run.Close()
	if runErr != nil {
		s.stamp.Emsg("Task %s failed: %v", name, runErr)
		return nil, runErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to write results of %s: %w", name, closeErr)
	}

	if s.cfg.Validate.Enabled {
		validator.Validate(ctx)
		validator.Report(logFile)
	}

	res = &TaskResult{
		Task:       name,
		Dir:        dir,
		LogFile:    logPath,
		Results:    run.Results(),
		Validation: validator.Results(),
		Load:       loaded,
		Duration:   time.Since(start),
	}
	s.stamp.Imsg("END TASK %s", name)
	s.logger.Info("Task finished",
		zap.String("task", name),
		zap.String("source", source),
		zap.String("annox", annox),
		zap.Int("results", len(res.Results)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func sourceLabel(source, annox string) string {
	if annox == "" {
		return source
	}
	return source + "+" + annox
}
