package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/config"
	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
	"github.com/Dans-labs/laf-fabric/internal/graf/graftest"
	"github.com/Dans-labs/laf-fabric/internal/loadspec"
	"github.com/Dans-labs/laf-fabric/internal/logging"
	"github.com/Dans-labs/laf-fabric/internal/task"
	"github.com/Dans-labs/laf-fabric/internal/validation"
)

func newTaskService(t *testing.T, f *loaderFixture, validate config.ValidateConfig) *TaskService {
	t.Helper()
	return NewTaskService(&TaskConfig{
		Locations: f.cfg.Locations,
		Loader:    f.loader,
		Tasks:     task.Builtin(),
		Validate:  validate,
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
		Stamp:     logging.NewStamp(zap.NewNop(), logging.Normal),
	})
}

func TestRunPlain(t *testing.T) {
	f := newLoaderFixture(t, true)
	s := newTaskService(t, f, config.ValidateConfig{})

	res, err := s.Run(context.Background(), graftest.Source, config.NoAnnox, "plain", nil)
	require.NoError(t, err)

	assert.Equal(t, f.cfg.Locations.TaskDir(graftest.Source, "", "plain"), res.Dir)
	require.Len(t, res.Results, 1)
	data, err := os.ReadFile(res.Results[0])
	require.NoError(t, err)
	assert.Equal(t, "Genesis ", string(data))

	log, err := os.ReadFile(filepath.Join(res.Dir, LogFileName("plain")))
	require.NoError(t, err)
	assert.Contains(t, string(log), "BEGIN TASK plain SOURCE tiny")
	assert.Contains(t, string(log), "Get the books")
	assert.Contains(t, string(log), "END TASK plain")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TasksTotal.WithLabelValues("plain", "ok")))
}

func TestRunInventoryValidates(t *testing.T) {
	f := newLoaderFixture(t, true)
	s := newTaskService(t, f, config.ValidateConfig{Enabled: true})

	res, err := s.Run(context.Background(), graftest.Source, graftest.Annox, "inventory", nil)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Locations.TaskDir(graftest.Source, graftest.Annox, "inventory"), res.Dir)

	require.Len(t, res.Validation, 1)
	assert.Equal(t, validation.Unknown, res.Validation[0].Validity)

	log, err := os.ReadFile(res.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(log), "Generated xml file UNKNOWN inventory.xml")
}

func TestRunWithSpecOverride(t *testing.T) {
	f := newLoaderFixture(t, true)
	s := newTaskService(t, f, config.ValidateConfig{})

	spec := &loadspec.Spec{NodeFeatures: loadspec.MustParseFeatures("db:otype sft:number")}
	res, err := s.Run(context.Background(), graftest.Source, "", "inventory", spec)
	require.NoError(t, err)
	assert.Contains(t, res.Load.Plan.Load, "mFn0(sft,verse,number)")
}

func TestRunErrors(t *testing.T) {
	f := newLoaderFixture(t, true)
	s := newTaskService(t, f, config.ValidateConfig{})

	_, err := s.Run(context.Background(), graftest.Source, "", "nope", nil)
	assert.Equal(t, fabricerrors.ErrCodeUnknownTask, fabricerrors.GetCode(err))

	_, err = s.Run(context.Background(), "absent", "", "plain", nil)
	assert.Equal(t, fabricerrors.ErrCodeNotCompiled, fabricerrors.GetCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TasksTotal.WithLabelValues("plain", "error")))
}
