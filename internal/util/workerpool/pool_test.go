package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, workers, queue int) *WorkerPool {
	t.Helper()
	p := NewWorkerPool(&Config{Name: "test", MaxWorkers: workers, QueueSize: queue})
	t.Cleanup(func() { p.Stop(time.Second) })
	return p
}

func TestRunAll(t *testing.T) {
	p := newTestPool(t, 3, 2)

	var sum int64
	ids := make([]string, 20)
	fns := make([]func(context.Context) error, 20)
	for i := range fns {
		n := int64(i)
		ids[i] = fmt.Sprintf("t%d", i)
		fns[i] = func(context.Context) error {
			atomic.AddInt64(&sum, n)
			return nil
		}
	}

	require.NoError(t, p.RunAll(context.Background(), ids, fns))
	assert.Equal(t, int64(190), sum)

	stats := p.Stats()
	assert.Equal(t, uint64(20), stats.TotalTasks)
	assert.Equal(t, uint64(20), stats.CompletedTasks)
	assert.Equal(t, 100.0, stats.SuccessRate())
}

func TestRunAllReturnsFirstError(t *testing.T) {
	p := newTestPool(t, 2, 10)

	boom := fmt.Errorf("boom")
	fns := []func(context.Context) error{
		func(context.Context) error { return nil },
		func(context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	}

	err := p.RunAll(context.Background(), []string{"a", "b", "c"}, fns)
	assert.ErrorIs(t, err, boom)
}

func TestRunAllRecoversPanics(t *testing.T) {
	p := newTestPool(t, 1, 1)

	err := p.RunAll(context.Background(), []string{"bad"}, []func(context.Context) error{
		func(context.Context) error { panic("oops") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task bad panicked: oops")
}

func TestRunAllMismatchedIDs(t *testing.T) {
	p := newTestPool(t, 1, 1)
	assert.Error(t, p.RunAll(context.Background(), []string{"a"}, nil))
}

func TestObserver(t *testing.T) {
	var mu sync.Mutex
	var failures, successes int
	p := NewWorkerPool(&Config{
		Name:       "observed",
		MaxWorkers: 2,
		Observer: func(pool string, err error, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "observed", pool)
			if err != nil {
				failures++
			} else {
				successes++
			}
		},
	})
	defer p.Stop(time.Second)

	_ = p.RunAll(context.Background(), []string{"ok", "ok2"}, []func(context.Context) error{
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, successes)
	assert.Equal(t, 0, failures)
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewWorkerPool(&Config{Name: "stopped", MaxWorkers: 1})
	require.NoError(t, p.Stop(time.Second))

	err := p.Submit(Task{ID: "late", Fn: func(context.Context) error { return nil }})
	assert.Error(t, err)
	assert.Equal(t, uint64(1), p.Stats().RejectedTasks)

	err = p.RunAll(context.Background(), []string{"late"}, []func(context.Context) error{
		func(context.Context) error { return nil },
	})
	assert.Error(t, err)
}
