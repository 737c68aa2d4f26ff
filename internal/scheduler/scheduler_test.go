package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
)

type countingRunner struct {
	calls    atomic.Int32
	triggers chan string
	err      error
}

func (r *countingRunner) Run(_ context.Context, trigger string) (model.RunSummary, error) {
	r.calls.Add(1)
	select {
	case r.triggers <- trigger:
	default:
	}
	return model.RunSummary{NewItems: 1}, r.err
}

func TestNewRejectsZeroInterval(t *testing.T) {
	_, err := New(&countingRunner{}, 0, false, nil)
	require.Error(t, err)
}

func TestSpec(t *testing.T) {
	s, err := New(&countingRunner{}, 15*time.Minute, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "@every 15m0s", s.Spec())
}

func TestRunOnStartup(t *testing.T) {
	runner := &countingRunner{triggers: make(chan string, 1)}
	s, err := New(runner, time.Hour, true, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case trigger := <-runner.triggers:
		assert.Equal(t, "startup", trigger)
	case <-time.After(5 * time.Second):
		t.Fatal("startup run did not happen")
	}
}

func TestIntervalTicks(t *testing.T) {
	runner := &countingRunner{triggers: make(chan string, 4)}
	s, err := New(runner, time.Second, false, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case trigger := <-runner.triggers:
		assert.Equal(t, "scheduler", trigger)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run did not happen")
	}
}

func TestTickToleratesInProgress(t *testing.T) {
	runner := &countingRunner{triggers: make(chan string, 1), err: refresh.ErrInProgress}
	s, err := New(runner, time.Hour, false, nil)
	require.NoError(t, err)

	s.tick(context.Background(), "scheduler")
	assert.Equal(t, int32(1), runner.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.tick(ctx, "scheduler")
	assert.Equal(t, int32(1), runner.calls.Load())
}

type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (r *blockingRunner) Run(context.Context, string) (model.RunSummary, error) {
	close(r.started)
	<-r.release
	r.finished.Store(true)
	return model.RunSummary{}, nil
}

func TestStopWaitsForStartupRun(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(runner, time.Hour, true, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the startup run was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the startup run finished")
	}
	assert.True(t, runner.finished.Load())
}
