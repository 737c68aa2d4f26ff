// Package refresh admits at most one crawl pipeline at a time and keeps the
// outcome of the last one for status reporting.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// ErrInProgress is returned when a pipeline is already running.
var ErrInProgress = errors.New("refresh already in progress")

// State is the lifecycle of the guarded pipeline.
type State string

// Refresh states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// RunFunc executes one pipeline.
type RunFunc func(ctx context.Context) (model.RunSummary, error)

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Status is a snapshot of the guard.
type Status struct {
	State       State             `json:"state"`
	Running     bool              `json:"running"`
	Trigger     string            `json:"trigger,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	Runs        int               `json:"runs"`
	LastError   string            `json:"last_error,omitempty"`
	LastSummary *model.RunSummary `json:"last_summary,omitempty"`
}

// Guard owns the refresh state. The zero value is not usable; call New.
type Guard struct {
	run    RunFunc
	clock  Clock
	logger *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.RWMutex
	status Status
}

// New wraps run.
func New(run RunFunc, clock Clock, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		run:    run,
		clock:  clock,
		logger: logger.Named("refresh"),
		status: Status{State: StateIdle},
	}
}

// Trigger starts the pipeline in the background. The run is detached from
// ctx cancellation so an HTTP request ending does not abort it.
func (g *Guard) Trigger(ctx context.Context, trigger string) error {
	if !g.running.CompareAndSwap(false, true) {
		return ErrInProgress
	}
	g.begin(trigger)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_, _ = g.execute(context.WithoutCancel(ctx))
	}()
	return nil
}

// Run executes the pipeline synchronously.
func (g *Guard) Run(ctx context.Context, trigger string) (model.RunSummary, error) {
	if !g.running.CompareAndSwap(false, true) {
		return model.RunSummary{}, ErrInProgress
	}
	g.begin(trigger)
	g.wg.Add(1)
	defer g.wg.Done()
	return g.execute(ctx)
}

func (g *Guard) begin(trigger string) {
	now := g.clock.Now()
	g.mu.Lock()
	g.status.State = StateRunning
	g.status.Running = true
	g.status.Trigger = trigger
	g.status.StartedAt = &now
	g.status.FinishedAt = nil
	g.mu.Unlock()
	g.logger.Info("refresh started", zap.String("trigger", trigger))
}

func (g *Guard) execute(ctx context.Context) (summary model.RunSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
		g.finish(summary, err)
	}()
	return g.run(ctx)
}

func (g *Guard) finish(summary model.RunSummary, err error) {
	now := g.clock.Now()
	g.mu.Lock()
	g.status.Running = false
	g.status.FinishedAt = &now
	g.status.Runs++
	g.status.LastSummary = &summary
	if err != nil {
		g.status.State = StateFailed
		g.status.LastError = err.Error()
	} else {
		g.status.State = StateCompleted
		g.status.LastError = ""
	}
	state := g.status.State
	g.mu.Unlock()
	g.running.Store(false)

	metrics.ObserveRefresh(string(state))
	if err != nil {
		g.logger.Error("refresh failed", zap.Error(err))
		return
	}
	g.logger.Info("refresh finished",
		zap.Int("portals", summary.PortalsCrawled),
		zap.Int("new_items", summary.NewItems),
	)
}

// Status returns a snapshot of the current state.
func (g *Guard) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Running reports whether a pipeline is in flight.
func (g *Guard) Running() bool { return g.running.Load() }

// Reset returns the guard to idle and forgets the last outcome.
func (g *Guard) Reset() error {
	if !g.running.CompareAndSwap(false, true) {
		return ErrInProgress
	}
	defer g.running.Store(false)
	g.mu.Lock()
	g.status = Status{State: StateIdle, Runs: g.status.Runs}
	g.mu.Unlock()
	return nil
}

// Wait blocks until every in-flight run, from Trigger or Run, has finished.
func (g *Guard) Wait() { g.wg.Wait() }
