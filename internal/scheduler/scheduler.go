// Package scheduler triggers the crawl pipeline on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
)

// Runner is satisfied by *refresh.Guard.
type Runner interface {
	Run(ctx context.Context, trigger string) (model.RunSummary, error)
}

// Scheduler wraps robfig/cron and runs the pipeline every interval.
type Scheduler struct {
	cron         *cron.Cron
	runner       Runner
	spec         string
	runOnStartup bool
	logger       *zap.Logger

	startup sync.WaitGroup
}

// New creates a Scheduler firing every interval.
func New(runner Runner, interval time.Duration, runOnStartup bool, logger *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:       runner,
		spec:         fmt.Sprintf("@every %s", interval),
		runOnStartup: runOnStartup,
		logger:       logger.Named("scheduler"),
	}, nil
}

// Spec returns the cron spec, e.g. "@every 15m0s".
func (s *Scheduler) Spec() string { return s.spec }

// Start registers the job and starts the cron loop. With run-on-startup one
// pipeline is started immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx, "scheduler") }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))

	if s.runOnStartup {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.tick(ctx, "startup")
		}()
	}
	return nil
}

// Stop stops the cron loop and waits for a running tick, including the
// startup run, to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	summary, err := s.runner.Run(ctx, trigger)
	switch {
	case errors.Is(err, refresh.ErrInProgress):
		s.logger.Info("refresh already running, tick skipped", zap.String("trigger", trigger))
	case err != nil:
		s.logger.Error("scheduled refresh failed", zap.String("trigger", trigger), zap.Error(err))
	default:
		s.logger.Info("scheduled refresh done",
			zap.String("trigger", trigger),
			zap.Int("new_items", summary.NewItems),
		)
	}
}
