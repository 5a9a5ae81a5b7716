package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
	"smart-card-relay-go/internal/pipeline"
)

// stopTimeout bounds how long Stop waits for an in-flight pass
const stopTimeout = 30 * time.Second

// Runner executes passes. *pipeline.Pipeline implements it.
type Runner interface {
	RunOnce(ctx context.Context, trigger string) (model.RunSummary, error)
	Interval() time.Duration
	Clock() pipeline.Clock
}

// Scheduler manages repeating mode: one background worker running passes
// either every interval or on a cron expression
type Scheduler struct {
	config    *config.SchedulerConfig
	runner    Runner
	cron      *cron.Cron
	entryID   cron.EntryID
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	// guarded by runMu so the worker never needs mu
	runMu   sync.Mutex
	lastRun time.Time
	nextRun time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, runner Runner) *Scheduler {
	return &Scheduler{
		config: cfg,
		runner: runner,
	}
}

// Start starts the background worker. A stopped scheduler can be started again.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	if s.config.Cron != "" {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logrus.StandardLogger()))))
		entryID, err := c.AddFunc(s.config.Cron, func() {
			s.wg.Add(1)
			defer s.wg.Done()
			s.runPass(ctx)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("failed to add cron job: %w", err)
		}
		s.cron = c
		s.entryID = entryID
		c.Start()
		logrus.Infof("Scheduler started with cron expression: %s", s.config.Cron)
	} else {
		s.cron = nil
		s.wg.Add(1)
		go s.loop(ctx)
		logrus.Infof("Scheduler started with interval: %s", s.runner.Interval())
	}

	s.ctx = ctx
	s.cancel = cancel
	s.isRunning = true
	return nil
}

// Stop cancels the worker and waits for the current pass to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop waits and the remaining messages of a pass
	s.cancel()

	done := make(chan struct{})
	go func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(stopTimeout):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	s.setNextRun(time.Time{})
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// loop runs a pass immediately, then waits the interval. The interval is read
// again before every wait so settings changes apply from the next cycle.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	clock := s.runner.Clock()
	for {
		s.runPass(ctx)
		if ctx.Err() != nil {
			return
		}

		interval := s.runner.Interval()
		s.setNextRun(clock.Now().Add(interval))
		logrus.Infof("Next pass in %s", interval)

		if err := clock.Sleep(ctx, interval); err != nil {
			return
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	s.setLastRun(s.runner.Clock().Now())

	if _, err := s.runner.RunOnce(ctx, pipeline.TriggerScheduled); err != nil {
		if errors.Is(err, context.Canceled) {
			logrus.Info("Scheduled pass stopped")
			return
		}
		logrus.Errorf("Scheduled pass failed: %v", err)
	}
}

// RunOnce runs a single pass synchronously (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context) (model.RunSummary, error) {
	logrus.Info("Running pass once")
	s.setLastRun(s.runner.Clock().Now())
	return s.runner.RunOnce(ctx, pipeline.TriggerManual)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	if s.cron != nil {
		return s.cron.Entry(s.entryID).Next
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.nextRun
}

// GetLastRun returns the start time of the last pass
func (s *Scheduler) GetLastRun() time.Time {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.lastRun
}

// Wait waits for the worker to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) setLastRun(t time.Time) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.lastRun = t
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.nextRun = t
}
