package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/logging"
	"github.com/biosync/biosync/internal/metrics"
	"github.com/biosync/biosync/internal/models"
)

// Scheduler triggers an unconditional one-day sync at a fixed interval.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	metrics      *metrics.Metrics
	logger       *logging.Logger

	mu      stdsync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      stdsync.WaitGroup
	nextRun time.Time
	onRun   func(results []models.DateResult)
}

// SetOnRun registers a hook invoked after each successful scheduled run.
// Must be called before Start.
func (s *Scheduler) SetOnRun(fn func(results []models.DateResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRun = fn
}

// NewScheduler creates a scheduler; interval <= 0 falls back to 15 minutes.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration, m *metrics.Metrics, logger *logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		metrics:      m,
		logger:       logger,
	}
}

// Start begins the scheduler's tick loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return &errors.ErrServerStart{Addr: "scheduler", Err: fmt.Errorf("scheduler already running")}
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.nextRun = time.Now().Add(s.interval)
	s.wg.Add(1)
	go s.tickLoop(ctx)

	s.logger.Info("scheduler started", "interval", s.interval.String())
	return nil
}

// Stop gracefully shuts down the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()

	return nil
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns when the next scheduled tick fires, or the zero time when
// the scheduler is stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.nextRun
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.nextRun = time.Now().Add(s.interval)
			s.mu.Unlock()
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	runCtx := logging.WithRunID(ctx, logging.NewRunID())

	results, err := s.orchestrator.Run(runCtx, 1)
	if err != nil {
		s.metrics.RecordSyncRun("scheduled", "failure")
		s.logger.ErrorWithContext(runCtx, "scheduled sync failed", "error", err.Error())
		return
	}

	s.metrics.RecordSyncRun("scheduled", "success")
	total := 0
	for _, r := range results {
		total += r.TotalRows()
	}
	s.logger.InfoWithContext(runCtx, "scheduled sync finished", "dates", len(results), "rows", total)

	s.mu.RLock()
	onRun := s.onRun
	s.mu.RUnlock()
	if onRun != nil {
		onRun(results)
	}
}
