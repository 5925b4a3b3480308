package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the backup engine on a cron schedule. Each completed
// run is followed by a retention cleanup so storage never grows past
// the configured window between backups.
type Scheduler struct {
	engine *Engine
	spec   string
	logger *slog.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu      sync.Mutex
	started bool
}

// NewScheduler wraps engine with a standard five-field cron schedule
// (minute granularity).
func NewScheduler(engine *Engine, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		spec:   spec,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start registers the schedule and begins running. Starting an already
// started scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.entryID = id
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// RunNow triggers a backup outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*Result, error) {
	return s.engine.Run(ctx)
}

// NextRun reports when the next scheduled backup fires. Zero when the
// scheduler is not started.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) Engine() *Engine {
	return s.engine
}

func (s *Scheduler) tick(ctx context.Context) {
	result, err := WithRetry(ctx, DefaultRetryConfig(), s.logger, "scheduled backup", func() (*Result, error) {
		return s.engine.Run(ctx)
	})
	if err != nil {
		s.logger.Error("scheduled backup failed", "error", err)
	} else {
		s.logger.Info("scheduled backup completed",
			"artifact", result.Name,
			"stored_bytes", result.StoredSize,
			"duration", result.Duration)
	}

	if count, bytes, err := s.engine.Cleanup(ctx, false); err != nil {
		s.logger.Error("retention cleanup failed", "error", err)
	} else if count > 0 {
		s.logger.Info("retention cleanup", "deleted", count, "bytes", bytes)
	}
}
