package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

// Scheduler prunes old access records on a cron schedule.
type Scheduler struct {
	store  *Store
	cfg    config.StatsConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a retention scheduler for the given store.
func NewScheduler(store *Store, cfg config.StatsConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start begins scheduled pruning. With RetentionDays of 0 records are kept
// forever and the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.RetentionDays <= 0 {
		s.logger.Info("stats retention disabled, records kept forever")
		return nil
	}

	schedule := s.cfg.PruneSchedule
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		s.runPrune(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("stats retention scheduler started",
		slog.String("schedule", schedule),
		slog.Int("retention_days", s.cfg.RetentionDays))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runPrune(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)

	deleted, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled stats pruning failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		s.logger.Info("stats pruning completed", slog.Int64("deleted", deleted))
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("stats retention scheduler stopped")
}
