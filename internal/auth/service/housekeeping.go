package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupSchedule runs the sweep once a day.
const DefaultCleanupSchedule = "@daily"

// HousekeepingService periodically prunes expired revocation ledger
// entries and verification secrets so neither table grows without bound.
type HousekeepingService struct {
	Ledger    *RevocationLedger
	Logger    *slog.Logger
	Schedule  string
	BatchSize int
	Metrics   *Metrics
}

// NewHousekeepingService creates a sweep on schedule (cron syntax or a
// descriptor such as "@daily"). Empty values fall back to the defaults.
func NewHousekeepingService(ledger *RevocationLedger, logger *slog.Logger, schedule string, batchSize int) *HousekeepingService {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if batchSize <= 0 {
		batchSize = DefaultPruneBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HousekeepingService{
		Ledger:    ledger,
		Logger:    logger,
		Schedule:  schedule,
		BatchSize: batchSize,
	}
}

// Run sweeps once, then on every tick of the schedule until ctx is done.
// A sweep in progress at shutdown is allowed to finish.
func (s *HousekeepingService) Run(ctx context.Context) error {
	sweepCtx := context.WithoutCancel(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.Schedule, func() { s.Sweep(sweepCtx) }); err != nil {
		return fmt.Errorf("schedule housekeeping %q: %w", s.Schedule, err)
	}

	s.Sweep(sweepCtx)
	c.Start()
	s.Logger.Info("housekeeping service started", "schedule", s.Schedule, "batch_size", s.BatchSize)

	<-ctx.Done()

	<-c.Stop().Done()
	s.Logger.Info("housekeeping service stopped")
	return nil
}

// Sweep performs one cleanup pass and returns the number of rows removed.
func (s *HousekeepingService) Sweep(ctx context.Context) int {
	s.Logger.Debug("starting housekeeping cleanup")

	n, err := s.Ledger.Prune(ctx, s.BatchSize)
	s.Metrics.pruned(n)
	if err != nil {
		s.Logger.Error("housekeeping cleanup failed", "deleted", n, "error", err)
		return n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", n)
	return n
}
