package ratelimiter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// EverySchedule returns the cron descriptor for a fixed interval, e.g. "@every 10m0s".
func EverySchedule(interval time.Duration) string {
	return "@every " + interval.String()
}

// CleanupScheduler runs Store.Cleanup on a cron schedule.
//
// Common schedules:
//   - "@every 10m"  - every ten minutes
//   - "0 * * * *"   - at the top of every hour
type CleanupScheduler struct {
	store   Store
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

// NewCleanupScheduler creates a scheduler for store. A nil logger uses slog.Default().
func NewCleanupScheduler(store Store, logger *slog.Logger) *CleanupScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupScheduler{
		store:  store,
		cron:   cron.New(),
		logger: logger.With("component", "ratelimiter.cleanup"),
	}
}

// Start schedules cleanup with a standard cron expression or descriptor.
func (s *CleanupScheduler) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cleanup scheduler already running")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("%w: invalid cleanup schedule %q: %v", ErrInvalidConfig, schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("bucket cleanup scheduled", "schedule", schedule)
	return nil
}

// RunOnce performs one cleanup pass and returns the number of buckets removed.
func (s *CleanupScheduler) RunOnce() int {
	removed, err := s.store.Cleanup()
	if err != nil {
		s.logger.Error("bucket cleanup failed", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("idle buckets removed", "removed", removed, "remaining", s.store.Count())
	} else {
		s.logger.Debug("bucket cleanup found nothing idle")
	}
	return removed
}

// Stop stops the scheduler and waits for a running cleanup to finish.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
