package pipeline

import (
	"context"
	"time"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// Sweeper runs the stale-booking sweep on an interval. The cron endpoint
// stays available for externally driven deployments; the sweeper covers
// long-running ones.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *logging.Logger
}

// NewSweeper creates the background sweeper.
func NewSweeper(service *Service, interval time.Duration, logger *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled. Blocking; callers run it in a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("stale booking sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale booking sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.service.SweepStaleBookings(ctx); err != nil {
				s.logger.Error("sweep iteration failed", "error", err)
			}
		}
	}
}
