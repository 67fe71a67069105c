package service

import (
	"context"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	"course-checkout/pkg/logger"
	"time"
)

const DefaultSweepInterval = time.Minute

// ExpirySweeper periodically closes registrations whose deadline passed
// without a terminal status.
type ExpirySweeper struct {
	Coordinator serviceInterfaces.PaymentCoordinator
	Interval    time.Duration
}

func NewExpirySweeper(coordinator serviceInterfaces.PaymentCoordinator, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ExpirySweeper{Coordinator: coordinator, Interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	logger.Info("Expiry sweeper started, interval %s", s.Interval)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	n, err := s.Coordinator.SweepExpired(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("Expiry sweep finished with errors: %v", err)
	}
	return n
}
