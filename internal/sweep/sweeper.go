package sweep

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

// Sweeper periodically expires Pending bookings that never reconciled,
// holding the Redis leader lock for the duration of each pass.
type Sweeper struct {
	Bookings *booking.Service
	Lock     *Lock
	Cfg      config.SweepConfig
	Logger   *logger.Logger
}

func NewSweeper(bookings *booking.Service, lock *Lock, cfg config.SweepConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{Bookings: bookings, Lock: lock, Cfg: cfg, Logger: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.Interval)
	defer ticker.Stop()

	s.Logger.LogSweep("START", fmt.Sprintf("sweeping every %s, pending TTL %s", s.Cfg.Interval, s.Cfg.PendingTTL))

	for {
		select {
		case <-ctx.Done():
			s.Logger.LogSweep("STOP", "sweeper shutting down")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if s.Lock != nil {
		acquired, err := s.Lock.Acquire(ctx)
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("failed to acquire leader lock: %v", err))
			return
		}
		if !acquired {
			return
		}
		defer func() {
			if err := s.Lock.Release(ctx); err != nil {
				s.Logger.Error("SWEEP", fmt.Sprintf("failed to release leader lock: %v", err))
			}
		}()
	}

	swept, err := s.Bookings.ExpirePending(ctx, s.Cfg.PendingTTL)
	if err != nil {
		s.Logger.Error("SWEEP", fmt.Sprintf("expiry pass failed: %v", err))
		return
	}
	if swept > 0 {
		s.Logger.LogSweep("PASS", fmt.Sprintf("expired %d pending bookings", swept))
	}
}
