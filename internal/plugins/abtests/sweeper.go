package abtests

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper evaluates tests whose end time has passed. Several replicas may
// run one; the per-test lock keeps each evaluation single.
type Sweeper struct {
	service  ABTestService
	interval time.Duration
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(service ABTestService, interval time.Duration) *Sweeper {
	return &Sweeper{service: service, interval: interval}
}

// Enabled reports whether Run does anything.
func (s *Sweeper) Enabled() bool {
	return s.interval > 0
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	slog.Info("ab test sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("ab test sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	n, err := s.service.EvaluateDue(ctx)
	if err != nil {
		slog.Error("sweeping due tests", slog.Any("error", err))
		return
	}
	if n > 0 {
		slog.Info("due tests evaluated",
			slog.Int("completed", n),
			slog.Duration("took", time.Since(start)),
		)
	}
}
