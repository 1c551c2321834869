package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically prunes expired revocations and refresh rows.
type Sweeper struct {
	refresh     RefreshStore
	revocations RevocationRegistry
	interval    time.Duration
	log         *slog.Logger
	metrics     *Metrics
	now         func() time.Time
}

func NewSweeper(refresh RefreshStore, revocations RevocationRegistry, interval time.Duration, log *slog.Logger, metrics *Metrics) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	return &Sweeper{
		refresh:     refresh,
		revocations: revocations,
		interval:    interval,
		log:         log,
		metrics:     metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is done. It always returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info("session.sweeper.start", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("session.sweeper.stop")
			return nil
		case <-t.C:
			s.SweepOnce(ctx, s.now())
		}
	}
}

// SweepOnce runs a single pass. Failures are logged, not returned.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) {
	if s.revocations != nil {
		n, err := s.revocations.Prune(ctx, now)
		if err != nil {
			s.log.Warn("session.sweeper.revocations_failed", "err", err)
		} else {
			s.metrics.sweptN("revocation", int64(n))
		}
		if l, ok := s.revocations.(interface{ Len() int }); ok {
			s.metrics.trackRevocations(l.Len())
		}
	}
	if s.refresh != nil {
		n, err := s.refresh.DeleteExpired(ctx, now)
		if err != nil {
			s.log.Warn("session.sweeper.refresh_failed", "err", err)
		} else {
			s.metrics.sweptN("refresh", n)
		}
	}
}
