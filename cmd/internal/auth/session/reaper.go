package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Reaper periodically sweeps expired sessions to bound memory.
// Correctness never depends on it: readers apply lazy expiry.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger
}

// NewReaper constructs a Reaper. A non-positive interval falls back to one minute.
func NewReaper(s Sweeper, interval time.Duration, log *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{sweeper: s, interval: interval, log: log}
}

// Run sweeps on every tick until ctx is done. It always returns nil so it can
// sit in an errgroup next to the HTTP server.
func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("reaper.start", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper.stop")
			return nil
		case <-t.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass and returns the number of removed sessions.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	n, err := r.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("reaper.sweep_failed", "err", err)
		}
		return 0
	}
	if n > 0 {
		r.log.Info("reaper.sweep", "removed", n)
	}
	return n
}
