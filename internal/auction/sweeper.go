package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Announcer receives finalizations for distribution to live subscribers.
// Implemented by the gateway; nil disables announcements.
type Announcer interface {
	AnnounceFinalized(ctx context.Context, f Finalization)
}

// Sweeper runs the expiry sweep on an interval. At most one sweep is in
// flight at a time; a tick that arrives mid-sweep is skipped. Overlap with
// concurrent bid submissions is safe because finalization is a conditional
// transition and expired auctions already reject bids on the clock check.
type Sweeper struct {
	ledger    *Ledger
	announcer Announcer
	interval  time.Duration
	active    sync.Mutex
}

// NewSweeper creates a sweeper over the ledger.
func NewSweeper(ledger *Ledger, announcer Announcer, interval time.Duration) *Sweeper {
	return &Sweeper{
		ledger:    ledger,
		announcer: announcer,
		interval:  interval,
	}
}

// Run sweeps until ctx is cancelled. A failed sweep is logged and retried
// on the next tick; nothing here is fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one sweep pass if none is already running.
func (s *Sweeper) Sweep(ctx context.Context) {
	if !s.active.TryLock() {
		return // previous sweep still in flight
	}
	defer s.active.Unlock()

	finalized, err := s.ledger.SweepExpired(ctx)
	if err != nil {
		slog.Error("expiry sweep failed", "err", err)
		return
	}

	if s.announcer == nil {
		return
	}
	for _, f := range finalized {
		s.announcer.AnnounceFinalized(ctx, f)
	}
}
