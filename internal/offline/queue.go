// Package offline is the client-side resilience component: it durably
// queues bids made while disconnected and replays them through the
// gateway's batch sync endpoint once connectivity returns.
//
// Each queued bid moves Pending → (Synced | Failed), both terminal. Failed
// means the server rejected it on business validation (auction ended, price
// moved, funds short); resubmitting identically cannot succeed, so the bid
// is dropped. A transport failure leaves the pending set untouched and
// schedules an exponential-backoff retry.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
)

// SyncResult classifies a batch by outcome id. Ids absent from both lists
// had no conclusive outcome and stay pending.
type SyncResult struct {
	Synced []string
	Failed []string
}

// Syncer sends one batch of pending bids to the server. A returned error
// means the batch as a whole did not get a response (transport failure);
// per-bid business failures come back inside the result instead.
type Syncer interface {
	SyncBids(ctx context.Context, bidderID string, bids []model.QueuedBid) (*SyncResult, error)
}

// PendingStore persists the pending set across process restarts.
type PendingStore interface {
	Load() ([]model.QueuedBid, error)
	Save(bids []model.QueuedBid) error
}

// Queue is the offline bid queue for one bidder. Safe for concurrent use.
type Queue struct {
	bidderID    string
	store       PendingStore
	syncer      Syncer
	backoffBase time.Duration
	maxAttempts int

	mu       sync.Mutex
	pending  []model.QueuedBid
	attempts int
	inFlight bool
	retry    *time.Timer
}

// NewQueue restores the pending set from the store and returns a queue
// ready to sync. No sync is triggered until Enqueue, SetOnline, or Retry.
func NewQueue(bidderID string, store PendingStore, syncer Syncer, backoffBase time.Duration, maxAttempts int) (*Queue, error) {
	pending, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore pending bids: %w", err)
	}
	return &Queue{
		bidderID:    bidderID,
		store:       store,
		syncer:      syncer,
		backoffBase: backoffBase,
		maxAttempts: maxAttempts,
		pending:     pending,
	}, nil
}

// Pending returns a snapshot of the queued bids.
func (q *Queue) Pending() []model.QueuedBid {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.QueuedBid, len(q.pending))
	copy(out, q.pending)
	return out
}

// Enqueue records a bid that could not reach the server and immediately
// attempts a sync. Returns the queued bid's client id.
func (q *Queue) Enqueue(ctx context.Context, auctionID string, amount decimal.Decimal) (string, error) {
	bid := model.QueuedBid{
		ID:        uuid.New().String(),
		AuctionID: auctionID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}

	q.mu.Lock()
	q.pending = append(q.pending, bid)
	err := q.store.Save(q.pending)
	q.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("persist queued bid: %w", err)
	}

	go q.Sync(ctx)
	return bid.ID, nil
}

// SetOnline signals a network-path transition. Going reachable resets the
// attempt counter and triggers a sync.
func (q *Queue) SetOnline(ctx context.Context, online bool) {
	if !online {
		return
	}
	q.resetAttempts()
	go q.Sync(ctx)
}

// Retry is the user-initiated trigger. Resets the attempt counter.
func (q *Queue) Retry(ctx context.Context) {
	q.resetAttempts()
	go q.Sync(ctx)
}

func (q *Queue) resetAttempts() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts = 0
	if q.retry != nil {
		q.retry.Stop()
		q.retry = nil
	}
}

// Sync sends all currently pending bids as one batch. If a sync is already
// in flight the call is a no-op; the in-flight sync covers the same set.
func (q *Queue) Sync(ctx context.Context) {
	q.mu.Lock()
	if q.inFlight || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	q.inFlight = true
	batch := make([]model.QueuedBid, len(q.pending))
	copy(batch, q.pending)
	q.mu.Unlock()

	result, err := q.syncer.SyncBids(ctx, q.bidderID, batch)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = false

	if err != nil {
		// No response at all. Nothing is lost: the pending set is
		// untouched and a bounded backoff retry takes over.
		q.attempts++
		slog.Warn("bid sync transport failure",
			"attempt", q.attempts, "pending", len(q.pending), "err", err)
		if q.attempts < q.maxAttempts {
			q.scheduleRetryLocked(ctx)
		} else {
			slog.Warn("bid sync halted until next trigger", "attempts", q.attempts)
		}
		return
	}

	q.attempts = 0
	resolved := make(map[string]struct{}, len(result.Synced)+len(result.Failed))
	for _, id := range result.Synced {
		resolved[id] = struct{}{}
	}
	for _, id := range result.Failed {
		resolved[id] = struct{}{}
	}

	var remaining []model.QueuedBid
	for _, bid := range q.pending {
		if _, done := resolved[bid.ID]; !done {
			// Absent from both lists: still pending, resent on the
			// next trigger.
			remaining = append(remaining, bid)
		}
	}
	q.pending = remaining

	if err := q.store.Save(q.pending); err != nil {
		slog.Error("persist pending bids", "err", err)
	}

	slog.Info("bid sync completed",
		"synced", len(result.Synced),
		"failed", len(result.Failed),
		"still_pending", len(q.pending),
	)
}

// scheduleRetryLocked arms the backoff timer: base * 2^(attempt-1).
// Caller holds q.mu.
func (q *Queue) scheduleRetryLocked(ctx context.Context) {
	delay := q.backoffBase << (q.attempts - 1)
	if q.retry != nil {
		q.retry.Stop()
	}
	q.retry = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		q.Sync(ctx)
	})
}

// Close stops any armed retry timer.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retry != nil {
		q.retry.Stop()
		q.retry = nil
	}
}
