package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for auction reads, the hottest path during live bidding. Writes go
// to the primary store and invalidate the cache.
//
// It also reserves client-generated bid ids in Redis so a retried
// submission with the same id is recognized instead of double-applied.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	idemTTL time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl, idemTTL time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		idemTTL: idemTTL,
	}
}

// ReserveBidID marks a client bid id as seen. Returns false when the id was
// already reserved, meaning this submission is a duplicate of an earlier
// one that may have been accepted.
func (s *CachedStore) ReserveBidID(ctx context.Context, clientBidID string) (bool, error) {
	return s.rdb.SetNX(ctx, bidIDKey(clientBidID), 1, s.idemTTL).Result()
}

// ReleaseBidID frees a reservation after a rejection, so the client may
// resubmit a corrected bid under a fresh attempt.
func (s *CachedStore) ReleaseBidID(ctx context.Context, clientBidID string) error {
	return s.rdb.Del(ctx, bidIDKey(clientBidID)).Err()
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	if err := s.primary.CreateAuction(ctx, a); err != nil {
		return err
	}
	s.cacheAuction(ctx, a)
	return nil
}

func (s *CachedStore) AdvanceAuctionPrice(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	advanced, err := s.primary.AdvanceAuctionPrice(ctx, id, amount)
	if err != nil {
		return false, err
	}
	if advanced {
		// Invalidate; next read re-populates with the committed price.
		s.rdb.Del(ctx, auctionKey(id))
	}
	return advanced, nil
}

func (s *CachedStore) FinalizeAuction(ctx context.Context, id string, status model.AuctionStatus, winnerID string) (bool, error) {
	finalized, err := s.primary.FinalizeAuction(ctx, id, status, winnerID)
	if err != nil {
		return false, err
	}
	if finalized {
		s.rdb.Del(ctx, auctionKey(id))
	}
	return finalized, nil
}

func (s *CachedStore) InsertBid(ctx context.Context, b *model.Bid) error {
	return s.primary.InsertBid(ctx, b)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	data, err := s.rdb.Get(ctx, auctionKey(id)).Bytes()
	if err == nil {
		var a model.Auction
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAuction(ctx, a)
	return a, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	return s.primary.ListAuctions(ctx)
}

func (s *CachedStore) ListExpiredActive(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return s.primary.ListExpiredActive(ctx, now)
}

func (s *CachedStore) GetBid(ctx context.Context, id string) (*model.Bid, error) {
	return s.primary.GetBid(ctx, id)
}

func (s *CachedStore) HighestBid(ctx context.Context, auctionID string) (*model.Bid, error) {
	return s.primary.HighestBid(ctx, auctionID)
}

func (s *CachedStore) BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	return s.primary.BidsByAuction(ctx, auctionID)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) AppendNotification(ctx context.Context, n *model.Notification) error {
	return s.primary.AppendNotification(ctx, n)
}

func (s *CachedStore) RecordSale(ctx context.Context, sale *model.Sale) error {
	return s.primary.RecordSale(ctx, sale)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAuction(ctx context.Context, a *model.Auction) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, auctionKey(a.ID), data, s.ttl)
	}
}

func auctionKey(id string) string { return fmt.Sprintf("auction:%s", id) }
func bidIDKey(id string) string   { return fmt.Sprintf("bid-id:%s", id) }
