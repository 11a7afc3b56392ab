package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	auctions      map[string]*model.Auction
	bids          []model.Bid
	users         map[string]*model.User
	notifications []model.Notification
	sales         []model.Sale
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]*model.Auction),
		users:    make(map[string]*model.User),
	}
}

func (s *MemoryStore) CreateAuction(_ context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *a
	s.auctions[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAuction(_ context.Context, id string) (*model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAuctions(_ context.Context) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		auctions = append(auctions, *a)
	}
	sort.Slice(auctions, func(i, j int) bool {
		return auctions[i].EndTime.After(auctions[j].EndTime)
	})
	return auctions, nil
}

func (s *MemoryStore) ListExpiredActive(_ context.Context, now time.Time) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []model.Auction
	for _, a := range s.auctions {
		if a.Status == model.StatusActive && a.EndTime.Before(now) {
			expired = append(expired, *a)
		}
	}
	return expired, nil
}

func (s *MemoryStore) AdvanceAuctionPrice(_ context.Context, id string, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return false, ErrNotFound
	}
	// Mirrors the conditional UPDATE: advance only while active and
	// strictly greater than the committed price.
	if a.Status != model.StatusActive || !amount.GreaterThan(a.CurrentBid) {
		return false, nil
	}
	a.CurrentBid = amount
	a.BidCount++
	return true, nil
}

func (s *MemoryStore) FinalizeAuction(_ context.Context, id string, status model.AuctionStatus, winnerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != model.StatusActive {
		return false, nil
	}
	a.Status = status
	a.WinnerID = winnerID
	return true, nil
}

func (s *MemoryStore) InsertBid(_ context.Context, b *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mirrors the bids primary key.
	for i := range s.bids {
		if s.bids[i].ID == b.ID {
			return fmt.Errorf("insert bid %s: %w", b.ID, ErrDuplicateID)
		}
	}
	s.bids = append(s.bids, *b)
	return nil
}

func (s *MemoryStore) GetBid(_ context.Context, id string) (*model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.bids {
		if s.bids[i].ID == id {
			cp := s.bids[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) HighestBid(_ context.Context, auctionID string) (*model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.Bid
	for i := range s.bids {
		b := &s.bids[i]
		if b.AuctionID != auctionID {
			continue
		}
		if best == nil ||
			b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) BidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bid
	for _, b := range s.bids {
		if b.AuctionID == auctionID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// PutUser seeds an identity row. Test/dev helper; the identity store is an
// external collaborator in production.
func (s *MemoryStore) PutUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStore) AppendNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, *n)
	return nil
}

// Notifications returns appended notification records. Test helper.
func (s *MemoryStore) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *MemoryStore) RecordSale(_ context.Context, sale *model.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sales = append(s.sales, *sale)
	return nil
}

// Sales returns recorded sale facts. Test helper.
func (s *MemoryStore) Sales() []model.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Sale, len(s.sales))
	copy(out, s.sales)
	return out
}
