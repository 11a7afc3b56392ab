// Package store defines the persistence interface for the auction engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateID is returned when an insert collides with an existing row id.
var ErrDuplicateID = errors.New("store: duplicate id")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Auction operations ---

	// CreateAuction persists a new auction.
	CreateAuction(ctx context.Context, a *model.Auction) error

	// GetAuction retrieves an auction by its ID.
	GetAuction(ctx context.Context, id string) (*model.Auction, error)

	// ListAuctions returns all auctions, newest end time first.
	ListAuctions(ctx context.Context) ([]model.Auction, error)

	// ListExpiredActive returns active auctions whose end time has passed.
	ListExpiredActive(ctx context.Context, now time.Time) ([]model.Auction, error)

	// AdvanceAuctionPrice performs the arbitration compare-and-set: it
	// sets current_bid = amount and increments bid_count only if the
	// auction is still active and amount is strictly greater than
	// current_bid at commit time. Returns whether the update won.
	AdvanceAuctionPrice(ctx context.Context, id string, amount decimal.Decimal) (bool, error)

	// FinalizeAuction moves an active auction to ended or sold. The
	// transition is conditional on status still being active, which makes
	// finalization idempotent. Returns whether this call performed it.
	FinalizeAuction(ctx context.Context, id string, status model.AuctionStatus, winnerID string) (bool, error)

	// --- Immutable bid records ---

	// InsertBid appends an immutable bid record. Returns ErrDuplicateID
	// when a bid with the same id already exists.
	InsertBid(ctx context.Context, b *model.Bid) error

	// GetBid retrieves a bid by its id, or ErrNotFound.
	GetBid(ctx context.Context, id string) (*model.Bid, error)

	// HighestBid returns the leading bid for an auction ordered by
	// (amount desc, created_at asc), or ErrNotFound when there are none.
	HighestBid(ctx context.Context, auctionID string) (*model.Bid, error)

	// BidsByAuction returns all bids for an auction, newest first.
	BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)

	// --- Collaborator contracts ---

	// GetUser resolves a bidder to display name and current balance.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// AppendNotification durably records a user-facing notification,
	// independent of whether the user is connected.
	AppendNotification(ctx context.Context, n *model.Notification) error

	// RecordSale emits the ownership-transfer and transaction-completed
	// facts for a sold auction.
	RecordSale(ctx context.Context, s *model.Sale) error
}
