// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction. Transitions are
// forward-only: upcoming → active → (ended | sold).
type AuctionStatus string

const (
	StatusUpcoming AuctionStatus = "upcoming"
	StatusActive   AuctionStatus = "active"
	StatusEnded    AuctionStatus = "ended"
	StatusSold     AuctionStatus = "sold"
)

// Final reports whether the status admits no further transitions.
func (s AuctionStatus) Final() bool {
	return s == StatusEnded || s == StatusSold
}

// Auction is the state of one time-boxed sale.
//
// CurrentBid is monotonically non-decreasing, BidCount equals the number of
// accepted bids, and status == sold implies WinnerID is set and CurrentBid
// meets ReservePrice when one exists. Once ended or sold the row is immutable.
type Auction struct {
	ID            string          `json:"id" db:"id"`
	ArtworkID     string          `json:"artwork_id" db:"artwork_id"`
	CreatorID     string          `json:"creator_id" db:"creator_id"`
	StartingPrice decimal.Decimal `json:"starting_price" db:"starting_price"`
	ReservePrice  decimal.Decimal `json:"reserve_price" db:"reserve_price"` // zero = no reserve
	BidStep       decimal.Decimal `json:"bid_step" db:"bid_step"`           // minimum increment
	CurrentBid    decimal.Decimal `json:"current_bid" db:"current_bid"`
	BidCount      int             `json:"bid_count" db:"bid_count"`
	StartTime     time.Time       `json:"start_time" db:"start_time"`
	EndTime       time.Time       `json:"end_time" db:"end_time"`
	Status        AuctionStatus   `json:"status" db:"status"`
	WinnerID      string          `json:"winner_id,omitempty" db:"winner_id"`
}

// HasReserve reports whether a reserve price is set.
func (a *Auction) HasReserve() bool {
	return a.ReservePrice.IsPositive()
}

// Bid is an immutable record of an accepted bid submission.
// Once created, these are never modified or deleted. Bids for one auction
// form a total order by (amount desc, created_at asc) for leader selection.
type Bid struct {
	ID        string          `json:"id" db:"id"`
	AuctionID string          `json:"auction_id" db:"auction_id"`
	BidderID  string          `json:"bidder_id" db:"bidder_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	Synced    bool            `json:"synced" db:"synced"`   // true when replayed from the offline queue
	Leading   bool            `json:"leading" db:"is_leading"` // whether this bid advanced the auction price
}

// QueuedBid is a client-side bid awaiting server acknowledgment. It exists
// only while the client is offline or a sync is pending; it is removed once
// the server reports it synced or permanently failed.
type QueuedBid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// User is the slice of the identity store this engine reads: display name
// for wire messages and balance for bid validation. Balance is advisory;
// funds are not escrowed at bid time.
type User struct {
	ID      string          `json:"id" db:"id"`
	Name    string          `json:"name" db:"name"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
}

// Notification is a durable user-facing notification record (outbid,
// auction won). The live push is best-effort; this row is the history the
// client reconstructs from.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Kind      string    `json:"kind" db:"kind"` // "outbid", "auction_won"
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	AuctionID string    `json:"auction_id,omitempty" db:"auction_id"`
	ArtworkID string    `json:"artwork_id,omitempty" db:"artwork_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Sale records a finalized purchase: the ownership transfer and the
// completed transaction emitted when an auction closes sold. The downstream
// ledger owns the full schema; this is the fact the engine emits.
type Sale struct {
	ID        string          `json:"id" db:"id"`
	AuctionID string          `json:"auction_id" db:"auction_id"`
	ArtworkID string          `json:"artwork_id" db:"artwork_id"`
	SellerID  string          `json:"seller_id" db:"seller_id"`
	BuyerID   string          `json:"buyer_id" db:"buyer_id"`
	Price     decimal.Decimal `json:"price" db:"price"`
	SoldAt    time.Time       `json:"sold_at" db:"sold_at"`
}
