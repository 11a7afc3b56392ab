// Package auction implements bid arbitration and the auction lifecycle:
// accepting or rejecting bids, tracking the leader, and finalizing auctions
// once their end time has passed.
//
// The race-safety rule lives here: an accepted bid advances the auction's
// current price only through a compare-and-set that requires the amount to
// be strictly greater than the committed price. Under concurrent
// submissions exactly one writer wins per price level; the losers are still
// persisted as losing bid records.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
	"github.com/artbid/auction-engine/internal/store"
)

// Ledger owns auction and bid state transitions. Safe for concurrent use;
// per-auction atomicity is delegated to the store's conditional updates, so
// bidders racing on different auctions never block each other.
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// NewLedger creates a ledger over the given store.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st, now: time.Now}
}

// PlaceRequest is one bid submission.
type PlaceRequest struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
	// ClientBidID, when set, becomes the persisted bid id so retries can
	// be recognized. Empty means the server assigns one.
	ClientBidID string
	// Synced marks bids replayed from a client's offline queue.
	Synced bool
}

// MinimumNextBid returns the smallest amount the next bid must reach:
// max(currentBid + bidStep, startingPrice).
func MinimumNextBid(a *model.Auction) decimal.Decimal {
	min := a.CurrentBid.Add(a.BidStep)
	if min.LessThan(a.StartingPrice) {
		return a.StartingPrice
	}
	return min
}

// PlaceBid validates and commits one bid. Validation runs in a fixed order,
// each failure a distinct rejection sentinel. On success the bid record is
// persisted first, then the auction price advances through the
// compare-and-set; a bid that loses the advance race is still recorded.
func (l *Ledger) PlaceBid(ctx context.Context, req PlaceRequest) (*model.Bid, error) {
	a, err := l.store.GetAuction(ctx, req.AuctionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, req.AuctionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load auction %s: %w", req.AuctionID, err)
	}

	if a.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrAuctionNotActive, a.Status)
	}

	// Strict clock check: an auction past its end time is treated as
	// inactive even before the expiry sweep runs, closing the
	// last-instant double-accept window.
	now := l.now()
	if !a.EndTime.After(now) {
		return nil, fmt.Errorf("%w at %s", ErrAuctionExpired, a.EndTime.UTC().Format(time.RFC3339))
	}

	min := MinimumNextBid(a)
	if req.Amount.LessThan(min) {
		return nil, fmt.Errorf("%w: minimum is %s, got %s", ErrBidTooLow, min, req.Amount)
	}

	bidder, err := l.store.GetUser(ctx, req.BidderID)
	if err != nil {
		return nil, fmt.Errorf("resolve bidder %s: %w", req.BidderID, err)
	}
	if bidder.Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("%w: balance %s, bid %s", ErrInsufficientFunds, bidder.Balance, req.Amount)
	}

	bid := &model.Bid{
		ID:        req.ClientBidID,
		AuctionID: req.AuctionID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		CreatedAt: now.UTC(),
		Synced:    req.Synced,
	}
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}

	if err := l.store.InsertBid(ctx, bid); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			// A bid with this client id is already on record.
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBid, bid.ID)
		}
		// The caller must not assume the bid was recorded, and must not
		// blindly retry: the client bid id is how retries stay safe.
		return nil, fmt.Errorf("record bid: %w", err)
	}

	advanced, err := l.store.AdvanceAuctionPrice(ctx, req.AuctionID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("advance auction %s: %w", req.AuctionID, err)
	}
	bid.Leading = advanced

	if !advanced {
		// Lost the commit race to a concurrent equal-or-higher bid.
		// Persisted as a losing record; auction state is untouched.
		slog.Info("bid recorded without price advance",
			"bid_id", bid.ID,
			"auction_id", req.AuctionID,
			"amount", req.Amount.String(),
		)
	}

	return bid, nil
}

// PreviousLeader returns the bidder holding the highest bid on the auction,
// ties broken by earliest bid. The second return is false when the auction
// has no bids. Callers capture this before applying a new bid to target the
// outbid notification.
func (l *Ledger) PreviousLeader(ctx context.Context, auctionID string) (string, bool) {
	top, err := l.store.HighestBid(ctx, auctionID)
	if err != nil {
		return "", false
	}
	return top.BidderID, true
}

// Finalization describes one auction closed by the expiry sweep.
type Finalization struct {
	Auction *model.Auction
	Status  model.AuctionStatus
	Winner  *model.Bid // nil unless Status is sold
}

// SweepExpired finalizes every active auction whose end time has passed.
// No bids → ended; highest bid meets reserve (or none set) → sold with that
// bidder as winner, emitting the sale fact; reserve unmet → ended.
//
// Idempotent: finalization is a conditional transition out of active, so a
// sweep racing an earlier sweep (or rerun after a crash) is a no-op for
// already-closed auctions.
func (l *Ledger) SweepExpired(ctx context.Context) ([]Finalization, error) {
	expired, err := l.store.ListExpiredActive(ctx, l.now())
	if err != nil {
		return nil, fmt.Errorf("list expired auctions: %w", err)
	}

	var finalized []Finalization
	for i := range expired {
		a := &expired[i]
		f, err := l.finalize(ctx, a)
		if err != nil {
			slog.Error("finalize failed, will retry next sweep",
				"auction_id", a.ID, "err", err)
			continue
		}
		if f != nil {
			finalized = append(finalized, *f)
		}
	}
	return finalized, nil
}

func (l *Ledger) finalize(ctx context.Context, a *model.Auction) (*Finalization, error) {
	top, err := l.store.HighestBid(ctx, a.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("highest bid: %w", err)
	}

	status := model.StatusEnded
	winnerID := ""
	var winner *model.Bid

	if top != nil && (!a.HasReserve() || top.Amount.GreaterThanOrEqual(a.ReservePrice)) {
		status = model.StatusSold
		winnerID = top.BidderID
		winner = top
	}

	done, err := l.store.FinalizeAuction(ctx, a.ID, status, winnerID)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	if !done {
		// Another sweep got here first.
		return nil, nil
	}

	a.Status = status
	a.WinnerID = winnerID

	if status == model.StatusSold {
		sale := &model.Sale{
			ID:        uuid.New().String(),
			AuctionID: a.ID,
			ArtworkID: a.ArtworkID,
			SellerID:  a.CreatorID,
			BuyerID:   winnerID,
			Price:     winner.Amount,
			SoldAt:    l.now().UTC(),
		}
		if err := l.store.RecordSale(ctx, sale); err != nil {
			// Auction is already sold; the sale fact is retried by
			// operational reconciliation, not by re-finalizing.
			slog.Error("record sale failed", "auction_id", a.ID, "err", err)
		}
	}

	slog.Info("auction finalized",
		"auction_id", a.ID,
		"status", status,
		"winner_id", winnerID,
		"bid_count", a.BidCount,
	)

	return &Finalization{Auction: a, Status: status, Winner: winner}, nil
}
