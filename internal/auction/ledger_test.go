package auction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artbid/auction-engine/internal/auction"
	"github.com/artbid/auction-engine/internal/model"
	"github.com/artbid/auction-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestLedger creates a ledger over an in-memory store with one rich bidder.
func newTestLedger(t *testing.T) (*auction.Ledger, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.PutUser(&model.User{ID: "bidder-x", Name: "X", Balance: d(1000)})
	ms.PutUser(&model.User{ID: "bidder-y", Name: "Y", Balance: d(1000)})
	ms.PutUser(&model.User{ID: "broke", Name: "Broke", Balance: d(1)})
	return auction.NewLedger(ms), ms
}

// seedAuction creates an active auction directly in the store.
func seedAuction(t *testing.T, ms *store.MemoryStore, id string, starting, step, reserve float64, endIn time.Duration) *model.Auction {
	t.Helper()
	a := &model.Auction{
		ID:            id,
		ArtworkID:     "art-" + id,
		CreatorID:     "seller-1",
		StartingPrice: d(starting),
		ReservePrice:  d(reserve),
		BidStep:       d(step),
		CurrentBid:    decimal.Zero,
		StartTime:     time.Now().Add(-time.Hour),
		EndTime:       time.Now().Add(endIn),
		Status:        model.StatusActive,
	}
	require.NoError(t, ms.CreateAuction(context.Background(), a))
	return a
}

func place(l *auction.Ledger, auctionID, bidderID string, amount float64) (*model.Bid, error) {
	return l.PlaceBid(context.Background(), auction.PlaceRequest{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    d(amount),
	})
}

func TestMinimumNextBid(t *testing.T) {
	a := &model.Auction{StartingPrice: d(1.0), BidStep: d(0.1), CurrentBid: decimal.Zero}
	assert.True(t, auction.MinimumNextBid(a).Equal(d(1.0)), "no bids yet: starting price applies")

	a.CurrentBid = d(1.2)
	assert.True(t, auction.MinimumNextBid(a).Equal(d(1.3)), "current bid plus step")
}

func TestPlaceBid_Accepted(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "a1", 1.0, 0.1, 0, time.Hour)

	bid, err := place(l, "a1", "bidder-x", 1.2)
	require.NoError(t, err)
	assert.True(t, bid.Leading)
	assert.False(t, bid.Synced)

	a, err := ms.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, a.CurrentBid.Equal(d(1.2)))
	assert.Equal(t, 1, a.BidCount)
}

func TestPlaceBid_RejectionOrder(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "open", 1.0, 0.1, 0, time.Hour)
	seedAuction(t, ms, "expired", 1.0, 0.1, 0, -time.Minute)

	upcoming := seedAuction(t, ms, "upcoming", 1.0, 0.1, 0, time.Hour)
	upcoming.Status = model.StatusUpcoming
	require.NoError(t, ms.CreateAuction(context.Background(), upcoming))

	tests := []struct {
		name      string
		auctionID string
		bidderID  string
		amount    float64
		want      error
	}{
		{"missing auction", "nope", "bidder-x", 2.0, auction.ErrAuctionNotFound},
		{"not active", "upcoming", "bidder-x", 2.0, auction.ErrAuctionNotActive},
		{"clock expired before sweep", "expired", "bidder-x", 2.0, auction.ErrAuctionExpired},
		{"below starting price", "open", "bidder-x", 0.9, auction.ErrBidTooLow},
		{"insufficient balance", "open", "broke", 1.5, auction.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := place(l, tt.auctionID, tt.bidderID, tt.amount)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, auction.IsRejection(err))
		})
	}

	// None of the rejections touched auction state.
	a, err := ms.GetAuction(context.Background(), "open")
	require.NoError(t, err)
	assert.True(t, a.CurrentBid.IsZero())
	assert.Equal(t, 0, a.BidCount)
}

func TestPlaceBid_BelowIncrementRejected(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "a1", 1.0, 0.1, 0, time.Hour)

	_, err := place(l, "a1", "bidder-x", 1.0)
	require.NoError(t, err)

	// 1.05 < 1.0 + 0.1 minimum.
	_, err = place(l, "a1", "bidder-x", 1.05)
	assert.ErrorIs(t, err, auction.ErrBidTooLow)

	a, _ := ms.GetAuction(context.Background(), "a1")
	assert.True(t, a.CurrentBid.Equal(d(1.0)))
	assert.Equal(t, 1, a.BidCount)
}

func TestPlaceBid_ClientIDPreserved(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "a1", 1.0, 0.1, 0, time.Hour)

	bid, err := l.PlaceBid(context.Background(), auction.PlaceRequest{
		AuctionID:   "a1",
		BidderID:    "bidder-x",
		Amount:      d(1.5),
		ClientBidID: "client-abc",
		Synced:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "client-abc", bid.ID)
	assert.True(t, bid.Synced)
}

func TestPreviousLeader_TiesByEarliestBid(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "a1", 1.0, 0.1, 0, time.Hour)

	_, none := l.PreviousLeader(context.Background(), "a1")
	assert.False(t, none, "no bids means no leader")

	// Equal amounts recorded directly: the earlier bid wins the tie.
	require.NoError(t, ms.InsertBid(context.Background(), &model.Bid{
		ID: "b1", AuctionID: "a1", BidderID: "bidder-x", Amount: d(2.0),
		CreatedAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, ms.InsertBid(context.Background(), &model.Bid{
		ID: "b2", AuctionID: "a1", BidderID: "bidder-y", Amount: d(2.0),
		CreatedAt: time.Now(),
	}))

	leader, ok := l.PreviousLeader(context.Background(), "a1")
	require.True(t, ok)
	assert.Equal(t, "bidder-x", leader)
}

// TestPlaceBid_ConcurrentMonotonic drives many racing bidders at one
// auction and checks the core arbitration property: the committed price is
// non-decreasing and finishes at the maximum accepted amount, and the bid
// count equals the number of bids that won the price advance.
func TestPlaceBid_ConcurrentMonotonic(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "race", 1.0, 0.01, 0, time.Hour)

	const bidders = 32
	var wg sync.WaitGroup
	accepted := make([]*model.Bid, bidders)

	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bid, err := place(l, "race", "bidder-x", 1.0+float64(i)*0.05)
			if err == nil {
				accepted[i] = bid
			}
		}(i)
	}
	wg.Wait()

	maxAccepted := decimal.Zero
	leading := 0
	for _, bid := range accepted {
		if bid == nil {
			continue
		}
		if bid.Amount.GreaterThan(maxAccepted) {
			maxAccepted = bid.Amount
		}
		if bid.Leading {
			leading++
		}
	}

	a, err := ms.GetAuction(context.Background(), "race")
	require.NoError(t, err)
	assert.True(t, a.CurrentBid.Equal(maxAccepted),
		"final price %s should equal max accepted amount %s", a.CurrentBid, maxAccepted)
	assert.Equal(t, leading, a.BidCount,
		"bid count tracks only bids that advanced the price")
	assert.GreaterOrEqual(t, leading, 1)
}

// --- Expiry sweep ---

func TestSweepExpired_NoBidsEnds(t *testing.T) {
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "a1", 1.0, 0.1, 0, -time.Minute)

	finalized, err := l.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Len(t, finalized, 1)
	assert.Equal(t, model.StatusEnded, finalized[0].Status)
	assert.Nil(t, finalized[0].Winner)

	a, _ := ms.GetAuction(context.Background(), "a1")
	assert.Equal(t, model.StatusEnded, a.Status)
	assert.Empty(t, a.WinnerID)
}

func TestSweepExpired_ReserveMatrix(t *testing.T) {
	tests := []struct {
		name       string
		reserve    float64
		highest    float64
		wantStatus model.AuctionStatus
		wantWinner string
	}{
		{"reserve unmet", 2.0, 1.8, model.StatusEnded, ""},
		{"reserve met", 2.0, 2.5, model.StatusSold, "bidder-x"},
		{"no reserve", 0, 1.2, model.StatusSold, "bidder-x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, ms := newTestLedger(t)
			a := seedAuction(t, ms, "a1", 1.0, 0.1, tt.reserve, time.Hour)

			bid, err := place(l, "a1", "bidder-x", tt.highest)
			require.NoError(t, err)
			require.True(t, bid.Leading)

			// Expire the auction after the bid landed.
			a.EndTime = time.Now().Add(-time.Second)
			require.NoError(t, ms.CreateAuction(context.Background(), a))

			finalized, err := l.SweepExpired(context.Background())
			require.NoError(t, err)
			require.Len(t, finalized, 1)
			assert.Equal(t, tt.wantStatus, finalized[0].Status)

			got, _ := ms.GetAuction(context.Background(), "a1")
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantWinner, got.WinnerID)

			if tt.wantStatus == model.StatusSold {
				require.Len(t, ms.Sales(), 1)
				sale := ms.Sales()[0]
				assert.Equal(t, "bidder-x", sale.BuyerID)
				assert.True(t, sale.Price.Equal(d(tt.highest)))
			} else {
				assert.Empty(t, ms.Sales())
			}
		})
	}
}

func TestSweepExpired_Idempotent(t *testing.T) {
	l, ms := newTestLedger(t)
	a := seedAuction(t, ms, "a1", 1.0, 0.1, 0, time.Hour)
	_, err := place(l, "a1", "bidder-x", 1.5)
	require.NoError(t, err)

	a.EndTime = time.Now().Add(-time.Second)
	require.NoError(t, ms.CreateAuction(context.Background(), a))

	first, err := l.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second sweep observes nothing left to do.
	second, err := l.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)

	got, _ := ms.GetAuction(context.Background(), "a1")
	assert.Equal(t, model.StatusSold, got.Status)
	assert.Len(t, ms.Sales(), 1, "sale fact emitted exactly once")
}

func TestSweepExpired_RejectsRaceWithBid(t *testing.T) {
	// A bid arriving after the clock ran out is rejected on the strict
	// end-time check even though the sweep has not finalized yet.
	l, ms := newTestLedger(t)
	seedAuction(t, ms, "a1", 1.0, 0.1, 0, -time.Second)

	_, err := place(l, "a1", "bidder-x", 1.5)
	assert.ErrorIs(t, err, auction.ErrAuctionExpired)

	_, err = l.SweepExpired(context.Background())
	require.NoError(t, err)

	got, _ := ms.GetAuction(context.Background(), "a1")
	assert.Equal(t, model.StatusEnded, got.Status)
}

func TestIsRejection(t *testing.T) {
	assert.True(t, auction.IsRejection(auction.ErrBidTooLow))
	assert.False(t, auction.IsRejection(errors.New("connection refused")))
	assert.False(t, auction.IsRejection(nil))
}
