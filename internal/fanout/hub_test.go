package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artbid/auction-engine/internal/fanout"
	"github.com/artbid/auction-engine/internal/model"
)

// fakeConn collects sent frames; it can be flipped to broken to simulate a
// peer that dropped mid-broadcast.
type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	broken bool
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken || c.closed {
		return errors.New("broken pipe")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.msgs = append(c.msgs, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) breakPipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *fakeConn) lastEvent(t *testing.T) fanout.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.msgs)
	ev, err := fanout.DecodeEvent(c.msgs[len(c.msgs)-1])
	require.NoError(t, err)
	return ev
}

func bidEvent(auctionID string) fanout.Event {
	bid := &model.Bid{
		ID:        "b1",
		AuctionID: auctionID,
		BidderID:  "u1",
		Amount:    decimal.NewFromFloat(1.2),
		CreatedAt: time.Now().UTC(),
	}
	return fanout.NewBidEvent(auctionID, bid, "Alice", decimal.NewFromFloat(1.2), 1)
}

func waitDelivered(t *testing.T, c *fakeConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.received() == n },
		time.Second, 5*time.Millisecond)
}

func TestBroadcastBid_ScopeIsolation(t *testing.T) {
	hub := fanout.NewHub()

	subA := &fakeConn{}
	subB := &fakeConn{}
	feed := &fakeConn{}
	hub.SubscribeAuction("auction-a", subA)
	hub.SubscribeAuction("auction-b", subB)
	hub.SubscribeFeed(feed)

	hub.BroadcastBid(bidEvent("auction-a"), "auction-a")

	waitDelivered(t, subA, 1)
	waitDelivered(t, feed, 1)

	// A connection subscribed only to a different auction never sees it.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, subB.received())

	ev := subA.lastEvent(t)
	assert.Equal(t, fanout.EventNewBid, ev.Type)
	assert.Equal(t, "auction-a", ev.AuctionID)
	require.NotNil(t, ev.Bid)
	assert.Equal(t, "Alice", ev.Bid.UserName)
}

func TestBroadcastBid_FeedGetsEveryAuction(t *testing.T) {
	hub := fanout.NewHub()
	feed := &fakeConn{}
	hub.SubscribeFeed(feed)

	hub.BroadcastBid(bidEvent("auction-a"), "auction-a")
	hub.BroadcastBid(bidEvent("auction-b"), "auction-b")

	waitDelivered(t, feed, 2)
}

func TestBroadcast_DualSubscriptionGetsBoth(t *testing.T) {
	// One connection holding both the auction scope and the feed receives
	// the event through each subscription.
	hub := fanout.NewHub()
	both := &fakeConn{}
	hub.SubscribeAuction("auction-a", both)
	hub.SubscribeFeed(both)

	hub.BroadcastBid(bidEvent("auction-a"), "auction-a")

	waitDelivered(t, both, 2)
}

func TestBroadcast_PrunesBrokenConn(t *testing.T) {
	hub := fanout.NewHub()
	healthy := &fakeConn{}
	dying := &fakeConn{}
	hub.SubscribeAuction("auction-a", healthy)
	hub.SubscribeAuction("auction-a", dying)

	dying.breakPipe()
	hub.BroadcastBid(bidEvent("auction-a"), "auction-a")
	waitDelivered(t, healthy, 1)

	// The broken connection was pruned and closed; the next broadcast
	// reaches only the survivor.
	require.Eventually(t, func() bool {
		dying.mu.Lock()
		defer dying.mu.Unlock()
		return dying.closed
	}, time.Second, 5*time.Millisecond)

	hub.BroadcastBid(bidEvent("auction-a"), "auction-a")
	waitDelivered(t, healthy, 2)
	assert.Zero(t, dying.received())
}

func TestNotifyUser_PointToPoint(t *testing.T) {
	hub := fanout.NewHub()
	alice := &fakeConn{}
	bob := &fakeConn{}
	hub.SubscribeUser("alice", alice)
	hub.SubscribeUser("bob", bob)

	hub.NotifyUser("alice", fanout.OutbidNotice("auction-a", "art-1", decimal.NewFromFloat(1.3)))

	waitDelivered(t, alice, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, bob.received())

	ev := alice.lastEvent(t)
	assert.Equal(t, fanout.EventOutbid, ev.Type)
	assert.Equal(t, "auction-a", ev.AuctionID)
}

func TestNotifyUser_NoConnectionsIsNoop(t *testing.T) {
	hub := fanout.NewHub()
	// Must not panic or block; the durable notification log is the
	// offline fallback.
	hub.NotifyUser("ghost", fanout.WonNotice("auction-a", "art-1", decimal.NewFromFloat(2.5)))
}

func TestDrop_RemovesFromAllScopes(t *testing.T) {
	hub := fanout.NewHub()
	conn := &fakeConn{}
	hub.SubscribeAuction("auction-a", conn)
	hub.SubscribeFeed(conn)
	hub.SubscribeUser("alice", conn)

	hub.Drop(conn)
	assert.True(t, conn.closed)

	hub.BroadcastBid(bidEvent("auction-a"), "auction-a")
	hub.NotifyUser("alice", fanout.OutbidNotice("auction-a", "art-1", decimal.NewFromFloat(1.3)))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, conn.received())
}

func TestRun_PrunesEmptySets(t *testing.T) {
	hub := fanout.NewHub()
	conn := &fakeConn{}
	hub.SubscribeAuction("auction-a", conn)
	hub.UnsubscribeAuction("auction-a", conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
