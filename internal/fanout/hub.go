// Package fanout distributes auction events to live subscribers.
//
// The hub keeps three independent subscription scopes: per-auction (bid and
// status updates for one auction), the global feed (every auction's
// updates), and per-user (personal notifications). A connection may hold
// any combination. Delivery is best-effort, at most once per connection: a
// failed send prunes the connection and is never retried; a reconnecting
// client re-subscribes and refreshes full state over the read API.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/artbid/auction-engine/internal/metrics"
)

// Conn is one live subscriber connection. Send must be bounded in time so a
// stalled peer cannot stall a broadcast; it returns an error once the
// underlying transport is broken, which the hub treats as permanent.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// subscriberSet is the subscriber list for one key. Its mutex serializes
// set mutation and broadcast iteration for that key; sets for different
// keys proceed independently. A set pruned out of its scope map is marked
// dead under the same mutex, so a racing subscribe cannot land in it.
type subscriberSet struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
	dead  bool
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{conns: make(map[Conn]struct{})}
}

// add registers c. Returns false when the set has been pruned from its
// scope map; the caller must resolve a fresh set and try again.
func (s *subscriberSet) add(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *subscriberSet) remove(c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// send delivers data to every member, pruning connections whose send
// fails. Returns the number of successful deliveries.
func (s *subscriberSet) send(data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := 0
	for c := range s.conns {
		if err := c.Send(data); err != nil {
			delete(s.conns, c)
			c.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Hub maintains the subscription scopes and broadcasts typed events.
// All methods are safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	auctions map[string]*subscriberSet
	users    map[string]*subscriberSet
	feed     *subscriberSet
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		auctions: make(map[string]*subscriberSet),
		users:    make(map[string]*subscriberSet),
		feed:     newSubscriberSet(),
	}
}

func (h *Hub) auctionSet(auctionID string, create bool) *subscriberSet {
	h.mu.RLock()
	set := h.auctions[auctionID]
	h.mu.RUnlock()
	if set != nil || !create {
		return set
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if set = h.auctions[auctionID]; set == nil {
		set = newSubscriberSet()
		h.auctions[auctionID] = set
	}
	return set
}

func (h *Hub) userSet(userID string, create bool) *subscriberSet {
	h.mu.RLock()
	set := h.users[userID]
	h.mu.RUnlock()
	if set != nil || !create {
		return set
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if set = h.users[userID]; set == nil {
		set = newSubscriberSet()
		h.users[userID] = set
	}
	return set
}

// SubscribeAuction registers conn for one auction's bid and status updates.
func (h *Hub) SubscribeAuction(auctionID string, c Conn) {
	// Retry when the hygiene sweep pruned the set between lookup and add.
	for !h.auctionSet(auctionID, true).add(c) {
	}
}

// UnsubscribeAuction removes conn from one auction's subscriber set.
func (h *Hub) UnsubscribeAuction(auctionID string, c Conn) {
	if set := h.auctionSet(auctionID, false); set != nil {
		set.remove(c)
	}
}

// SubscribeFeed registers conn for every auction's updates.
func (h *Hub) SubscribeFeed(c Conn) {
	h.feed.add(c)
}

// UnsubscribeFeed removes conn from the global feed.
func (h *Hub) UnsubscribeFeed(c Conn) {
	h.feed.remove(c)
}

// SubscribeUser registers conn for one user's personal notifications.
func (h *Hub) SubscribeUser(userID string, c Conn) {
	for !h.userSet(userID, true).add(c) {
	}
}

// UnsubscribeUser removes conn from one user's notification set.
func (h *Hub) UnsubscribeUser(userID string, c Conn) {
	if set := h.userSet(userID, false); set != nil {
		set.remove(c)
	}
}

// Drop removes conn from every scope and closes it. Called from the
// transport's close path.
func (h *Hub) Drop(c Conn) {
	h.mu.RLock()
	auctionSets := make([]*subscriberSet, 0, len(h.auctions))
	for _, set := range h.auctions {
		auctionSets = append(auctionSets, set)
	}
	userSets := make([]*subscriberSet, 0, len(h.users))
	for _, set := range h.users {
		userSets = append(userSets, set)
	}
	h.mu.RUnlock()

	for _, set := range auctionSets {
		set.remove(c)
	}
	for _, set := range userSets {
		set.remove(c)
	}
	h.feed.remove(c)
	c.Close()
}

// BroadcastBid sends a bid-update event to the auction's subscribers and
// the global feed. The caller does not wait on subscriber sockets.
func (h *Hub) BroadcastBid(ev Event, auctionID string) {
	h.broadcast(ev, auctionID)
}

// BroadcastStatus sends a lifecycle event with the same fan-out shape.
func (h *Hub) BroadcastStatus(ev Event, auctionID string) {
	h.broadcast(ev, auctionID)
}

func (h *Hub) broadcast(ev Event, auctionID string) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal event", "type", ev.Type, "err", err)
		return
	}

	set := h.auctionSet(auctionID, false)

	// Fire and forget: event distribution never blocks the bidder's
	// response. Each key's send loop is serialized by its set mutex; the
	// auction scope and the feed fan out concurrently.
	go func() {
		start := time.Now()
		delivered := 0
		if set != nil {
			delivered += set.send(data)
		}
		delivered += h.feed.send(data)
		metrics.BroadcastDuration.WithLabelValues(string(ev.Type)).Observe(time.Since(start).Seconds())
		metrics.EventsDelivered.WithLabelValues(string(ev.Type)).Add(float64(delivered))
	}()
}

// NotifyUser delivers a point-to-point message to all of the user's live
// connections. Silently drops when none are connected; the durable
// notification log is the offline fallback, not the hub.
func (h *Hub) NotifyUser(userID string, ev Event) {
	set := h.userSet(userID, false)
	if set == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal notification", "type", ev.Type, "err", err)
		return
	}

	go func() {
		delivered := set.send(data)
		metrics.EventsDelivered.WithLabelValues(string(ev.Type)).Add(float64(delivered))
	}()
}

// Run prunes empty subscriber sets on an interval until ctx is cancelled.
// Correctness does not depend on this; dead connections are already pruned
// lazily on send failure. This keeps the scope maps from accumulating
// empty entries for long-gone auctions.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.pruneEmpty()
		}
	}
}

// pruneEmpty deletes empty scope sets. Emptiness is re-checked and the
// dead mark written under the set's own mutex, so a subscribe racing the
// sweep either lands before the check or sees the dead set and retries.
func (h *Hub) pruneEmpty() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, set := range h.auctions {
		set.mu.Lock()
		if len(set.conns) == 0 {
			set.dead = true
			delete(h.auctions, id)
		}
		set.mu.Unlock()
	}
	for id, set := range h.users {
		set.mu.Lock()
		if len(set.conns) == 0 {
			set.dead = true
			delete(h.users, id)
		}
		set.mu.Unlock()
	}
}
