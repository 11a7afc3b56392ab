package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingConn struct {
	sent int
}

func (c *countingConn) Send([]byte) error { c.sent++; return nil }
func (c *countingConn) Close() error      { return nil }

func TestSubscribeAuction_SurvivesHygieneSweep(t *testing.T) {
	h := NewHub()

	// A subscribe resolves the set, then the sweep deletes it while still
	// empty. The stale set must refuse the member instead of stranding it.
	stale := h.auctionSet("auction-a", true)
	h.pruneEmpty()
	c := &countingConn{}
	assert.False(t, stale.add(c), "pruned set must not accept members")

	// The public path retries into a live set and deliveries reach it.
	h.SubscribeAuction("auction-a", c)
	live := h.auctionSet("auction-a", false)
	require.NotNil(t, live)
	assert.Equal(t, 1, live.send([]byte(`{}`)))

	// An occupied set survives the next sweep.
	h.pruneEmpty()
	assert.Same(t, live, h.auctionSet("auction-a", false))
}

func TestSubscribeUser_SurvivesHygieneSweep(t *testing.T) {
	h := NewHub()

	stale := h.userSet("alice", true)
	h.pruneEmpty()
	c := &countingConn{}
	assert.False(t, stale.add(c))

	h.SubscribeUser("alice", c)
	live := h.userSet("alice", false)
	require.NotNil(t, live)
	assert.Equal(t, 1, live.send([]byte(`{}`)))
}
