package fanout_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artbid/auction-engine/internal/fanout"
	"github.com/artbid/auction-engine/internal/model"
)

func TestDecodeEvent_Discriminator(t *testing.T) {
	ev := fanout.StatusEvent("auction-a", model.StatusSold, "alice")
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	decoded, err := fanout.DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, fanout.EventAuctionStatus, decoded.Type)
	assert.Equal(t, model.StatusSold, decoded.Status)
	assert.Equal(t, "alice", decoded.WinnerID)
}

func TestDecodeEvent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type":"price_tick","auction_id":"a"}`},
		{"missing type", `{"auction_id":"a"}`},
		{"new_bid without payload", `{"type":"new_bid","auction_id":"a"}`},
		{"status without auction", `{"type":"auction_status","status":"sold"}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fanout.DecodeEvent([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestNewBidEvent_RoundTrip(t *testing.T) {
	bid := &model.Bid{ID: "b1", BidderID: "u1", Amount: decimal.NewFromFloat(1.2)}
	ev := fanout.NewBidEvent("auction-a", bid, "Alice", decimal.NewFromFloat(1.2), 3)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	decoded, err := fanout.DecodeEvent(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.Bid)
	assert.True(t, decoded.Bid.Amount.Equal(decimal.NewFromFloat(1.2)))
	assert.Equal(t, 3, decoded.BidCount)
}
