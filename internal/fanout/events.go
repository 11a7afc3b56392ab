package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
)

// EventType is the discriminator on every wire message.
type EventType string

const (
	EventNewBid        EventType = "new_bid"
	EventAuctionStatus EventType = "auction_status"
	EventAuctionUpdate EventType = "auction_update"
	EventOutbid        EventType = "outbid"
	EventAuctionWon    EventType = "auction_won"
)

// BidPayload is the bid snapshot carried by a new_bid event.
type BidPayload struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event is the tagged variant sent to subscribers. Type selects which of
// the optional fields are populated; decoding switches on the discriminator
// rather than probing payload shapes.
type Event struct {
	Type      EventType `json:"type"`
	AuctionID string    `json:"auction_id,omitempty"`

	// new_bid
	Bid        *BidPayload     `json:"bid,omitempty"`
	CurrentBid decimal.Decimal `json:"current_bid,omitempty"`
	BidCount   int             `json:"bid_count,omitempty"`

	// auction_status / auction_update
	Status   model.AuctionStatus `json:"status,omitempty"`
	WinnerID string              `json:"winner_id,omitempty"`

	// user notifications
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	ArtworkID string `json:"artwork_id,omitempty"`
}

// NewBidEvent builds the bid-update event broadcast after an accepted bid.
func NewBidEvent(auctionID string, bid *model.Bid, bidderName string, currentBid decimal.Decimal, bidCount int) Event {
	return Event{
		Type:      EventNewBid,
		AuctionID: auctionID,
		Bid: &BidPayload{
			ID:        bid.ID,
			UserID:    bid.BidderID,
			UserName:  bidderName,
			Amount:    bid.Amount,
			Timestamp: bid.CreatedAt,
		},
		CurrentBid: currentBid,
		BidCount:   bidCount,
	}
}

// StatusEvent builds the lifecycle event broadcast when an auction ends.
func StatusEvent(auctionID string, status model.AuctionStatus, winnerID string) Event {
	return Event{
		Type:      EventAuctionStatus,
		AuctionID: auctionID,
		Status:    status,
		WinnerID:  winnerID,
	}
}

// OutbidNotice builds the personal notification for a displaced leader.
func OutbidNotice(auctionID, artworkID string, newAmount decimal.Decimal) Event {
	return Event{
		Type:      EventOutbid,
		AuctionID: auctionID,
		ArtworkID: artworkID,
		Title:     "You have been outbid",
		Message:   fmt.Sprintf("A new bid of %s has taken the lead.", newAmount),
	}
}

// WonNotice builds the personal notification for an auction winner.
func WonNotice(auctionID, artworkID string, price decimal.Decimal) Event {
	return Event{
		Type:      EventAuctionWon,
		AuctionID: auctionID,
		ArtworkID: artworkID,
		Title:     "Auction won",
		Message:   fmt.Sprintf("Congratulations, you won the auction at %s.", price),
	}
}

// DecodeEvent parses a wire message by its discriminator and rejects
// unknown or malformed kinds. Used by clients consuming the feed.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	switch ev.Type {
	case EventNewBid:
		if ev.Bid == nil || ev.AuctionID == "" {
			return Event{}, fmt.Errorf("new_bid event missing bid payload")
		}
	case EventAuctionStatus, EventAuctionUpdate:
		if ev.AuctionID == "" || ev.Status == "" {
			return Event{}, fmt.Errorf("status event missing auction or status")
		}
	case EventOutbid, EventAuctionWon:
		// Notification payloads are free-form beyond the type.
	default:
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}
