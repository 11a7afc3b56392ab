package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/artbid/auction-engine/internal/gateway"
	"github.com/artbid/auction-engine/internal/model"
)

// HTTPSyncer replays batches through the gateway's sync endpoint.
type HTTPSyncer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSyncer creates a syncer against the server at baseURL
// (e.g. "http://localhost:8080"). Pass nil to use a client with a
// 15 second timeout.
func NewHTTPSyncer(baseURL string, client *http.Client) *HTTPSyncer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSyncer{baseURL: baseURL, client: client}
}

func (s *HTTPSyncer) SyncBids(ctx context.Context, bidderID string, bids []model.QueuedBid) (*SyncResult, error) {
	reqBody := gateway.SyncBidsRequest{BidderID: bidderID}
	for _, b := range bids {
		reqBody.Bids = append(reqBody.Bids, gateway.QueuedBidInput{
			ID:        b.ID,
			AuctionID: b.AuctionID,
			Amount:    b.Amount,
			Timestamp: b.Timestamp,
		})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/bids/sync", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync request: unexpected status %d", resp.StatusCode)
	}

	var out gateway.SyncBidsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return &SyncResult{Synced: out.Synced, Failed: out.Failed}, nil
}
