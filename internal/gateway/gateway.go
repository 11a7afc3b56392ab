// Package gateway is the synchronous entry point for bid submission. It
// orchestrates one bid end to end: arbitration through the ledger, then
// event fan-out to live subscribers and the outbid notification to the
// displaced leader. It also exposes the batch sync path the offline queue
// replays through, and the read endpoints reconnecting clients refresh from.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/auction"
	"github.com/artbid/auction-engine/internal/fanout"
	"github.com/artbid/auction-engine/internal/metrics"
	"github.com/artbid/auction-engine/internal/model"
	"github.com/artbid/auction-engine/internal/store"
)

// BidIDReserver dedupes client-generated bid ids, so a retried submission
// is recognized instead of double-applied. Implemented by the Redis-backed
// store; nil disables deduplication.
type BidIDReserver interface {
	ReserveBidID(ctx context.Context, clientBidID string) (bool, error)
	ReleaseBidID(ctx context.Context, clientBidID string) error
}

// Service handles bid submission and auction reads.
type Service struct {
	store  store.Store
	ledger *auction.Ledger
	hub    *fanout.Hub
	idem   BidIDReserver
}

// NewService creates a new gateway service. Pass nil for idem when no
// deduplication backend is configured.
func NewService(st store.Store, ledger *auction.Ledger, hub *fanout.Hub, idem BidIDReserver) *Service {
	return &Service{store: st, ledger: ledger, hub: hub, idem: idem}
}

// --- Request/Response types ---

// PlaceBidRequest is the JSON body for POST /auctions/{auctionID}/bids.
type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	// ClientBidID is the client-generated idempotency id. Optional; the
	// offline queue always sets it.
	ClientBidID string `json:"client_bid_id,omitempty"`
}

// PlaceBidResponse is returned for an accepted bid.
type PlaceBidResponse struct {
	Bid        model.Bid       `json:"bid"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	BidCount   int             `json:"bid_count"`
}

// QueuedBidInput is one item of the batch sync request, in client order.
type QueuedBidInput struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// SyncBidsRequest is the JSON body for POST /bids/sync.
type SyncBidsRequest struct {
	BidderID string           `json:"bidder_id"`
	Bids     []QueuedBidInput `json:"bids"`
}

// SyncBidsResponse classifies each input id. Ids absent from both lists
// had no conclusive outcome and remain pending on the client.
type SyncBidsResponse struct {
	Synced []string `json:"synced"`
	Failed []string `json:"failed"`
}

// CreateAuctionRequest is the JSON body for POST /auctions.
type CreateAuctionRequest struct {
	ArtworkID     string          `json:"artwork_id"`
	CreatorID     string          `json:"creator_id"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	BidStep       decimal.Decimal `json:"bid_step"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

// --- Bid submission ---

// PlaceBid handles POST /api/v1/auctions/{auctionID}/bids.
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	var req PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BidderID == "" {
		writeError(w, "bidder_id is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	start := time.Now()
	bid, a, err := s.submit(r.Context(), auction.PlaceRequest{
		AuctionID:   auctionID,
		BidderID:    req.BidderID,
		Amount:      req.Amount,
		ClientBidID: req.ClientBidID,
	})
	metrics.BidLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		writeError(w, err.Error(), rejectionStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(PlaceBidResponse{
		Bid:        *bid,
		CurrentBid: a.CurrentBid,
		BidCount:   a.BidCount,
	})
}

// SyncBids handles POST /api/v1/bids/sync, the offline queue's batch
// reconciliation. Inputs are applied oldest first through the same
// single-bid path; one rejection never aborts the rest. A bid whose
// outcome is inconclusive (storage failure) lands in neither list so the
// client keeps it pending.
func (s *Service) SyncBids(w http.ResponseWriter, r *http.Request) {
	var req SyncBidsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BidderID == "" {
		writeError(w, "bidder_id is required", http.StatusBadRequest)
		return
	}

	resp := SyncBidsResponse{Synced: []string{}, Failed: []string{}}
	for _, in := range req.Bids {
		_, _, err := s.submit(r.Context(), auction.PlaceRequest{
			AuctionID:   in.AuctionID,
			BidderID:    req.BidderID,
			Amount:      in.Amount,
			ClientBidID: in.ID,
			Synced:      true,
		})
		switch {
		case err == nil:
			resp.Synced = append(resp.Synced, in.ID)
			metrics.SyncedBids.WithLabelValues("synced").Inc()
		case errors.Is(err, auction.ErrDuplicateBid):
			// An earlier attempt already recorded this bid; the client
			// drops it from the pending set as synced.
			resp.Synced = append(resp.Synced, in.ID)
			metrics.SyncedBids.WithLabelValues("synced").Inc()
		case auction.IsRejection(err):
			resp.Failed = append(resp.Failed, in.ID)
			metrics.SyncedBids.WithLabelValues("failed").Inc()
			slog.Info("offline bid rejected",
				"bid_id", in.ID, "auction_id", in.AuctionID, "reason", err.Error())
		default:
			// Inconclusive: leave out of both lists, client retries.
			metrics.SyncedBids.WithLabelValues("inconclusive").Inc()
			slog.Error("offline bid outcome inconclusive",
				"bid_id", in.ID, "auction_id", in.AuctionID, "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// submit runs the full single-bid path: dedupe, previous-leader capture,
// arbitration, then fan-out. The response does not wait on subscriber
// sockets; broadcasts are dispatched fire-and-forget by the hub.
func (s *Service) submit(ctx context.Context, req auction.PlaceRequest) (*model.Bid, *model.Auction, error) {
	if s.idem != nil && req.ClientBidID != "" {
		fresh, err := s.idem.ReserveBidID(ctx, req.ClientBidID)
		if err != nil {
			return nil, nil, err
		}
		if !fresh {
			// A held reservation is only a duplicate if the bid actually
			// got recorded. An earlier attempt may have failed after
			// reserving but before the insert; that bid must still be
			// allowed through.
			if _, err := s.store.GetBid(ctx, req.ClientBidID); err == nil {
				return nil, nil, fmt.Errorf("%w: %s", auction.ErrDuplicateBid, req.ClientBidID)
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, nil, err
			}
		}
	}

	prevLeader, hadLeader := s.ledger.PreviousLeader(ctx, req.AuctionID)

	bid, err := s.ledger.PlaceBid(ctx, req)
	if err != nil {
		if auction.IsRejection(err) {
			metrics.BidsRejected.WithLabelValues(rejectionReason(err)).Inc()
			// A rejected id may be reused for a corrected bid.
			if s.idem != nil && req.ClientBidID != "" && !errors.Is(err, auction.ErrDuplicateBid) {
				s.idem.ReleaseBidID(ctx, req.ClientBidID)
			}
		}
		return nil, nil, err
	}
	metrics.BidsAccepted.WithLabelValues(boolLabel(bid.Leading)).Inc()

	a, err := s.store.GetAuction(ctx, req.AuctionID)
	if err != nil {
		// Bid is committed; reads only feed the broadcast payload.
		return nil, nil, err
	}

	bidderName := req.BidderID
	if u, err := s.store.GetUser(ctx, req.BidderID); err == nil {
		bidderName = u.Name
	}

	slog.Info("bid accepted",
		"bid_id", bid.ID,
		"auction_id", req.AuctionID,
		"bidder_id", req.BidderID,
		"amount", bid.Amount.String(),
		"leading", bid.Leading,
		"synced", bid.Synced,
	)

	s.hub.BroadcastBid(fanout.NewBidEvent(a.ID, bid, bidderName, a.CurrentBid, a.BidCount), a.ID)

	if hadLeader && prevLeader != req.BidderID && bid.Leading {
		s.notifyOutbid(ctx, prevLeader, a, bid.Amount)
	}

	return bid, a, nil
}

func (s *Service) notifyOutbid(ctx context.Context, userID string, a *model.Auction, newAmount decimal.Decimal) {
	notice := fanout.OutbidNotice(a.ID, a.ArtworkID, newAmount)
	s.hub.NotifyUser(userID, notice)

	record := &model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      string(fanout.EventOutbid),
		Title:     notice.Title,
		Message:   notice.Message,
		AuctionID: a.ID,
		ArtworkID: a.ArtworkID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendNotification(ctx, record); err != nil {
		slog.Error("append outbid notification", "user_id", userID, "err", err)
	}
}

// AnnounceFinalized implements auction.Announcer: it pushes the lifecycle
// event to the auction's subscribers and the feed, and the winner's
// personal notification when the auction sold.
func (s *Service) AnnounceFinalized(ctx context.Context, f auction.Finalization) {
	a := f.Auction
	metrics.AuctionsFinalized.WithLabelValues(string(f.Status)).Inc()

	s.hub.BroadcastStatus(fanout.StatusEvent(a.ID, f.Status, a.WinnerID), a.ID)

	if f.Status != model.StatusSold || f.Winner == nil {
		return
	}

	notice := fanout.WonNotice(a.ID, a.ArtworkID, f.Winner.Amount)
	s.hub.NotifyUser(a.WinnerID, notice)

	record := &model.Notification{
		ID:        uuid.New().String(),
		UserID:    a.WinnerID,
		Kind:      string(fanout.EventAuctionWon),
		Title:     notice.Title,
		Message:   notice.Message,
		AuctionID: a.ID,
		ArtworkID: a.ArtworkID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendNotification(ctx, record); err != nil {
		slog.Error("append won notification", "user_id", a.WinnerID, "err", err)
	}
}

// --- Auction reads ---

// CreateAuction handles POST /api/v1/auctions.
func (s *Service) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ArtworkID == "" || req.CreatorID == "" {
		writeError(w, "artwork_id and creator_id are required", http.StatusBadRequest)
		return
	}
	if !req.EndTime.After(req.StartTime) {
		writeError(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}
	if !req.StartingPrice.IsPositive() || !req.BidStep.IsPositive() {
		writeError(w, "starting_price and bid_step must be positive", http.StatusBadRequest)
		return
	}

	status := model.StatusUpcoming
	if !req.StartTime.After(time.Now()) {
		status = model.StatusActive
	}

	a := &model.Auction{
		ID:            uuid.New().String(),
		ArtworkID:     req.ArtworkID,
		CreatorID:     req.CreatorID,
		StartingPrice: req.StartingPrice,
		ReservePrice:  req.ReservePrice,
		BidStep:       req.BidStep,
		CurrentBid:    decimal.Zero,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        status,
	}

	if err := s.store.CreateAuction(r.Context(), a); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("auction created",
		"id", a.ID, "artwork_id", a.ArtworkID, "end_time", a.EndTime, "status", a.Status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

// GetAuction handles GET /api/v1/auctions/{auctionID}. Reconnecting clients
// use this for the full-state refresh instead of event replay.
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	a, err := s.store.GetAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, "auction not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

// ListAuctions handles GET /api/v1/auctions.
func (s *Service) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := s.store.ListAuctions(r.Context())
	if err != nil {
		writeError(w, "failed to list auctions", http.StatusInternalServerError)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(auctions)
}

// ListAuctionBids handles GET /api/v1/auctions/{auctionID}/bids.
func (s *Service) ListAuctionBids(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	bids, err := s.store.BidsByAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, "failed to list bids", http.StatusInternalServerError)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bids)
}

// --- Helpers ---

func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		return http.StatusNotFound
	case auction.IsRejection(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		return "not_found"
	case errors.Is(err, auction.ErrAuctionNotActive):
		return "not_active"
	case errors.Is(err, auction.ErrAuctionExpired):
		return "expired"
	case errors.Is(err, auction.ErrBidTooLow):
		return "too_low"
	case errors.Is(err, auction.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, auction.ErrDuplicateBid):
		return "duplicate"
	default:
		return "other"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
