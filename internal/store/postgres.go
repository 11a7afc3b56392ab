package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/artbid/auction-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Bid arbitration and finalization are single conditional UPDATEs, so two
// bidders racing on one auction resolve inside the database without any
// cross-process lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const auctionColumns = `id, artwork_id, creator_id,
       starting_price::TEXT, reserve_price::TEXT, bid_step::TEXT, current_bid::TEXT,
       bid_count, start_time, end_time, status, COALESCE(winner_id, '')`

func scanAuction(row pgx.Row) (*model.Auction, error) {
	var a model.Auction
	var startingPrice, reservePrice, bidStep, currentBid string

	err := row.Scan(&a.ID, &a.ArtworkID, &a.CreatorID,
		&startingPrice, &reservePrice, &bidStep, &currentBid,
		&a.BidCount, &a.StartTime, &a.EndTime, &a.Status, &a.WinnerID)
	if err != nil {
		return nil, err
	}

	a.StartingPrice, _ = decimal.NewFromString(startingPrice)
	a.ReservePrice, _ = decimal.NewFromString(reservePrice)
	a.BidStep, _ = decimal.NewFromString(bidStep)
	a.CurrentBid, _ = decimal.NewFromString(currentBid)
	return &a, nil
}

func (s *PostgresStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (id, artwork_id, creator_id, starting_price, reserve_price, bid_step,
		                       current_bid, bid_count, start_time, end_time, status, winner_id)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11, NULLIF($12, ''))`,
		a.ID, a.ArtworkID, a.CreatorID,
		a.StartingPrice.String(), a.ReservePrice.String(), a.BidStep.String(),
		a.CurrentBid.String(), a.BidCount, a.StartTime, a.EndTime, a.Status, a.WinnerID,
	)
	return err
}

func (s *PostgresStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions ORDER BY end_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func (s *PostgresStore) ListExpiredActive(ctx context.Context, now time.Time) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = 'active' AND end_time < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func collectAuctions(rows pgx.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}

// AdvanceAuctionPrice is the arbitration compare-and-set. The WHERE clause
// carries the whole rule: only an active auction advances, and only for a
// strictly greater amount at commit time.
func (s *PostgresStore) AdvanceAuctionPrice(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions
		 SET current_bid = $2::NUMERIC, bid_count = bid_count + 1
		 WHERE id = $1 AND status = 'active' AND $2::NUMERIC > current_bid`,
		id, amount.String(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FinalizeAuction(ctx context.Context, id string, status model.AuctionStatus, winnerID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions
		 SET status = $2, winner_id = NULLIF($3, '')
		 WHERE id = $1 AND status = 'active'`,
		id, status, winnerID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) InsertBid(ctx context.Context, b *model.Bid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, created_at, synced, is_leading)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount.String(), b.CreatedAt, b.Synced, b.Leading,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("insert bid %s: %w", b.ID, ErrDuplicateID)
	}
	return err
}

func (s *PostgresStore) GetBid(ctx context.Context, id string) (*model.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, created_at, synced, is_leading
		 FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) HighestBid(ctx context.Context, auctionID string) (*model.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, created_at, synced, is_leading
		 FROM bids WHERE auction_id = $1
		 ORDER BY amount DESC, created_at ASC
		 LIMIT 1`, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, created_at, synced, is_leading
		 FROM bids WHERE auction_id = $1 ORDER BY created_at DESC`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}

func scanBid(row pgx.Row) (*model.Bid, error) {
	var b model.Bid
	var amount string

	if err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.CreatedAt, &b.Synced, &b.Leading); err != nil {
		return nil, err
	}
	b.Amount, _ = decimal.NewFromString(amount)
	return &b, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, balance::TEXT FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	u.Balance, _ = decimal.NewFromString(balance)
	return &u, nil
}

func (s *PostgresStore) AppendNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, message, auction_id, artwork_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, n.AuctionID, n.ArtworkID, n.CreatedAt,
	)
	return err
}

func (s *PostgresStore) RecordSale(ctx context.Context, sale *model.Sale) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sales (id, auction_id, artwork_id, seller_id, buyer_id, price, sold_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		sale.ID, sale.AuctionID, sale.ArtworkID, sale.SellerID, sale.BuyerID,
		sale.Price.String(), sale.SoldAt,
	)
	return err
}
