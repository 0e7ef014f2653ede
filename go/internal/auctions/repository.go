package auctions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yschen25/collectden/go/internal/models"
)

// ErrNotFound is returned when the auction id is unknown.
var ErrNotFound = errors.New("auction not found")

// Repository reads auction records. The engine never writes through it; the
// auction ledger and lifecycle belong to the platform.
type Repository interface {
	GetAuction(ctx context.Context, id string) (models.AuctionParams, error)
	ListRealBids(ctx context.Context, auctionID string) ([]models.RealBid, error)
}

// PGRepository implements Repository on Postgres via pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository creates a Postgres-backed auction reader.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetAuction loads one auction record.
func (r *PGRepository) GetAuction(ctx context.Context, id string) (models.AuctionParams, error) {
	var p models.AuctionParams
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, start_time, end_time, starting_price, min_increment, status
		FROM auctions
		WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.StartTime, &p.EndTime, &p.StartingPrice, &p.MinIncrement, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AuctionParams{}, ErrNotFound
	}
	if err != nil {
		return models.AuctionParams{}, fmt.Errorf("failed to get auction: %w", err)
	}
	return p, nil
}

// ListRealBids returns the auction's genuine bid ledger in placement order.
func (r *PGRepository) ListRealBids(ctx context.Context, auctionID string) ([]models.RealBid, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at, id`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.RealBid
	for rows.Next() {
		var b models.RealBid
		if err := rows.Scan(&b.ID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bids: %w", err)
	}
	return bids, nil
}
