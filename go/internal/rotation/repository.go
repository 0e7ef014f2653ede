package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository on Postgres via pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository creates a Postgres-backed rotation repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CloseExpiredAuctions marks every active auction whose end time has passed
// as ended, returning how many rows changed.
func (r *PGRepository) CloseExpiredAuctions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE auctions
		SET status = 'ENDED', updated_at = $1
		WHERE status = 'ACTIVE' AND end_time <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired auctions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListEligibleItems returns pool items that have not been auctioned since
// usedSince, ordered by id so the date-hash pick is stable across runs.
func (r *PGRepository) ListEligibleItems(ctx context.Context, usedSince time.Time) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.title
		FROM auction_items i
		WHERE NOT EXISTS (
			SELECT 1 FROM auctions a
			WHERE a.item_id = i.id AND a.created_at > $1
		)
		ORDER BY i.id`,
		usedSince,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Title); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

// CreateAuction inserts the new auction record and returns its id.
func (r *PGRepository) CreateAuction(ctx context.Context, arg CreateAuctionParams) (string, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auctions
			(id, item_id, title, start_time, end_time, starting_price, min_increment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'ACTIVE', $4, $4)`,
		id, arg.ItemID, arg.Title, arg.StartTime, arg.EndTime, arg.StartingPrice, arg.MinIncrement,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create auction: %w", err)
	}
	return id.String(), nil
}
