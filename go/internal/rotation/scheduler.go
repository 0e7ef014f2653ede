package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/seedrand"
)

// reuseWindow is how long an item stays out of the candidate pool after it
// has been auctioned.
const reuseWindow = 30 * 24 * time.Hour

// Item is a candidate collectible from the rotating pool.
type Item struct {
	ID    uuid.UUID
	Title string
}

// CreateAuctionParams carries everything the repository needs to open the
// day's auction.
type CreateAuctionParams struct {
	ItemID        uuid.UUID
	Title         string
	StartTime     time.Time
	EndTime       time.Time
	StartingPrice int64
	MinIncrement  int64
}

// Repository defines what the scheduler needs from the auction store.
// ListEligibleItems must return a stable order (the SQL implementation orders
// by item id); the deterministic date pick depends on it.
type Repository interface {
	CloseExpiredAuctions(ctx context.Context, now time.Time) (int64, error)
	ListEligibleItems(ctx context.Context, usedSince time.Time) ([]Item, error)
	CreateAuction(ctx context.Context, arg CreateAuctionParams) (string, error)
}

// Defaults are the fixed parameters every rotation-created auction opens with.
type Defaults struct {
	StartingPrice int64
	MinIncrement  int64
	Duration      time.Duration
}

// Result reports what one scheduler run did.
type Result struct {
	Closed    int64  `json:"closed"`
	Created   bool   `json:"created"`
	AuctionID string `json:"auction_id,omitempty"`
}

// Scheduler closes expired auctions and opens the day's auction from the
// rotating item pool. The pick hashes the current date, so re-running on the
// same day selects the same item, so the periodic trigger is idempotent as long
// as the candidate pool has not changed underneath it.
type Scheduler struct {
	repo     Repository
	clock    clockwork.Clock
	defaults Defaults
}

// NewScheduler creates a rotation scheduler.
func NewScheduler(repo Repository, clock clockwork.Clock, defaults Defaults) *Scheduler {
	return &Scheduler{repo: repo, clock: clock, defaults: defaults}
}

// Run executes one rotation pass. An empty candidate pool is a success with
// Created=false, not an error.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	now := s.clock.Now()

	closed, err := s.repo.CloseExpiredAuctions(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to close expired auctions: %w", err)
	}
	if closed > 0 {
		log.Info().Int64("closed", closed).Msg("closed expired auctions")
	}

	items, err := s.repo.ListEligibleItems(ctx, now.Add(-reuseWindow))
	if err != nil {
		return Result{}, fmt.Errorf("failed to list eligible items: %w", err)
	}
	if len(items) == 0 {
		log.Info().Msg("no eligible rotation candidates; no auction created")
		return Result{Closed: closed}, nil
	}

	idx := int(seedrand.HashCode(now.Format("2006-01-02")))
	if idx < 0 {
		idx = -idx
	}
	pick := items[idx%len(items)]

	auctionID, err := s.repo.CreateAuction(ctx, CreateAuctionParams{
		ItemID:        pick.ID,
		Title:         pick.Title,
		StartTime:     now,
		EndTime:       now.Add(s.defaults.Duration),
		StartingPrice: s.defaults.StartingPrice,
		MinIncrement:  s.defaults.MinIncrement,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to create auction: %w", err)
	}

	log.Info().
		Str("auction_id", auctionID).
		Str("item_id", pick.ID.String()).
		Str("title", pick.Title).
		Int64("closed", closed).
		Msg("rotation created auction")

	return Result{Closed: closed, Created: true, AuctionID: auctionID}, nil
}
