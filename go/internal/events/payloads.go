package events

import (
	"encoding/json"
	"time"
)

// DomainEvent is the envelope the auction platform publishes on the feed.
type DomainEvent struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Event types carried on the feed.
const (
	TypeBidPlaced       = "BidPlaced"
	TypeAuctionExtended = "AuctionExtended"
	TypeAuctionCreated  = "AuctionCreated"
	TypeAuctionClosed   = "AuctionClosed"
)

// BidPlacedPayload announces one genuine bid appended to the ledger.
type BidPlacedPayload struct {
	BidID     string    `json:"bid_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// AuctionExtendedPayload announces that the auction authority raised the end
// time (sniping extension). Observers converge on NewEndTime immediately.
type AuctionExtendedPayload struct {
	AuctionID  string    `json:"auction_id"`
	NewEndTime time.Time `json:"new_end_time"`
	ExtendedAt time.Time `json:"extended_at"`
}

// AuctionCreatedPayload announces a new auction opened by the rotation
// scheduler.
type AuctionCreatedPayload struct {
	AuctionID     string    `json:"auction_id"`
	Title         string    `json:"title"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	StartingPrice int64     `json:"starting_price"`
	MinIncrement  int64     `json:"min_increment"`
}

// AuctionClosedPayload announces an auction reaching its end.
type AuctionClosedPayload struct {
	AuctionID string    `json:"auction_id"`
	ClosedAt  time.Time `json:"closed_at"`
}
