package models

import (
	"time"
)

// AuctionStatus represents the lifecycle state of an auction record.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusEnded     AuctionStatus = "ENDED"
)

// AuctionParams is the read-only slice of the external auction record this
// engine consumes. EndTime is the only field that moves: the external auction
// authority raises it when a late bid triggers a sniping extension, and the
// countdown machine detects the change.
type AuctionParams struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	StartingPrice int64         `json:"starting_price"`
	MinIncrement  int64         `json:"min_increment"`
	Status        AuctionStatus `json:"status"`
}

// RealBid is one entry of the authoritative, append-only bid ledger.
// Read-only input to this engine.
type RealBid struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// SyntheticBid is a fabricated bid used only for display. It is regenerated on
// demand from the deterministic replay (or minted by the escalator) and never
// written to the ledger.
type SyntheticBid struct {
	ID          string    `json:"id"`
	BidderLabel string    `json:"bidder_label"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
	IsSimulated bool      `json:"is_simulated"`
}
