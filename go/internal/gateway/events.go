package gateway

import (
	"encoding/json"
	"time"

	"github.com/yschen25/collectden/go/internal/countdown"
	"github.com/yschen25/collectden/go/internal/models"
	"github.com/yschen25/collectden/go/internal/presence"
)

// ViewerEvent is the frame pushed to auction page clients.
type ViewerEvent struct {
	ID        string          `json:"id"`         // Event UUID
	AuctionID string          `json:"auction_id"` // Auction the frame belongs to
	Type      EventType       `json:"type"`       // Frame type
	Timestamp time.Time       `json:"timestamp"`  // Frame creation time
	Data      json.RawMessage `json:"data"`       // Frame-specific payload
}

// EventType names the frames the gateway can push.
type EventType string

const (
	EventTypeStateSync       EventType = "StateSync"
	EventTypeCountdownTick   EventType = "CountdownTick"
	EventTypeSyntheticBid    EventType = "SyntheticBid"
	EventTypeRealBid         EventType = "RealBid"
	EventTypePresenceUpdate  EventType = "PresenceUpdate"
	EventTypeOutbid          EventType = "Outbid"
	EventTypeAuctionExtended EventType = "AuctionExtended"
	EventTypeAuctionEnded    EventType = "AuctionEnded"
)

// CountdownTickPayload carries one countdown recompute.
type CountdownTickPayload struct {
	State   countdown.State `json:"state"`
	Display string          `json:"display"`
}

// StateSyncPayload is the first frame after connect, so a reconnecting client
// does not start from a blank page.
type StateSyncPayload struct {
	CurrentPrice  int64                 `json:"current_price"`
	BidCount      int                   `json:"bid_count"`
	SyntheticBids []models.SyntheticBid `json:"synthetic_bids"`
	Countdown     CountdownTickPayload  `json:"countdown"`
	Presence      presence.Estimate     `json:"presence"`
}

// OutbidPayload tells a viewer their own bid was superseded.
type OutbidPayload struct {
	YourAmount int64 `json:"your_amount"`
	NewAmount  int64 `json:"new_amount"`
}

// ClientMessage is the frame a viewer sends upstream over the websocket.
type ClientMessage struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount,omitempty"`
}

// ClientMessageViewerBid reports the viewer's own highest bid so the engine
// can raise outbid notices when it is superseded.
const ClientMessageViewerBid = "ViewerBid"
