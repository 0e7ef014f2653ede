package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/countdown"
	"github.com/yschen25/collectden/go/internal/escalator"
	"github.com/yschen25/collectden/go/internal/events"
	"github.com/yschen25/collectden/go/internal/gateway"
	"github.com/yschen25/collectden/go/internal/models"
	"github.com/yschen25/collectden/go/internal/presence"
	"github.com/yschen25/collectden/go/internal/synth"
)

// activityWindow bounds how far back a bid still counts as "recent" for the
// presence estimator.
const activityWindow = time.Minute

// Broadcaster pushes frames out to viewers. Satisfied by the gateway's
// connection manager.
type Broadcaster interface {
	BroadcastToAuction(auctionID string, event *gateway.ViewerEvent)
	SendToSession(auctionID, sessionID string, event *gateway.ViewerEvent)
}

// Session owns everything one viewer perceives about one auction: the
// deterministic bid replay, the per-session counter-bid escalator, the
// countdown machine and the presence estimate. Sessions never touch the real
// ledger; they only read it and fabricate around it.
type Session struct {
	auctionID string
	sessionID string

	synth *synth.Synthesizer
	esc   *escalator.Escalator
	clock clockwork.Clock
	out   Broadcaster

	machine *countdown.Machine

	mu             sync.Mutex
	params         models.AuctionParams
	realBids       []models.RealBid
	seenBidIDs     map[string]bool
	counterBids    []models.SyntheticBid
	sentSynthetic  int
	activity       []time.Time
	viewerBid      int64
	lastOutbidSeen int64
	presence       *presence.Estimator
	wasExpired     bool
	closed         bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a session for one (auction, viewer) pair. Call Run to start its
// tick loop.
func New(params models.AuctionParams, sessionID string, synthesizer *synth.Synthesizer, names []string, clock clockwork.Clock, out Broadcaster) *Session {
	s := &Session{
		auctionID:  params.ID,
		sessionID:  sessionID,
		synth:      synthesizer,
		clock:      clock,
		out:        out,
		params:     params,
		seenBidIDs: make(map[string]bool),
		machine:    countdown.NewMachine(clock, params.EndTime),
		presence:   presence.NewEstimator(params.ID+":"+sessionID, clock),
		done:       make(chan struct{}),
	}
	s.esc = escalator.New(params, uuid.New(), names, clock, s.acceptCounterBid)
	if params.Status == models.AuctionStatusEnded {
		s.machine.MarkEnded()
		s.wasExpired = true
	}
	return s
}

// Run drives the session's once-per-second tick until ctx is cancelled or
// Close is called. Blocks; callers run it in a goroutine.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	s.machine.Run(ctx, s.onTick)
}

// onTick pushes the countdown frame, reveals any replay bids whose timestamps
// have passed, and refreshes the presence estimate.
func (s *Session) onTick(state countdown.State, display string) {
	now := s.clock.Now()

	s.mu.Lock()
	bids := s.synth.Replay(s.params, now)
	var fresh []models.SyntheticBid
	if len(bids) > s.sentSynthetic {
		fresh = bids[s.sentSynthetic:]
		s.sentSynthetic = len(bids)
		for range fresh {
			s.activity = append(s.activity, now)
		}
	}
	s.pruneActivityLocked(now)
	recent := len(s.activity)
	justEnded := state.Expired && !s.wasExpired
	if justEnded {
		s.wasExpired = true
	}
	s.mu.Unlock()

	s.send(gateway.EventTypeCountdownTick, gateway.CountdownTickPayload{State: state, Display: display})
	for i := range fresh {
		s.send(gateway.EventTypeSyntheticBid, fresh[i])
	}
	s.send(gateway.EventTypePresenceUpdate, s.presence.Estimate(state.RemainingMs, recent))

	if justEnded {
		s.esc.Close()
		s.send(gateway.EventTypeAuctionEnded, events.AuctionClosedPayload{AuctionID: s.auctionID, ClosedAt: now})
	}
}

// HandleFeedEvent applies one platform event to this session. Safe to call
// with duplicated deliveries; bid ids and last-seen counts absorb replays.
func (s *Session) HandleFeedEvent(ctx context.Context, event events.DomainEvent) error {
	switch event.EventType {
	case events.TypeBidPlaced:
		var payload events.BidPlacedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal BidPlaced payload: %w", err)
		}
		s.applyRealBid(payload)
	case events.TypeAuctionExtended:
		var payload events.AuctionExtendedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal AuctionExtended payload: %w", err)
		}
		s.applyExtension(payload)
	case events.TypeAuctionClosed:
		s.applyClose()
	default:
		log.Debug().
			Str("event_type", event.EventType).
			Str("auction_id", event.AuctionID).
			Msg("ignoring feed event type")
	}
	return nil
}

func (s *Session) applyRealBid(payload events.BidPlacedPayload) {
	s.mu.Lock()
	if s.seenBidIDs[payload.BidID] {
		s.mu.Unlock()
		return
	}
	s.seenBidIDs[payload.BidID] = true
	bid := models.RealBid{ID: payload.BidID, Amount: payload.Amount, CreatedAt: payload.CreatedAt}
	s.realBids = append(s.realBids, bid)
	ledger := make([]models.RealBid, len(s.realBids))
	copy(ledger, s.realBids)
	now := s.clock.Now()
	s.activity = append(s.activity, now)
	s.pruneActivityLocked(now)
	outbid := s.viewerBid > 0 && payload.Amount > s.viewerBid && payload.Amount > s.lastOutbidSeen
	if outbid {
		s.lastOutbidSeen = payload.Amount
	}
	viewerBid := s.viewerBid
	s.mu.Unlock()

	if outbid {
		s.send(gateway.EventTypeOutbid, gateway.OutbidPayload{YourAmount: viewerBid, NewAmount: payload.Amount})
	}
	s.esc.ObserveLedger(ledger)
}

func (s *Session) applyExtension(payload events.AuctionExtendedPayload) {
	if !s.machine.SetEndTime(payload.NewEndTime) {
		return
	}
	s.mu.Lock()
	s.params.EndTime = payload.NewEndTime
	s.mu.Unlock()
}

func (s *Session) applyClose() {
	s.machine.MarkEnded()
	s.esc.Close()
	s.mu.Lock()
	already := s.wasExpired
	s.wasExpired = true
	s.mu.Unlock()
	if !already {
		s.send(gateway.EventTypeAuctionEnded, events.AuctionClosedPayload{
			AuctionID: s.auctionID,
			ClosedAt:  s.clock.Now(),
		})
	}
}

// acceptCounterBid is the escalator's sink. Counter-bids exist only for this
// session, so the frame is addressed, not broadcast.
func (s *Session) acceptCounterBid(bid models.SyntheticBid) {
	s.mu.Lock()
	s.counterBids = append(s.counterBids, bid)
	now := s.clock.Now()
	s.activity = append(s.activity, now)
	s.pruneActivityLocked(now)
	outbid := s.viewerBid > 0 && bid.Amount > s.viewerBid && bid.Amount > s.lastOutbidSeen
	if outbid {
		s.lastOutbidSeen = bid.Amount
	}
	viewerBid := s.viewerBid
	s.mu.Unlock()

	s.send(gateway.EventTypeSyntheticBid, bid)
	if outbid {
		s.send(gateway.EventTypeOutbid, gateway.OutbidPayload{YourAmount: viewerBid, NewAmount: bid.Amount})
	}
}

// SeedLedger loads the real bids that existed before this session attached.
// Seeded bids produce no frames; the escalator still observes them so its
// consecutive count reflects the ledger as first seen.
func (s *Session) SeedLedger(bids []models.RealBid) {
	s.mu.Lock()
	for _, b := range bids {
		if s.seenBidIDs[b.ID] {
			continue
		}
		s.seenBidIDs[b.ID] = true
		s.realBids = append(s.realBids, b)
	}
	ledger := make([]models.RealBid, len(s.realBids))
	copy(ledger, s.realBids)
	s.mu.Unlock()

	s.esc.ObserveLedger(ledger)
}

// RecordViewerBid remembers the viewer's own highest bid so later real bids
// can trigger an outbid notice. Lower or equal amounts are ignored.
func (s *Session) RecordViewerBid(amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount > s.viewerBid {
		s.viewerBid = amount
	}
}

// StateSync builds the snapshot frame a client receives right after its
// websocket opens, so reconnects do not start from a blank page.
func (s *Session) StateSync() *gateway.ViewerEvent {
	now := s.clock.Now()
	state := s.machine.Snapshot()

	s.mu.Lock()
	bids := s.synth.Replay(s.params, now)
	if len(bids) > s.sentSynthetic {
		s.sentSynthetic = len(bids)
	}
	visible := make([]models.SyntheticBid, 0, len(bids)+len(s.counterBids))
	visible = append(visible, bids...)
	visible = append(visible, s.counterBids...)
	price := s.currentPriceLocked(bids)
	count := len(s.realBids) + len(bids) + len(s.counterBids)
	s.pruneActivityLocked(now)
	recent := len(s.activity)
	s.mu.Unlock()

	payload := gateway.StateSyncPayload{
		CurrentPrice:  price,
		BidCount:      count,
		SyntheticBids: visible,
		Countdown: gateway.CountdownTickPayload{
			State:   state,
			Display: countdown.FormatRemaining(state.RemainingMs),
		},
		Presence: s.presence.Estimate(state.RemainingMs, recent),
	}
	return s.frame(gateway.EventTypeStateSync, payload)
}

// EstimatedBidCount is the display bid total: real ledger entries plus every
// fabricated bid this session has produced.
func (s *Session) EstimatedBidCount() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.realBids) + s.synth.CountAsOf(s.params, now) + len(s.counterBids)
}

// CurrentPrice is the highest amount this session displays, across the replay,
// the real ledger and its own counter-bids.
func (s *Session) CurrentPrice() int64 {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPriceLocked(s.synth.Replay(s.params, now))
}

func (s *Session) currentPriceLocked(replayed []models.SyntheticBid) int64 {
	price := s.params.StartingPrice
	if n := len(replayed); n > 0 && replayed[n-1].Amount > price {
		price = replayed[n-1].Amount
	}
	for _, b := range s.realBids {
		if b.Amount > price {
			price = b.Amount
		}
	}
	for _, b := range s.counterBids {
		if b.Amount > price {
			price = b.Amount
		}
	}
	return price
}

func (s *Session) pruneActivityLocked(now time.Time) {
	cutoff := now.Add(-activityWindow)
	i := 0
	for i < len(s.activity) && s.activity[i].Before(cutoff) {
		i++
	}
	s.activity = s.activity[i:]
}

// Close stops the tick loop and cancels any pending counter-bid. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.esc.Close()
	if cancel != nil {
		cancel()
		<-s.done
	}
	log.Debug().
		Str("auction_id", s.auctionID).
		Str("session_id", s.sessionID).
		Msg("session closed")
}

// send addresses a frame to this session's own viewer. Auction-wide frames
// are the registry's job; a session never broadcasts.
func (s *Session) send(eventType gateway.EventType, payload any) {
	event := s.frame(eventType, payload)
	if event == nil {
		return
	}
	s.out.SendToSession(s.auctionID, s.sessionID, event)
}

func (s *Session) frame(eventType gateway.EventType, payload any) *gateway.ViewerEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal frame payload")
		return nil
	}
	return &gateway.ViewerEvent{
		ID:        uuid.New().String(),
		AuctionID: s.auctionID,
		Type:      eventType,
		Timestamp: s.clock.Now(),
		Data:      data,
	}
}
