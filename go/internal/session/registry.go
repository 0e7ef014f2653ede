package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/events"
	"github.com/yschen25/collectden/go/internal/gateway"
	"github.com/yschen25/collectden/go/internal/models"
	"github.com/yschen25/collectden/go/internal/synth"
)

// Registry tracks every live viewing session, keyed by (auction id,
// session id). It is the feed consumer's handler: auction-wide frames are
// broadcast once per auction, then the event fans out to each session so
// escalators and countdowns can react independently.
type Registry struct {
	synth *synth.Synthesizer
	names []string
	clock clockwork.Clock
	out   Broadcaster

	mu       sync.Mutex
	sessions map[string]map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(synthesizer *synth.Synthesizer, names []string, clock clockwork.Clock, out Broadcaster) *Registry {
	return &Registry{
		synth:    synthesizer,
		names:    names,
		clock:    clock,
		out:      out,
		sessions: make(map[string]map[string]*Session),
	}
}

// Attach creates a session for the viewer and starts its tick loop. Attaching
// an already-known (auction, session) pair returns the existing session, so a
// websocket reconnect does not spawn a second escalator.
func (r *Registry) Attach(ctx context.Context, params models.AuctionParams, sessionID string) *Session {
	r.mu.Lock()
	if existing, ok := r.sessions[params.ID][sessionID]; ok {
		r.mu.Unlock()
		return existing
	}

	s := New(params, sessionID, r.synth, r.names, r.clock, r.out)
	if r.sessions[params.ID] == nil {
		r.sessions[params.ID] = make(map[string]*Session)
	}
	r.sessions[params.ID][sessionID] = s
	total := len(r.sessions[params.ID])
	r.mu.Unlock()

	go s.Run(ctx)

	log.Info().
		Str("auction_id", params.ID).
		Str("session_id", sessionID).
		Int("auction_sessions", total).
		Msg("session attached")
	return s
}

// Get returns the session for the pair, or nil.
func (r *Registry) Get(auctionID, sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[auctionID][sessionID]
}

// Detach closes and removes one session. A no-op for unknown pairs, so the
// gateway can call it on every socket close.
func (r *Registry) Detach(auctionID, sessionID string) {
	r.mu.Lock()
	s := r.sessions[auctionID][sessionID]
	if s != nil {
		delete(r.sessions[auctionID], sessionID)
		if len(r.sessions[auctionID]) == 0 {
			delete(r.sessions, auctionID)
		}
	}
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// HandleFeedEvent implements the feed handler. Broadcast frames go out once
// per auction; the event then reaches every session of that auction.
func (r *Registry) HandleFeedEvent(ctx context.Context, event events.DomainEvent) error {
	r.broadcastShared(event)

	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions[event.AuctionID]))
	for _, s := range r.sessions[event.AuctionID] {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		if err := s.HandleFeedEvent(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("auction_id", event.AuctionID).
				Str("event_type", event.EventType).
				Msg("session failed to apply feed event")
		}
	}
	return nil
}

// broadcastShared pushes the frames whose content is identical for every
// viewer of the auction.
func (r *Registry) broadcastShared(event events.DomainEvent) {
	var frameType gateway.EventType
	switch event.EventType {
	case events.TypeBidPlaced:
		frameType = gateway.EventTypeRealBid
	case events.TypeAuctionExtended:
		frameType = gateway.EventTypeAuctionExtended
	default:
		return
	}

	r.out.BroadcastToAuction(event.AuctionID, &gateway.ViewerEvent{
		ID:        uuid.New().String(),
		AuctionID: event.AuctionID,
		Type:      frameType,
		Timestamp: r.clock.Now(),
		Data:      json.RawMessage(event.Payload),
	})
}

// HandleClientMessage routes a raw websocket frame from a viewer to their
// session. Malformed frames, unknown types and unknown sessions are dropped.
func (r *Registry) HandleClientMessage(auctionID, sessionID string, raw []byte) {
	s := r.Get(auctionID, sessionID)
	if s == nil {
		log.Warn().
			Str("auction_id", auctionID).
			Str("session_id", sessionID).
			Msg("client message for unknown session")
		return
	}

	var msg gateway.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("malformed client message")
		return
	}

	switch msg.Type {
	case gateway.ClientMessageViewerBid:
		if msg.Amount > 0 {
			s.RecordViewerBid(msg.Amount)
		}
	default:
		log.Debug().
			Str("type", msg.Type).
			Str("session_id", sessionID).
			Msg("ignoring client message type")
	}
}

// Count reports how many sessions are live.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.sessions {
		n += len(m)
	}
	return n
}

// Close tears down every session. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	var all []*Session
	for _, m := range r.sessions {
		for _, s := range m {
			all = append(all, s)
		}
	}
	r.sessions = make(map[string]map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
