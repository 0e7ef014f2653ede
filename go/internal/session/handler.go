package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/auctions"
	"github.com/yschen25/collectden/go/internal/gateway"
	"github.com/yschen25/collectden/go/internal/models"
)

// WSHandler upgrades auction page viewers onto the engine. One socket maps to
// one session; the first frame on every socket is a full state sync.
type WSHandler struct {
	ctx      context.Context
	registry *Registry
	repo     auctions.Repository
	manager  *gateway.ConnectionManager
}

// NewWSHandler creates the viewer websocket handler. ctx bounds the lifetime
// of every session it spawns.
func NewWSHandler(ctx context.Context, registry *Registry, repo auctions.Repository, manager *gateway.ConnectionManager) *WSHandler {
	return &WSHandler{ctx: ctx, registry: registry, repo: repo, manager: manager}
}

// ServeHTTP handles GET /ws/auction?auction_id=...&session_id=...
// A missing session id mints a fresh one, so the same browser can reconnect
// with its old id and keep its escalator state.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auctionID := r.URL.Query().Get("auction_id")
	if auctionID == "" {
		http.Error(w, "auction_id is required", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	params, err := h.repo.GetAuction(r.Context(), auctionID)
	if errors.Is(err, auctions.ErrNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID).Msg("failed to load auction")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	fresh := h.registry.Get(auctionID, sessionID) == nil
	s := h.registry.Attach(h.ctx, params, sessionID)
	if fresh {
		h.seedSession(r.Context(), s, params)
	}

	if err := h.manager.UpgradeConnection(w, r, sessionID, auctionID); err != nil {
		// UpgradeConnection already wrote the handshake error
		return
	}

	h.manager.SendToSession(auctionID, sessionID, s.StateSync())
}

func (h *WSHandler) seedSession(ctx context.Context, s *Session, params models.AuctionParams) {
	bids, err := h.repo.ListRealBids(ctx, params.ID)
	if err != nil {
		log.Error().Err(err).Str("auction_id", params.ID).Msg("failed to seed real bid ledger")
		return
	}
	s.SeedLedger(bids)
}
