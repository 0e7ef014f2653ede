package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yschen25/collectden/go/internal/gateway"
	"github.com/yschen25/collectden/go/internal/synth"
)

func newTestRegistry(clock clockwork.Clock, rec *frameRecorder) *Registry {
	cfg := synth.DefaultConfig()
	return NewRegistry(synth.NewSynthesizer(cfg), cfg.BidderNames, clock, rec)
}

func TestRegistry_AttachIsIdempotentPerPair(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)
	defer r.Close()

	ctx := context.Background()
	params := activeParams(clock)
	first := r.Attach(ctx, params, "sess-a")
	second := r.Attach(ctx, params, "sess-a")
	if first != second {
		t.Error("reattaching the same pair must reuse the session")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 session, got %d", r.Count())
	}

	r.Attach(ctx, params, "sess-b")
	if r.Count() != 2 {
		t.Errorf("expected 2 sessions, got %d", r.Count())
	}
}

func TestRegistry_DetachRemovesAndCloses(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)
	defer r.Close()

	params := activeParams(clock)
	r.Attach(context.Background(), params, "sess-a")
	r.Detach(params.ID, "sess-a")

	if r.Get(params.ID, "sess-a") != nil {
		t.Error("detached session still registered")
	}
	if r.Count() != 0 {
		t.Errorf("expected 0 sessions, got %d", r.Count())
	}

	// Unknown pairs are a no-op
	r.Detach(params.ID, "sess-missing")
	r.Detach("auc-missing", "sess-a")
}

func TestRegistry_RealBidBroadcastOncePerAuction(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)
	defer r.Close()

	ctx := context.Background()
	params := activeParams(clock)
	a := r.Attach(ctx, params, "sess-a")
	b := r.Attach(ctx, params, "sess-b")

	baseA, baseB := a.EstimatedBidCount(), b.EstimatedBidCount()
	if err := r.HandleFeedEvent(ctx, bidEvent(params.ID, "bid-1", 9000, clock.Now())); err != nil {
		t.Fatal(err)
	}

	if got := rec.countBroadcast(gateway.EventTypeRealBid); got != 1 {
		t.Errorf("expected one auction-wide real bid frame, got %d", got)
	}
	if a.EstimatedBidCount() != baseA+1 || b.EstimatedBidCount() != baseB+1 {
		t.Error("both sessions should have absorbed the real bid")
	}
}

func TestRegistry_EventsForOtherAuctionsIgnored(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)
	defer r.Close()

	ctx := context.Background()
	params := activeParams(clock)
	a := r.Attach(ctx, params, "sess-a")

	base := a.EstimatedBidCount()
	if err := r.HandleFeedEvent(ctx, bidEvent("auc-other", "bid-1", 9000, clock.Now())); err != nil {
		t.Fatal(err)
	}
	if a.EstimatedBidCount() != base {
		t.Error("a session must not absorb another auction's bids")
	}
}

func TestRegistry_ViewerBidMessageEnablesOutbidNotice(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)
	defer r.Close()

	ctx := context.Background()
	params := activeParams(clock)
	r.Attach(ctx, params, "sess-a")

	r.HandleClientMessage(params.ID, "sess-a", []byte(`{"type":"ViewerBid","amount":4000}`))
	if err := r.HandleFeedEvent(ctx, bidEvent(params.ID, "bid-1", 4500, clock.Now())); err != nil {
		t.Fatal(err)
	}

	if got := rec.countAddressed(gateway.EventTypeOutbid); got != 1 {
		t.Errorf("expected one outbid notice after the viewer's bid was superseded, got %d", got)
	}
}

func TestRegistry_BadClientMessagesDropped(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)
	defer r.Close()

	ctx := context.Background()
	params := activeParams(clock)
	r.Attach(ctx, params, "sess-a")

	r.HandleClientMessage(params.ID, "sess-a", []byte("not json"))
	r.HandleClientMessage(params.ID, "sess-a", []byte(`{"type":"Unknown","amount":4000}`))
	r.HandleClientMessage(params.ID, "sess-a", []byte(`{"type":"ViewerBid","amount":-1}`))
	r.HandleClientMessage(params.ID, "sess-missing", []byte(`{"type":"ViewerBid","amount":4000}`))

	if err := r.HandleFeedEvent(ctx, bidEvent(params.ID, "bid-1", 4500, clock.Now())); err != nil {
		t.Fatal(err)
	}
	if got := rec.countAddressed(gateway.EventTypeOutbid); got != 0 {
		t.Errorf("no valid viewer bid was recorded, expected 0 outbid notices, got %d", got)
	}
}

func TestRegistry_CloseTearsDownEverything(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &frameRecorder{}
	r := newTestRegistry(clock, rec)

	ctx := context.Background()
	params := activeParams(clock)
	r.Attach(ctx, params, "sess-a")
	r.Attach(ctx, params, "sess-b")

	r.Close()
	if r.Count() != 0 {
		t.Errorf("expected 0 sessions after close, got %d", r.Count())
	}
}
