package escalator

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/yschen25/collectden/go/internal/models"
)

var testNames = []string{"王*明", "林*慧", "陳*宏", "張*婷", "李*傑"}

// counterRecorder collects counter-bids emitted by the escalator.
type counterRecorder struct {
	mu   sync.Mutex
	bids []models.SyntheticBid
}

func (r *counterRecorder) sink(b models.SyntheticBid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids = append(r.bids, b)
}

func (r *counterRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bids)
}

func (r *counterRecorder) last() models.SyntheticBid {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bids[len(r.bids)-1]
}

func newTestEscalator(clock clockwork.Clock, rec *counterRecorder) *Escalator {
	params := models.AuctionParams{
		ID:            "auc-esc",
		StartTime:     clock.Now(),
		EndTime:       clock.Now().Add(time.Hour),
		StartingPrice: 100,
		MinIncrement:  100,
	}
	return New(params, uuid.New(), testNames, clock, rec.sink)
}

func realBids(clock clockwork.Clock, amounts ...int64) []models.RealBid {
	bids := make([]models.RealBid, len(amounts))
	for i, a := range amounts {
		bids[i] = models.RealBid{
			ID:        uuid.New().String(),
			Amount:    a,
			CreatedAt: clock.Now(),
		}
	}
	return bids
}

// waitFor polls cond for up to two seconds of wall time.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestEscalator_CountersSingleRealBid(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	e.ObserveLedger(realBids(clock, 500))

	clock.BlockUntil(1)
	clock.Advance(8 * time.Second) // counter delay is always < 8s
	waitFor(t, func() bool { return rec.count() == 1 })

	bid := rec.last()
	if bid.Amount <= 500 {
		t.Errorf("counter amount %d not above real bid", bid.Amount)
	}
	// Increment is (500-100)*[0.8,1.2], well above the 100 floor.
	if bid.Amount < 500+320 || bid.Amount > 500+480 {
		t.Errorf("counter amount %d outside jittered increment range", bid.Amount)
	}
	if !bid.IsSimulated {
		t.Error("counter-bid must be flagged simulated")
	}
	if bid.BidderLabel == "" {
		t.Error("counter-bid missing bidder label")
	}
	if e.ConsecutiveRealBids() != 0 {
		t.Errorf("expected consecutive counter reset after success, got %d", e.ConsecutiveRealBids())
	}
}

func TestEscalator_DelayWithinBounds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	e.ObserveLedger(realBids(clock, 500))
	clock.BlockUntil(1)

	// Below the 3s minimum nothing may fire.
	clock.Advance(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("counter fired before the 3s minimum delay")
	}

	// By 8s total it must have fired.
	clock.Advance(6 * time.Second)
	waitFor(t, func() bool { return rec.count() == 1 })
}

func TestEscalator_YieldsAfterFiveConsecutiveRealBids(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	// Five bids in rapid succession, no clock advance between them, so no
	// counter timer ever completes before the yield.
	ledger := realBids(clock, 200, 300, 400, 500, 600)
	for n := 1; n <= 5; n++ {
		e.ObserveLedger(ledger[:n])
	}

	if !e.Yielded() {
		t.Fatal("expected yielded state after 5 consecutive real bids")
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 counter-bids before yield, got %d", rec.count())
	}

	// Yield is sticky: nothing fires later and new bids are ignored.
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("latent timer fired after yield: %d counters", rec.count())
	}

	e.ObserveLedger(realBids(clock, 200, 300, 400, 500, 600, 700))
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("yielded escalator scheduled a new counter")
	}
}

func TestEscalator_DuplicateDeliveryIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	ledger := realBids(clock, 200, 300, 400)
	e.ObserveLedger(ledger)
	e.ObserveLedger(ledger) // duplicate push notification
	e.ObserveLedger(ledger[:2])

	if got := e.ConsecutiveRealBids(); got != 3 {
		t.Errorf("expected 3 consecutive bids after duplicate delivery, got %d", got)
	}
	if e.Yielded() {
		t.Error("duplicates must not count toward yield")
	}
}

func TestEscalator_NewBidReplacesPendingCounter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	ledger := realBids(clock, 500)
	e.ObserveLedger(ledger)
	clock.BlockUntil(1)

	// Before the first timer can fire, a second real bid arrives.
	clock.Advance(2 * time.Second)
	ledger = append(ledger, models.RealBid{ID: "r2", Amount: 900, CreatedAt: clock.Now()})
	e.ObserveLedger(ledger)

	clock.Advance(8 * time.Second)
	waitFor(t, func() bool { return rec.count() == 1 })

	// Only the latest bid gets countered.
	if bid := rec.last(); bid.Amount <= 900 {
		t.Errorf("counter %d does not top the latest real bid 900", bid.Amount)
	}
	time.Sleep(10 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("replaced timer also fired: %d counters", rec.count())
	}
}

func TestEscalator_SuccessfulCounterOpensFreshWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	ledger := realBids(clock, 200, 300, 400, 500)
	for n := 1; n <= 4; n++ {
		e.ObserveLedger(ledger[:n])
	}
	clock.BlockUntil(1)
	clock.Advance(8 * time.Second)
	waitFor(t, func() bool { return rec.count() == 1 })

	// The counter reset the window, so four more bids still do not yield...
	for n := 5; n <= 8; n++ {
		ledger = append(ledger, models.RealBid{ID: uuid.New().String(), Amount: int64(n * 100), CreatedAt: clock.Now()})
		e.ObserveLedger(ledger)
	}
	if e.Yielded() {
		t.Fatal("yielded after only 4 bids in the fresh window")
	}

	// ...but a fifth does.
	ledger = append(ledger, models.RealBid{ID: "r9", Amount: 900, CreatedAt: clock.Now()})
	e.ObserveLedger(ledger)
	if !e.Yielded() {
		t.Error("expected yield at 5 consecutive bids in the fresh window")
	}
}

func TestEscalator_CloseCancelsPendingCounter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &counterRecorder{}
	e := newTestEscalator(clock, rec)

	e.ObserveLedger(realBids(clock, 500))
	clock.BlockUntil(1)
	e.Close()

	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("counter fired after Close: %d", rec.count())
	}

	// Close freezes the state entirely; later ledger pushes are ignored.
	e.ObserveLedger(realBids(clock, 500, 600))
	if got := e.ConsecutiveRealBids(); got != 1 {
		t.Errorf("closed escalator still counted bids: %d", got)
	}
	if rec.count() != 0 {
		t.Error("closed escalator emitted a counter")
	}
}
