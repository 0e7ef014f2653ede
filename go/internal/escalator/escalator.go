package escalator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/models"
	"github.com/yschen25/collectden/go/internal/seedrand"
)

const (
	// yieldThreshold is how many consecutive real bids, with no successful
	// counter in between, make the escalator give up for the session.
	yieldThreshold = 5

	counterDelayMinSec = 3.0
	counterDelayMaxSec = 8.0

	jitterLo = 0.8
	jitterHi = 1.2
)

// Sink receives the counter-bids the escalator decides to place.
type Sink func(models.SyntheticBid)

// Escalator watches one auction's real-bid ledger on behalf of one viewing
// session and answers genuine bids with delayed synthetic counter-bids, until
// a persistent real bidder makes it yield. It is a perception device: nothing
// it emits touches the real price ledger, and two sessions watching the same
// auction may counter differently.
type Escalator struct {
	auctionID     string
	sessionID     uuid.UUID
	startingPrice int64
	minIncrement  int64
	names         []string
	clock         clockwork.Clock
	sink          Sink

	mu                  sync.Mutex
	lastSeenCount       int
	consecutiveRealBids int
	yielded             bool
	closed              bool
	counterIndex        int
	pendingGen          uint64
	pendingTimer        clockwork.Timer
	pendingDone         chan struct{}
}

// New creates an escalator for one (auction, session) pair.
func New(params models.AuctionParams, sessionID uuid.UUID, names []string, clock clockwork.Clock, sink Sink) *Escalator {
	return &Escalator{
		auctionID:     params.ID,
		sessionID:     sessionID,
		startingPrice: params.StartingPrice,
		minIncrement:  params.MinIncrement,
		names:         names,
		clock:         clock,
		sink:          sink,
	}
}

// ObserveLedger feeds the full, ordered real-bid ledger in. Deliveries are
// idempotent: only growth beyond the last seen count registers, so a
// duplicated notification is a no-op. Each newly observed bid bumps the
// consecutive counter and reschedules the pending counter-bid against the
// latest real bid; hitting the yield threshold cancels everything for good.
func (e *Escalator) ObserveLedger(bids []models.RealBid) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.yielded {
		return
	}
	n := len(bids) - e.lastSeenCount
	if n <= 0 {
		return
	}
	e.lastSeenCount = len(bids)
	e.consecutiveRealBids += n

	if e.consecutiveRealBids >= yieldThreshold {
		log.Info().
			Str("auction_id", e.auctionID).
			Str("session_id", e.sessionID.String()).
			Int("consecutive_real_bids", e.consecutiveRealBids).
			Msg("escalator yielding - real bidder is persistent")
		e.yielded = true
		e.cancelPendingLocked()
		return
	}

	e.scheduleCounterLocked(bids[len(bids)-1])
}

// scheduleCounterLocked replaces any not-yet-fired counter timer with a fresh
// one against the latest real bid. Caller holds e.mu.
func (e *Escalator) scheduleCounterLocked(latest models.RealBid) {
	e.cancelPendingLocked()
	e.pendingGen++
	gen := e.pendingGen

	delaySeed := int(e.clock.Now().UnixNano()) + int(gen)
	delay := time.Duration(seedrand.FloatBetween(delaySeed, counterDelayMinSec, counterDelayMaxSec) * float64(time.Second))

	timer := e.clock.NewTimer(delay)
	done := make(chan struct{})
	e.pendingTimer = timer
	e.pendingDone = done

	go func() {
		select {
		case <-timer.Chan():
			e.fireCounter(gen, latest)
		case <-done:
		}
	}()

	log.Debug().
		Str("auction_id", e.auctionID).
		Str("session_id", e.sessionID.String()).
		Dur("delay", delay).
		Int64("real_amount", latest.Amount).
		Msg("scheduled counter-bid")
}

// fireCounter runs when a counter timer expires. A stale generation, a yield,
// or a closed session all make it a no-op.
func (e *Escalator) fireCounter(gen uint64, latest models.RealBid) {
	e.mu.Lock()
	if e.closed || e.yielded || gen != e.pendingGen {
		e.mu.Unlock()
		return
	}
	e.pendingTimer = nil
	e.pendingDone = nil

	now := e.clock.Now()
	jitterSeed := int(now.UnixNano()) + e.counterIndex*31
	jitter := seedrand.FloatBetween(jitterSeed, jitterLo, jitterHi)
	increment := int64(float64(latest.Amount-e.startingPrice) * jitter)
	if increment < e.minIncrement {
		increment = e.minIncrement
	}

	nameIdx := seedrand.IntBetween(seedrand.CharSum(e.auctionID)+e.counterIndex*1000, 0, len(e.names)-1)
	bid := models.SyntheticBid{
		ID:          fmt.Sprintf("ctr-%s", uuid.New().String()[:8]),
		BidderLabel: e.names[nameIdx],
		Amount:      latest.Amount + increment,
		CreatedAt:   now,
		IsSimulated: true,
	}

	// A successful counter opens a fresh escalation window.
	e.consecutiveRealBids = 0
	e.counterIndex++
	e.mu.Unlock()

	log.Debug().
		Str("auction_id", e.auctionID).
		Str("session_id", e.sessionID.String()).
		Int64("amount", bid.Amount).
		Msg("counter-bid placed")
	e.sink(bid)
}

// cancelPendingLocked stops and drains the pending timer, if any, and unblocks
// its goroutine. Caller holds e.mu.
func (e *Escalator) cancelPendingLocked() {
	if e.pendingTimer == nil {
		return
	}
	stopAndDrainTimer(e.pendingTimer)
	close(e.pendingDone)
	e.pendingTimer = nil
	e.pendingDone = nil
}

// stopAndDrainTimer safely stops a timer and drains its channel so the waiting
// goroutine cannot leak a stale fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Close cancels any pending counter and makes every later delivery or timer
// fire a no-op. Called when the observing session ends or the auction expires.
func (e *Escalator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.cancelPendingLocked()
}

// Yielded reports whether the escalator reached its terminal state.
func (e *Escalator) Yielded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.yielded
}

// ConsecutiveRealBids returns the current escalation-window counter.
func (e *Escalator) ConsecutiveRealBids() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveRealBids
}

// CounterBidCount returns how many counter-bids this session has placed.
func (e *Escalator) CounterBidCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counterIndex
}
