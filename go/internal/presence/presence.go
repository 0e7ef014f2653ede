package presence

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yschen25/collectden/go/internal/seedrand"
)

const floorViewers = 5

// Estimate is the derived viewer figure shown next to the auction. Dwell is a
// monotonic per-session counter; the viewer count is display-only and never
// persisted.
type Estimate struct {
	ViewerCount  int   `json:"viewer_count"`
	DwellSeconds int64 `json:"dwell_seconds"`
}

// Estimator derives a plausible viewer count from how long this session has
// been watching, how close the auction is to ending, and recent bid activity.
// One estimator is owned per session and shared by every widget that renders
// the number, so the two cards on the page always agree.
type Estimator struct {
	clock     clockwork.Clock
	seed      int
	startedAt time.Time

	mu           sync.Mutex
	jitter       int
	nextJitterAt time.Time
}

// NewEstimator creates an estimator seeded by the session key so the banded
// contributions are stable for the session's lifetime.
func NewEstimator(sessionKey string, clock clockwork.Clock) *Estimator {
	return &Estimator{
		clock:     clock,
		seed:      seedrand.CharSum(sessionKey),
		startedAt: clock.Now(),
	}
}

// Estimate computes the current viewer count. recentActivity is the number of
// bids (real plus synthetic) observed in the recent window; it contributes at
// most 5. The result never drops below the floor of 5.
func (e *Estimator) Estimate(remainingMs int64, recentActivity int) Estimate {
	now := e.clock.Now()
	dwell := int64(now.Sub(e.startedAt).Seconds())

	count := floorViewers
	switch {
	case dwell >= 180:
		count += seedrand.IntBetween(e.seed+3, 12, 20)
	case dwell >= 60:
		count += seedrand.IntBetween(e.seed+2, 6, 12)
	case dwell >= 30:
		count += seedrand.IntBetween(e.seed+1, 3, 6)
	}

	if remainingMs > 0 && remainingMs < 60_000 {
		count += seedrand.IntBetween(e.seed+7, 5, 15)
	}

	if recentActivity > 0 {
		if recentActivity > 5 {
			recentActivity = 5
		}
		count += recentActivity
	}

	count += e.currentJitter(now)
	if count < floorViewers {
		count = floorViewers
	}
	return Estimate{ViewerCount: count, DwellSeconds: dwell}
}

// currentJitter applies a ±1 wobble that re-rolls on a 3 to 8 second cycle, purely for
// visual liveliness.
func (e *Estimator) currentJitter(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Before(e.nextJitterAt) {
		return e.jitter
	}
	roll := int(now.UnixNano()) + e.seed
	e.jitter = seedrand.IntBetween(roll, -1, 1)
	cycle := seedrand.FloatBetween(roll+1, 3, 8)
	e.nextJitterAt = now.Add(time.Duration(cycle * float64(time.Second)))
	return e.jitter
}
