package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// extendedFlagWindow is how long the JustExtended display flag stays up after
// an end-time raise is observed.
const extendedFlagWindow = 5 * time.Second

// State is a point-in-time view of the countdown.
// Invariants: Expired implies RemainingMs <= 0; Urgent implies !Expired.
type State struct {
	RemainingMs  int64 `json:"remaining_ms"`
	Urgent       bool  `json:"urgent"`
	Expired      bool  `json:"expired"`
	JustExtended bool  `json:"just_extended"`
}

// Machine tracks remaining time, urgency, and end-time extensions for one
// auction as seen by one observer. It does not decide extensions; the
// external auction authority owns that rule. It only detects the end time
// moving later and announces it.
type Machine struct {
	clock clockwork.Clock

	mu            sync.Mutex
	endTime       time.Time
	expired       bool
	extendedUntil time.Time
}

// NewMachine creates a countdown against the given end time.
func NewMachine(clock clockwork.Clock, endTime time.Time) *Machine {
	return &Machine{clock: clock, endTime: endTime}
}

// SetEndTime feeds the externally observed end time into the machine. A later
// value while the auction is not expired raises the transient JustExtended
// flag; it reports whether an extension was detected.
func (m *Machine) SetEndTime(t time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !t.After(m.endTime) {
		return false
	}
	old := m.endTime
	m.endTime = t
	if m.expired {
		return false
	}
	m.extendedUntil = m.clock.Now().Add(extendedFlagWindow)
	log.Debug().
		Time("old_end", old).
		Time("new_end", t).
		Msg("auction end time extended")
	return true
}

// MarkEnded forces the terminal state when the external status is already
// ended, regardless of the local clock reading.
func (m *Machine) MarkEnded() {
	m.mu.Lock()
	m.expired = true
	m.mu.Unlock()
}

// EndTime returns the currently observed end time. The bid synthesizer uses
// it as the upper bound of its replay window.
func (m *Machine) EndTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endTime
}

// Snapshot recomputes the state against the clock. Expiry is sticky: once
// observed, a later stale-positive remaining time cannot resurrect the
// countdown.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	remaining := m.endTime.Sub(now).Milliseconds()
	if remaining <= 0 {
		m.expired = true
	}
	if m.expired {
		if remaining > 0 {
			remaining = 0
		}
		return State{RemainingMs: remaining, Expired: true}
	}
	return State{
		RemainingMs:  remaining,
		Urgent:       remaining <= 60_000,
		JustExtended: now.Before(m.extendedUntil),
	}
}

// Run recomputes once per second and hands each state plus its rendered
// countdown text to fn, until ctx is cancelled.
func (m *Machine) Run(ctx context.Context, fn func(State, string)) {
	ticker := m.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			st := m.Snapshot()
			fn(st, FormatRemaining(st.RemainingMs))
		}
	}
}

// FormatRemaining renders remaining milliseconds the way the auction page
// shows them: day/hour granularity far out, then H:MM:SS, then M:SS.
func FormatRemaining(remainingMs int64) string {
	if remainingMs <= 0 {
		return "00:00"
	}
	totalSec := remainingMs / 1000
	days := totalSec / 86400
	hours := (totalSec % 86400) / 3600
	minutes := (totalSec % 3600) / 60
	seconds := totalSec % 60

	switch {
	case days >= 1:
		return fmt.Sprintf("%d天 %d小時", days, hours)
	case hours >= 1:
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%d:%02d", minutes, seconds)
	}
}
