package synth

import (
	"testing"
	"time"

	"github.com/yschen25/collectden/go/internal/models"
	"pgregory.net/rapid"
)

// Property: two independent replays of the same auction at the same instant
// are identical element by element.
func TestProperty_ReplayDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSynthesizer(DefaultConfig())
		params, asOf := genAuction(t)

		a := s.Replay(params, asOf)
		b := s.Replay(params, asOf)

		if len(a) != len(b) {
			t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("bid %d differs: %+v vs %+v", i, a[i], b[i])
			}
		}
	})
}

// Property: amounts and timestamps are strictly increasing, no bid lands
// inside the final 30 seconds or after asOf, and the cap holds.
func TestProperty_ReplayInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSynthesizer(DefaultConfig())
		params, asOf := genAuction(t)

		bids := s.Replay(params, asOf)
		if len(bids) > 20 {
			t.Fatalf("cap exceeded: %d bids", len(bids))
		}

		quiet := params.EndTime.Add(-30 * time.Second)
		prevAmount := params.StartingPrice
		prevAt := params.StartTime
		for i, b := range bids {
			if b.Amount <= prevAmount {
				t.Fatalf("bid %d amount %d not strictly increasing over %d", i, b.Amount, prevAmount)
			}
			if !b.CreatedAt.After(prevAt) {
				t.Fatalf("bid %d timestamp %v not strictly increasing over %v", i, b.CreatedAt, prevAt)
			}
			if b.CreatedAt.After(quiet) {
				t.Fatalf("bid %d at %v violates silence window ending %v", i, b.CreatedAt, quiet)
			}
			if b.CreatedAt.After(asOf) {
				t.Fatalf("bid %d at %v is in the future of asOf %v", i, b.CreatedAt, asOf)
			}
			prevAmount = b.Amount
			prevAt = b.CreatedAt
		}
	})
}

// Property: replay is a prefix function of time: observing earlier never
// shows bids the later observation lacks.
func TestProperty_ReplayPrefixStable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSynthesizer(DefaultConfig())
		params, asOf := genAuction(t)
		earlier := asOf.Add(-time.Duration(rapid.Int64Range(0, 600).Draw(t, "backoff")) * time.Second)

		full := s.Replay(params, asOf)
		prefix := s.Replay(params, earlier)

		if len(prefix) > len(full) {
			t.Fatalf("earlier observation has more bids (%d) than later (%d)", len(prefix), len(full))
		}
		for i := range prefix {
			if prefix[i] != full[i] {
				t.Fatalf("bid %d changed between observations: %+v vs %+v", i, prefix[i], full[i])
			}
		}
	})
}

func genAuction(t *rapid.T) (models.AuctionParams, time.Time) {
	start := time.Unix(rapid.Int64Range(1_600_000_000, 1_900_000_000).Draw(t, "start"), 0).UTC()
	durationSec := rapid.Int64Range(60, 72*3600).Draw(t, "duration")
	asOfOffset := rapid.Int64Range(0, 96*3600).Draw(t, "asOfOffset")
	params := models.AuctionParams{
		ID:            rapid.StringMatching(`auc-[a-z0-9]{1,12}`).Draw(t, "id"),
		Title:         rapid.SampledFrom([]string{"青花瓷盤", "限量公仔", "稀有簽名球", "老件茶壺"}).Draw(t, "title"),
		StartTime:     start,
		EndTime:       start.Add(time.Duration(durationSec) * time.Second),
		StartingPrice: rapid.Int64Range(10, 100_000).Draw(t, "startingPrice"),
		MinIncrement:  rapid.Int64Range(1, 5_000).Draw(t, "minIncrement"),
		Status:        models.AuctionStatusActive,
	}
	return params, start.Add(time.Duration(asOfOffset) * time.Second)
}
