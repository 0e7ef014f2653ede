package synth

import (
	"fmt"
	"time"

	"github.com/yschen25/collectden/go/internal/models"
	"github.com/yschen25/collectden/go/internal/seedrand"
)

const (
	// maxBids caps a replayed timeline.
	maxBids = 20
	// silenceWindow is how long before the auction end synthetic activity
	// goes quiet, so the closing moment always reads as genuine.
	silenceWindow = 30 * time.Second
	// urgencyWindow is the remaining-time threshold below which synthetic
	// inter-arrival gaps tighten.
	urgencyWindow = 2 * time.Minute
)

// Synthesizer replays a deterministic synthetic bid timeline for an auction.
// It holds no per-auction state: every call derives the full history from the
// auction parameters alone, so independent clients and the server agree
// byte-for-byte on what the timeline looks like at any instant.
type Synthesizer struct {
	names          []string
	defaultCeiling int
	ceilings       map[string]int
}

// NewSynthesizer builds a synthesizer from tuning config. Zero-value config
// fields fall back to defaults so a misconfigured file cannot disable the
// timeline entirely.
func NewSynthesizer(cfg Config) *Synthesizer {
	names := cfg.BidderNames
	if len(names) == 0 {
		names = DefaultConfig().BidderNames
	}
	ceiling := cfg.DefaultCeiling
	if ceiling <= 0 {
		ceiling = 3
	}
	ceilings := cfg.MultiplierCeilings
	if ceilings == nil {
		ceilings = map[string]int{}
	}
	return &Synthesizer{
		names:          names,
		defaultCeiling: ceiling,
		ceilings:       ceilings,
	}
}

// Replay returns the synthetic bids visible as of asOf, ordered and strictly
// increasing in both amount and timestamp. Malformed inputs (endTime before
// startTime, non-positive increment) yield an empty timeline; this function
// cannot fail.
func (s *Synthesizer) Replay(params models.AuctionParams, asOf time.Time) []models.SyntheticBid {
	if params.MinIncrement <= 0 {
		return nil
	}

	stop := asOf
	if quiet := params.EndTime.Add(-silenceWindow); quiet.Before(stop) {
		stop = quiet
	}

	seed := seedrand.CharSum(params.ID)
	ceiling := s.defaultCeiling
	if c, ok := s.ceilings[params.Title]; ok && c > 0 {
		ceiling = c
	}

	// Initial hesitation: nobody bids the instant an auction opens.
	bidTime := params.StartTime.Add(secondsBetween(seed, 10, 30))

	var bids []models.SyntheticBid
	price := params.StartingPrice
	prevName := -1
	for i := 0; i < maxBids && bidTime.Before(stop); i++ {
		step := seed + i*1000

		nameIdx := int(seedrand.Float(step) * float64(len(s.names)))
		if nameIdx == prevName {
			nameIdx = (nameIdx + 1) % len(s.names)
		}
		prevName = nameIdx

		multiplier := seedrand.IntBetween(step+1, 1, ceiling)
		price += params.MinIncrement * int64(multiplier)

		bids = append(bids, models.SyntheticBid{
			ID:          fmt.Sprintf("sim-%s-%d", params.ID, i),
			BidderLabel: s.names[nameIdx],
			Amount:      price,
			CreatedAt:   bidTime,
			IsSimulated: true,
		})

		if params.EndTime.Sub(bidTime) < urgencyWindow {
			bidTime = bidTime.Add(secondsBetween(step+2, 8, 15))
		} else {
			bidTime = bidTime.Add(secondsBetween(step+2, 15, 45))
		}
	}
	return bids
}

// CountAsOf returns how many synthetic bids the replay holds at asOf. Used
// for the estimated bid count on summary cards.
func (s *Synthesizer) CountAsOf(params models.AuctionParams, asOf time.Time) int {
	return len(s.Replay(params, asOf))
}

// CurrentPrice returns the top synthetic amount at asOf, or the starting
// price when the timeline is empty.
func (s *Synthesizer) CurrentPrice(params models.AuctionParams, asOf time.Time) int64 {
	bids := s.Replay(params, asOf)
	if len(bids) == 0 {
		return params.StartingPrice
	}
	return bids[len(bids)-1].Amount
}

func secondsBetween(seed int, lo, hi float64) time.Duration {
	return time.Duration(seedrand.FloatBetween(seed, lo, hi) * float64(time.Second))
}
