// Package decay computes the current offered spread (delta) for an active
// auction round. The computation is a pure function of round state and
// wall-clock time, so a scheduler tick can be repeated without drift.
package decay

import (
	"math"
	"time"

	"goldenbook-backend/internal/domain"
)

// DeltaNow returns the offered delta at the given instant:
//
//	delta_floor + (delta_max - delta_floor) * exp(-(a + b*cover) * x)
//
// where x is the elapsed fraction of the originally configured round length,
// clamped to [0, 1]. The curve starts at delta_max, decays toward delta_floor,
// and a higher cover ratio (raised/target) steepens the decay: a round
// attracting enough demand offers a lower premium sooner, while an
// undersubscribed round decays only on the base factor a. The result is
// always within [delta_floor, delta_max].
func DeltaNow(r *domain.AuctionRound, now time.Time) float64 {
	span := r.Duration()
	if span <= 0 {
		return r.DeltaFloor
	}
	x := float64(now.Sub(r.StartAt)) / float64(span)
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	k := r.DecayA + r.DecayB*r.CoverRatio
	d := r.DeltaFloor + (r.DeltaMax-r.DeltaFloor)*math.Exp(-k*x)
	if d < r.DeltaFloor {
		return r.DeltaFloor
	}
	if d > r.DeltaMax {
		return r.DeltaMax
	}
	return d
}

// InSnipingWindow reports whether an instant falls inside the anti-sniping
// window before the current close time.
func InSnipingWindow(r *domain.AuctionRound, now time.Time) bool {
	if r.AntiSnipingMode == domain.SnipingDisabled || r.AntiSnipingMode == "" {
		return false
	}
	if r.AntiSnipingWindowSec <= 0 {
		return false
	}
	window := time.Duration(r.AntiSnipingWindowSec) * time.Second
	return !now.After(r.EndAt) && r.EndAt.Sub(now) <= window
}
