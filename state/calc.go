package state

import (
	"math"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// Calculator derives metrics from the current legs. ok=false means some
// required leg has not been seen yet; the previous metrics stay in place.
type Calculator func(legs []Leg) (m Metrics, ok bool, err error)

// Triangle rate order, matching Metrics.Rates.
const (
	RateABC = iota
	RateACB
	RateBAC
	RateBCA
	RateCAB
	RateCBA
)

// RateNames are the snapshot suffixes of Metrics.Rates.
var RateNames = [6]string{"abc", "acb", "bac", "bca", "cab", "cba"}

// ForMode picks the pairwise calculator for a subscription mode.
func ForMode(mode market.Mode) Calculator {
	if mode == market.ModeTicker {
		return TickerSpread
	}
	return OrderbookSpread
}

// OrderbookSpread computes both buy-low/sell-high directions of a pair:
// buying on A at ask and selling on B at bid, and the reverse.
func OrderbookSpread(legs []Leg) (Metrics, bool, error) {
	if len(legs) < 2 {
		return Metrics{}, false, nil
	}
	a, b := legs[0], legs[1]
	if a.Ask <= 0 || a.Bid <= 0 || b.Ask <= 0 || b.Bid <= 0 {
		return Metrics{}, false, nil
	}
	var m Metrics
	m.BuyASellB = b.Bid - a.Ask
	m.BuyASellBPct = m.BuyASellB / a.Ask
	m.BuyBSellA = a.Bid - b.Ask
	m.BuyBSellAPct = m.BuyBSellA / b.Ask
	m.SpreadPct = math.Max(m.BuyASellBPct, m.BuyBSellAPct)
	if !finite(m.BuyASellBPct, m.BuyBSellAPct) {
		return Metrics{}, false, market.ErrNonFinite
	}
	return m, true, nil
}

// TickerSpread compares last prices: |A-B| over the lower of the two.
func TickerSpread(legs []Leg) (Metrics, bool, error) {
	if len(legs) < 2 {
		return Metrics{}, false, nil
	}
	pa, pb := legs[0].Last, legs[1].Last
	if pa <= 0 || pb <= 0 {
		return Metrics{}, false, nil
	}
	var m Metrics
	m.Spread = math.Abs(pa - pb)
	m.SpreadPct = m.Spread / math.Min(pa, pb)
	if !finite(m.Spread, m.SpreadPct) {
		return Metrics{}, false, market.ErrNonFinite
	}
	return m, true, nil
}

// TriangleRate computes the multiplicative return of walking the cycle in
// each of the six currency orders. Legs are a=B/A, b=C/B, c=C/A; buying a
// base pays the ask, selling it receives the bid.
func TriangleRate(legs []Leg) (Metrics, bool, error) {
	if len(legs) < 3 {
		return Metrics{}, false, nil
	}
	for _, l := range legs[:3] {
		if l.Ask <= 0 || l.Bid <= 0 {
			return Metrics{}, false, nil
		}
	}
	a, b, c := legs[0], legs[1], legs[2]

	// A -> B -> C -> A: buy B with A, buy C with B, sell C for A.
	forward := 1 / a.Ask / b.Ask * c.Bid
	// A -> C -> B -> A: buy C with A, sell C for B, sell B for A.
	backward := 1 / c.Ask * b.Bid * a.Bid

	var m Metrics
	m.Rates[RateABC] = forward
	m.Rates[RateBCA] = 1 / b.Ask * c.Bid / a.Ask
	m.Rates[RateCAB] = c.Bid / a.Ask / b.Ask
	m.Rates[RateACB] = backward
	m.Rates[RateBAC] = a.Bid / c.Ask * b.Bid
	m.Rates[RateCBA] = b.Bid * a.Bid / c.Ask

	m.Rate = m.Rates[0]
	for _, r := range m.Rates[1:] {
		if r > m.Rate {
			m.Rate = r
		}
	}
	if !finite(m.Rates[:]...) {
		return Metrics{}, false, market.ErrNonFinite
	}
	return m, true, nil
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
