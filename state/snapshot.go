package state

import (
	"encoding/json"
	"time"

	"github.com/AlephTX/aleph-tx/arbmon/market"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
)

// Snapshot is an immutable copy of one record.
type Snapshot struct {
	ID        string
	Kind      relation.Kind
	Mode      market.Mode
	Seq       int // discovery order, used for deterministic tie-breaks
	NumLegs   int
	Legs      [3]Leg
	Metrics   Metrics
	Defined   bool
	ElapsedMs float64
	UpdatedAt time.Time
}

// Score is the ranking metric: the best triangle rate or the best spread pct.
func (s Snapshot) Score() float64 {
	if s.Kind == relation.KindTriangle {
		return s.Metrics.Rate
	}
	return s.Metrics.SpreadPct
}

// Fields flattens the snapshot into the display record.
func (s Snapshot) Fields() map[string]any {
	f := make(map[string]any, 24)
	switch {
	case s.Kind == relation.KindTriangle:
		f["name"] = s.ID
		f["exchange_rate"] = s.Metrics.Rate
		for i, n := range RateNames {
			f["exchange_rate_"+n] = s.Metrics.Rates[i]
		}
		for i := 0; i < s.NumLegs; i++ {
			n := relation.LegNames[i]
			f["bid_price_"+n] = s.Legs[i].Bid
			f["ask_price_"+n] = s.Legs[i].Ask
		}
		f["elapsed_time"] = s.ElapsedMs

	case s.Mode == market.ModeTicker:
		f["pair_name"] = s.ID
		f["spread"] = s.Metrics.Spread
		f["spread_pct"] = s.Metrics.SpreadPct
		for i := 0; i < s.NumLegs; i++ {
			n := relation.LegNames[i]
			f["price_"+n] = s.Legs[i].Last
			f["elapsed_time_"+n] = s.Legs[i].ElapsedMs
		}

	default:
		f["pair_name"] = s.ID
		f["spread_pct"] = s.Metrics.SpreadPct
		f["buy_a_sell_b_spread"] = s.Metrics.BuyASellB
		f["buy_a_sell_b_spread_pct"] = s.Metrics.BuyASellBPct
		f["buy_b_sell_a_spread"] = s.Metrics.BuyBSellA
		f["buy_b_sell_a_spread_pct"] = s.Metrics.BuyBSellAPct
		for i := 0; i < s.NumLegs; i++ {
			n := relation.LegNames[i]
			f["bid_price_"+n] = s.Legs[i].Bid
			f["bid_volume_"+n] = s.Legs[i].BidSize
			f["ask_price_"+n] = s.Legs[i].Ask
			f["ask_volume_"+n] = s.Legs[i].AskSize
			f["elapsed_time_"+n] = s.Legs[i].ElapsedMs
		}
	}
	return f
}

// MarshalJSON encodes the flat display record.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fields())
}

// Board is one ranked leaderboard, best row first.
type Board struct {
	Kind string     `json:"kind"`
	At   time.Time  `json:"at"`
	Rows []Snapshot `json:"rows"`
}
