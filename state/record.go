package state

import (
	"sync"
	"time"

	"github.com/AlephTX/aleph-tx/arbmon/relation"
)

// Leg is the latest known market state of one instrument in a relation.
type Leg struct {
	Bid     float64
	BidSize float64
	Ask     float64
	AskSize float64
	Last    float64

	Stamp     time.Time // venue timestamp of the last applied quote
	ElapsedMs float64   // local receipt delay after clock correction
	Updates   uint64
}

// Metrics are the derived fields of a relation. All zero until every
// required leg has been seen.
type Metrics struct {
	// Pairwise, orderbook panel.
	BuyASellB    float64
	BuyASellBPct float64
	BuyBSellA    float64
	BuyBSellAPct float64

	// Pairwise, ticker panel.
	Spread float64

	// Ranking metric of pairwise relations.
	SpreadPct float64

	// Triangle rates in RateNames order and their maximum.
	Rates [6]float64
	Rate  float64
}

// Record is the mutable state of one relation. The mutex covers the legs and
// metrics together so a leg write and its recomputation are atomic.
type Record struct {
	mu sync.Mutex

	id   string
	kind relation.Kind
	seq  int
	n    int

	legs      [3]Leg
	metrics   Metrics
	defined   bool
	elapsedMs float64
	updatedAt time.Time
}

func newRecord(seq int, r relation.Relation) *Record {
	return &Record{id: r.ID, kind: r.Kind, seq: seq, n: len(r.Legs)}
}

// ID returns the relation identifier.
func (r *Record) ID() string { return r.id }

// Snapshot copies the record under its lock.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:        r.id,
		Kind:      r.kind,
		Seq:       r.seq,
		NumLegs:   r.n,
		Legs:      r.legs,
		Metrics:   r.metrics,
		Defined:   r.defined,
		ElapsedMs: r.elapsedMs,
		UpdatedAt: r.updatedAt,
	}
}
