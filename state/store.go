package state

import (
	"fmt"
	"time"

	"github.com/AlephTX/aleph-tx/arbmon/market"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
)

// Store holds one record per discovered relation. The record slice is built
// eagerly in discovery order and never resized, so lookups by relation.Ref
// need no store-wide lock; each record carries its own.
type Store struct {
	records []*Record
	byID    map[string]int
	mode    market.Mode
	calc    Calculator
	now     func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for elapsed-time fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCalculator overrides the calculator picked from the relation kind.
func WithCalculator(c Calculator) Option {
	return func(s *Store) { s.calc = c }
}

// NewStore initializes a zeroed record for every relation. The calculator
// follows the kind of the first relation: TriangleRate for triangles,
// otherwise the pairwise calculator for mode.
func NewStore(rels []relation.Relation, mode market.Mode, opts ...Option) *Store {
	s := &Store{
		records: make([]*Record, len(rels)),
		byID:    make(map[string]int, len(rels)),
		mode:    mode,
		calc:    ForMode(mode),
		now:     time.Now,
	}
	if len(rels) > 0 && rels[0].Kind == relation.KindTriangle {
		s.calc = TriangleRate
	}
	for i, r := range rels {
		s.records[i] = newRecord(i, r)
		s.byID[r.ID] = i
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// Mode returns the subscription mode the store was built for.
func (s *Store) Mode() market.Mode { return s.mode }

// Get returns the snapshot of one relation by id.
func (s *Store) Get(id string) (Snapshot, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	snap := s.records[i].Snapshot()
	snap.Mode = s.mode
	return snap, true
}

// Apply writes q into the leg at ref and recomputes the record's metrics in
// the same critical section. skew is the venue's local-minus-server clock
// offset used for the elapsed-time field.
//
// A calculator failure returns a *market.ComputationError and leaves the
// previous metrics untouched. The leg write itself is kept.
func (s *Store) Apply(ref relation.Ref, q market.Quote, skew time.Duration) error {
	if ref.Rel < 0 || ref.Rel >= len(s.records) {
		return fmt.Errorf("relation slot %d out of range", ref.Rel)
	}
	r := s.records[ref.Rel]
	if ref.Leg < 0 || ref.Leg >= r.n {
		return fmt.Errorf("%s: leg %d out of range", r.id, ref.Leg)
	}
	now := s.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	leg := &r.legs[ref.Leg]
	switch s.mode {
	case market.ModeTicker:
		if q.Last > 0 {
			leg.Last = q.Last
		}
	default:
		if q.Bid > 0 {
			leg.Bid, leg.BidSize = q.Bid, q.BidSize
		}
		if q.Ask > 0 {
			leg.Ask, leg.AskSize = q.Ask, q.AskSize
		}
	}
	leg.Stamp = q.Stamp()
	leg.ElapsedMs = elapsedMs(now, leg.Stamp, skew)
	leg.Updates++
	r.elapsedMs = leg.ElapsedMs
	r.updatedAt = now

	m, ok, err := s.calc(r.legs[:r.n])
	if err != nil {
		return &market.ComputationError{Relation: r.id, Err: err}
	}
	if ok {
		r.metrics = m
		r.defined = true
	}
	return nil
}

// Snapshot copies every record in discovery order. Each element is
// consistent on its own; the slice is not a point-in-time view of the store.
func (s *Store) Snapshot() []Snapshot {
	out := make([]Snapshot, len(s.records))
	for i, r := range s.records {
		out[i] = r.Snapshot()
		out[i].Mode = s.mode
	}
	return out
}

func elapsedMs(now, stamp time.Time, skew time.Duration) float64 {
	if stamp.IsZero() {
		return 0
	}
	return float64(now.Sub(stamp.Add(skew))) / float64(time.Millisecond)
}
