package relation

// Ref points at one leg of one relation. Rel is the relation's position in
// the slice the index was built from, which is also its State Store slot.
type Ref struct {
	Rel int
	Leg int
}

type symbolKey struct {
	side   int
	symbol string
}

// Index maps a (side, symbol) to every relation leg fed by it. Built once and
// read-only afterwards, so concurrent lookups need no locking.
type Index struct {
	refs    map[symbolKey][]Ref
	symbols [2][]string
}

// NewIndex builds the fan-out table from the discovered relations.
func NewIndex(rels []Relation) *Index {
	x := &Index{refs: make(map[symbolKey][]Ref, len(rels)*3)}
	for ri, r := range rels {
		for li, leg := range r.Legs {
			k := symbolKey{leg.Side, leg.Symbol}
			if _, ok := x.refs[k]; !ok {
				x.symbols[leg.Side] = append(x.symbols[leg.Side], leg.Symbol)
			}
			x.refs[k] = append(x.refs[k], Ref{Rel: ri, Leg: li})
		}
	}
	return x
}

// Lookup returns the legs depending on symbol at side. The slice is shared;
// callers must not modify it.
func (x *Index) Lookup(side int, symbol string) []Ref {
	return x.refs[symbolKey{side, symbol}]
}

// Symbols lists the distinct symbols of one side in first-seen order.
func (x *Index) Symbols(side int) []string {
	if side < 0 || side >= len(x.symbols) {
		return nil
	}
	return x.symbols[side]
}
