package relation

import (
	"sort"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// graph is a directed currency graph: base -> quote -> instrument symbol.
type graph map[string]map[string]string

func (g graph) edge(from, to string) (string, bool) {
	sym, ok := g[from][to]
	return sym, ok
}

func (g graph) nodes() []string {
	seen := make(map[string]struct{}, len(g)*2)
	for from, tos := range g {
		seen[from] = struct{}{}
		for to := range tos {
			seen[to] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (g graph) successors(n string) []string {
	out := make([]string, 0, len(g[n]))
	for to := range g[n] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// FindTriangles enumerates the three-currency cycles of one venue's active
// spot instruments.
//
// For every currency B, every quote A of an instrument B/A and every other
// currency C listing both C/B and C/A, the triangle keyed "A-B-C" is emitted
// with legs a=B/A, b=C/B, c=C/A. Nodes are visited in sorted order so the
// result is identical across runs.
func FindTriangles(instruments []market.Instrument, filter CurrencyFilter) []Relation {
	g := graph{}
	for _, in := range instruments {
		if !in.Active || in.Type != market.TypeSpot || in.Base == "" || in.Quote == "" || in.Base == in.Quote {
			continue
		}
		if g[in.Base] == nil {
			g[in.Base] = map[string]string{}
		}
		g[in.Base][in.Quote] = in.Symbol
	}

	nodes := g.nodes()
	seen := map[string]struct{}{}
	var out []Relation
	for _, b := range nodes {
		for _, a := range g.successors(b) {
			symA, _ := g.edge(b, a)
			for _, c := range nodes {
				if c == a || c == b {
					continue
				}
				symB, ok := g.edge(c, b)
				if !ok {
					continue
				}
				symC, ok := g.edge(c, a)
				if !ok {
					continue
				}
				if !filter.Allow(a, b, c) {
					continue
				}
				id := a + "-" + b + "-" + c
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, Relation{
					ID:   id,
					Kind: KindTriangle,
					Legs: []Leg{
						{Side: SideA, Symbol: symA},
						{Side: SideA, Symbol: symB},
						{Side: SideA, Symbol: symC},
					},
					Currencies: []string{a, b, c},
				})
			}
		}
	}
	return out
}
