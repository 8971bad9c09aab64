package relation

import (
	"sort"
	"strings"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// Selector narrows the instruments considered for pairwise relations. A
// non-empty Symbols allow-list (BASE-QUOTE) replaces the quote filter.
type Selector struct {
	Quote   string
	Symbols []string
}

type pairKey struct{ base, quote string }

// FindPairs matches instruments of two venues that share base and quote.
// Every symbol combination of a shared key becomes one relation keyed
// "<symbolA>-<symbolB>".
func FindPairs(catA, catB []market.Instrument, mA, mB market.Market, sel Selector) []Relation {
	allow := map[string]struct{}{}
	for _, s := range sel.Symbols {
		allow[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	quote := strings.ToUpper(sel.Quote)

	keep := func(in market.Instrument) bool {
		if len(allow) > 0 {
			_, ok := allow[in.Pair()]
			return ok
		}
		return in.Quote == quote
	}
	group := func(cat []market.Instrument, m market.Market) map[pairKey][]string {
		out := map[pairKey][]string{}
		for _, in := range cat {
			if !in.Active || !m.Matches(in) || !keep(in) {
				continue
			}
			k := pairKey{in.Base, in.Quote}
			out[k] = append(out[k], in.Symbol)
		}
		return out
	}

	a, b := group(catA, mA), group(catB, mB)
	keys := make([]pairKey, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].base != keys[j].base {
			return keys[i].base < keys[j].base
		}
		return keys[i].quote < keys[j].quote
	})

	seen := map[string]struct{}{}
	var out []Relation
	for _, k := range keys {
		for _, sa := range a[k] {
			for _, sb := range b[k] {
				id := sa + "-" + sb
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, Relation{
					ID:         id,
					Kind:       KindPair,
					Legs:       []Leg{{Side: SideA, Symbol: sa}, {Side: SideB, Symbol: sb}},
					Currencies: []string{k.base, k.quote},
				})
			}
		}
	}
	return out
}
