// Package relation discovers the arbitrage relations worth monitoring and
// indexes them by the symbols they depend on.
package relation

import "strings"

// Kind distinguishes the two relation shapes.
type Kind uint8

const (
	KindTriangle Kind = iota
	KindPair
)

func (k Kind) String() string {
	if k == KindPair {
		return "pair"
	}
	return "triangle"
}

// Venue sides. Triangles live entirely on SideA.
const (
	SideA = 0
	SideB = 1
)

// Leg is one instrument a relation depends on.
type Leg struct {
	Side   int
	Symbol string
}

// Relation is the unit of monitoring. Created once at discovery and never
// removed for the lifetime of a run.
type Relation struct {
	ID   string
	Kind Kind
	// Triangle: legs a (B/A), b (C/B), c (C/A). Pair: legs a and b.
	Legs []Leg
	// Triangle: currencies A, B, C. Pair: base, quote.
	Currencies []string
}

// LegNames maps a leg position to the suffix used in snapshot field names.
var LegNames = [3]string{"a", "b", "c"}

// CurrencyFilter rejects triangles built from more than one stablecoin or
// from any fiat currency.
type CurrencyFilter struct {
	Stable map[string]struct{}
	Fiat   map[string]struct{}
}

var (
	DefaultStablecoins = []string{"USDT", "USDC", "TUSD", "BUSD", "DAI", "EURI", "FDUSD", "USDE"}
	DefaultFiat        = []string{
		"USD", "EUR", "JPY", "GBP", "AUD", "CAD", "CHF", "CNY", "HKD", "SGD",
		"KRW", "RUB", "TRY", "MXN", "AED", "BRL", "ZAR", "PLN", "ARS",
	}
)

// NewCurrencyFilter builds a filter; nil slices fall back to the defaults.
func NewCurrencyFilter(stable, fiat []string) CurrencyFilter {
	if stable == nil {
		stable = DefaultStablecoins
	}
	if fiat == nil {
		fiat = DefaultFiat
	}
	return CurrencyFilter{Stable: toSet(stable), Fiat: toSet(fiat)}
}

// Allow reports whether a currency set passes the quality filter.
func (f CurrencyFilter) Allow(currencies ...string) bool {
	stables := 0
	for _, c := range currencies {
		if _, ok := f.Fiat[c]; ok {
			return false
		}
		if _, ok := f.Stable[c]; ok {
			stables++
		}
	}
	return stables <= 1
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[strings.ToUpper(strings.TrimSpace(x))] = struct{}{}
	}
	return m
}
