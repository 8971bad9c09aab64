// Package market holds the venue-neutral vocabulary shared by every other
// package: instruments, quotes, market descriptors and the error taxonomy.
package market

import (
	"strings"
	"time"
)

// Market types as reported by venue catalogs.
const (
	TypeSpot   = "spot"
	TypeSwap   = "swap"
	TypeFuture = "future"

	SubLinear  = "linear"
	SubInverse = "inverse"
)

// Instrument is one tradable symbol on one venue. Immutable after catalog load.
type Instrument struct {
	Symbol  string // venue-native id, e.g. BTCUSDT or BTC-USDT-SWAP
	Base    string
	Quote   string
	Type    string // spot, swap, future
	SubType string // linear, inverse or empty for spot
	Active  bool
}

// Pair returns the BASE-QUOTE form used by symbol allow-lists.
func (i Instrument) Pair() string {
	return i.Base + "-" + i.Quote
}

// Mode selects what a quote subscription delivers.
type Mode uint8

const (
	// ModeOrderbook delivers top-of-book bid/ask with sizes.
	ModeOrderbook Mode = iota
	// ModeTicker delivers last trade price only.
	ModeTicker
)

func (m Mode) String() string {
	if m == ModeTicker {
		return "ticker"
	}
	return "orderbook"
}

// ParseMode maps a panel selector to a Mode.
func ParseMode(panel string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(panel)) {
	case "orderbook", "":
		return ModeOrderbook, nil
	case "ticker":
		return ModeTicker, nil
	}
	return 0, &ConfigError{Field: "panel", Value: panel, Reason: "must be orderbook or ticker"}
}

// Quote is a single update for one symbol. Zero prices mean "not carried by
// this update" and never overwrite stored leg values.
type Quote struct {
	Symbol   string
	Bid      float64
	BidSize  float64
	Ask      float64
	AskSize  float64
	Last     float64
	Time     time.Time // venue timestamp, zero if the venue does not send one
	Received time.Time
}

// Stamp returns the venue timestamp, falling back to the receipt time.
func (q Quote) Stamp() time.Time {
	if q.Time.IsZero() {
		return q.Received
	}
	return q.Time
}
