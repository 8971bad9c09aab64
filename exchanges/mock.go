package exchanges

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// reference USD prices of the mock walk
var mockUSD = map[string]float64{
	"BTC":  63100,
	"ETH":  1825,
	"SOL":  145,
	"BNB":  590,
	"USDT": 1,
	"USDC": 1,
}

var mockPairs = []string{"BTC-USDT", "ETH-USDT", "ETH-BTC", "SOL-USDT", "SOL-BTC", "SOL-ETH", "BNB-USDT", "BNB-BTC"}

// Mock generates realistic top-of-book data for offline runs. Prices track a
// random walk around cross rates of mockUSD with spreads of a few bps.
type Mock struct {
	market  market.Market
	catalog []market.Instrument

	// Tick is the update period of every watched symbol.
	Tick time.Duration
	// Seed fixes the walk; zero seeds from the clock.
	Seed int64
}

// NewMock builds the catalog from cfg.Symbols (BASE-QUOTE -> symbol), or
// from a default set of cross pairs.
func NewMock(m market.Market, cfg config.ExchangeConfig) *Mock {
	pairs := cfg.Symbols
	if len(pairs) == 0 {
		pairs = make(map[string]string, len(mockPairs))
		for _, p := range mockPairs {
			pairs[p] = mockSymbol(m, p)
		}
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mk := &Mock{market: m, Tick: 100 * time.Millisecond}
	for _, k := range keys {
		base, quote, ok := strings.Cut(strings.ToUpper(k), "-")
		if !ok {
			continue
		}
		in := market.Instrument{Symbol: pairs[k], Base: base, Quote: quote, Type: m.Type, SubType: m.SubType, Active: true}
		if m.Type != market.TypeSpot && in.SubType == "" {
			in.SubType = market.SubLinear
		}
		mk.catalog = append(mk.catalog, in)
	}
	return mk
}

func mockSymbol(m market.Market, pair string) string {
	switch m.Type {
	case market.TypeSwap:
		return pair + "-SWAP"
	case market.TypeFuture:
		return pair + "-FUT"
	}
	return strings.ReplaceAll(pair, "-", "")
}

func (m *Mock) Name() string          { return "mock" }
func (m *Mock) Market() market.Market { return m.market }

func (m *Mock) LoadCatalog(context.Context) ([]market.Instrument, error) {
	return append([]market.Instrument(nil), m.catalog...), nil
}

func (m *Mock) ServerTime(context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (m *Mock) Close() error { return nil }

// Watch walks every symbol once per Tick until ctx is done.
func (m *Mock) Watch(ctx context.Context, symbols []string, mode market.Mode, fn func(market.Quote)) error {
	bySymbol := make(map[string]market.Instrument, len(m.catalog))
	for _, in := range m.catalog {
		bySymbol[in.Symbol] = in
	}
	mids := make([]float64, len(symbols))
	for i, s := range symbols {
		in := bySymbol[s]
		mids[i] = usd(in.Base) / usd(in.Quote)
	}

	seed := m.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	h := fnv.New64a()
	h.Write([]byte(strings.Join(symbols, ",")))
	rng := rand.New(rand.NewSource(seed ^ int64(h.Sum64())))

	tick := m.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			for i, s := range symbols {
				// Random walk: ±0.01% per tick
				mids[i] += mids[i] * (rng.Float64() - 0.5) * 0.0002
				spread := mids[i] * (0.5 + rng.Float64()) * 1e-4

				q := market.Quote{Symbol: s, Time: now, Received: now}
				if mode == market.ModeTicker {
					q.Last = mids[i]
				} else {
					q.Bid, q.Ask = mids[i]-spread/2, mids[i]+spread/2
					q.BidSize = 0.1 + rng.Float64()*2.0
					q.AskSize = 0.1 + rng.Float64()*2.0
				}
				fn(q)
			}
		}
	}
}

func usd(ccy string) float64 {
	if v, ok := mockUSD[ccy]; ok {
		return v
	}
	return 1
}
