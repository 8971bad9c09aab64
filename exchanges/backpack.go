package exchanges

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"nhooyr.io/websocket/wsjson"

	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// Backpack serves spot (SOL_USDC) and USDC-margined perpetual
// (SOL_USDC_PERP) markets.
type Backpack struct {
	market market.Market
	rest   string
	ws     string
	http   *http.Client
	log    zerolog.Logger
	once   sync.Once
}

type backpackMarket struct {
	Symbol         string `json:"symbol"`
	BaseSymbol     string `json:"baseSymbol"`
	QuoteSymbol    string `json:"quoteSymbol"`
	MarketType     string `json:"marketType"`
	OrderBookState string `json:"orderBookState"`
}

type backpackRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

func NewBackpack(m market.Market, cfg config.ExchangeConfig, log zerolog.Logger) (*Backpack, error) {
	switch {
	case m.Type == market.TypeSpot:
	case m.Type == market.TypeSwap && m.SubType != market.SubInverse:
	default:
		return nil, &market.ConfigError{Field: "market", Value: m.String(), Reason: "backpack supports spot and linear swap"}
	}
	b := &Backpack{
		market: m,
		rest:   "https://api.backpack.exchange",
		ws:     "wss://ws.backpack.exchange",
		http:   newHTTPClient(),
		log:    log.With().Str("venue", m.String()).Logger(),
	}
	if cfg.RESTURL != "" {
		b.rest = strings.TrimRight(cfg.RESTURL, "/")
	}
	if cfg.WSURL != "" {
		b.ws = cfg.WSURL
	}
	return b, nil
}

func (b *Backpack) Name() string          { return "backpack" }
func (b *Backpack) Market() market.Market { return b.market }

func (b *Backpack) LoadCatalog(ctx context.Context) ([]market.Instrument, error) {
	var markets []backpackMarket
	if err := getJSON(ctx, b.http, b.rest+"/api/v1/markets", &markets); err != nil {
		return nil, connErr(b.market.String(), "load catalog", err)
	}
	out := make([]market.Instrument, 0, len(markets))
	for _, m := range markets {
		in := market.Instrument{
			Symbol: m.Symbol,
			Base:   m.BaseSymbol,
			Quote:  m.QuoteSymbol,
			Active: m.OrderBookState == "Open",
		}
		switch m.MarketType {
		case "SPOT":
			in.Type = market.TypeSpot
		case "PERP":
			in.Type, in.SubType = market.TypeSwap, market.SubLinear
		default:
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (b *Backpack) Watch(ctx context.Context, symbols []string, mode market.Mode, fn func(market.Quote)) error {
	if len(symbols) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	prefix := "bookTicker."
	if mode == market.ModeTicker {
		prefix = "ticker."
	}
	req := backpackRequest{Method: "SUBSCRIBE", Params: make([]string, 0, len(symbols))}
	for _, s := range symbols {
		req.Params = append(req.Params, prefix+s)
	}

	c, err := dial(ctx, b.ws)
	if err != nil {
		return connErr(b.market.String(), "watch", err)
	}
	defer c.CloseNow()

	if err := wsjson.Write(ctx, c, req); err != nil {
		return connErr(b.market.String(), "subscribe", err)
	}
	b.log.Debug().Int("streams", len(req.Params)).Msg("subscribed")

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return connErr(b.market.String(), "read", err)
		}
		if q, ok := parseBackpackFrame(data, time.Now()); ok {
			fn(q)
		}
	}
}

// parseBackpackFrame decodes {"stream": "bookTicker.SOL_USDC", "data": {...}}.
// Payload keys are matched exactly: "e" is the event name and "E" the event
// time. Timestamps are microseconds.
func parseBackpackFrame(data []byte, recv time.Time) (market.Quote, bool) {
	stream := gjson.GetBytes(data, "stream").String()
	payload := gjson.GetBytes(data, "data")
	if !payload.IsObject() {
		return market.Quote{}, false
	}
	symbol := payload.Get("s").String()
	if symbol == "" {
		return market.Quote{}, false
	}

	switch {
	case strings.HasPrefix(stream, "bookTicker."):
		ts := payload.Get("T").Int()
		if ts == 0 {
			ts = payload.Get("E").Int()
		}
		return market.Quote{
			Symbol:   symbol,
			Bid:      parseFloat(payload.Get("b").String()),
			BidSize:  parseFloat(payload.Get("B").String()),
			Ask:      parseFloat(payload.Get("a").String()),
			AskSize:  parseFloat(payload.Get("A").String()),
			Time:     usToTime(ts),
			Received: recv,
		}, true

	case strings.HasPrefix(stream, "ticker."):
		return market.Quote{
			Symbol:   symbol,
			Last:     parseFloat(payload.Get("c").String()),
			Time:     usToTime(payload.Get("E").Int()),
			Received: recv,
		}, true
	}
	return market.Quote{}, false
}

// ServerTime reads /api/v1/time, a bare millisecond number.
func (b *Backpack) ServerTime(ctx context.Context) (time.Time, error) {
	var ms int64
	if err := getJSON(ctx, b.http, b.rest+"/api/v1/time", &ms); err != nil {
		return time.Time{}, connErr(b.market.String(), "server time", err)
	}
	return time.UnixMilli(ms), nil
}

func (b *Backpack) Close() error {
	b.once.Do(func() {
		b.http.CloseIdleConnections()
		b.log.Debug().Msg("closed")
	})
	return nil
}
