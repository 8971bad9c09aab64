package exchanges

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// Binance serves the spot market (api.binance.com) and the USD-M futures
// market (fapi.binance.com) through combined streams.
type Binance struct {
	market   market.Market
	rest     string
	ws       string
	infoPath string
	timePath string
	http     *http.Client
	log      zerolog.Logger
	once     sync.Once
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		BaseAsset    string `json:"baseAsset"`
		QuoteAsset   string `json:"quoteAsset"`
		ContractType string `json:"contractType"`
	} `json:"symbols"`
}

func NewBinance(m market.Market, cfg config.ExchangeConfig, log zerolog.Logger) (*Binance, error) {
	b := &Binance{market: m, http: newHTTPClient(), log: log.With().Str("venue", m.String()).Logger()}
	switch {
	case m.Type == market.TypeSpot:
		b.rest, b.ws = "https://api.binance.com", "wss://stream.binance.com:9443"
		if cfg.Testnet {
			b.rest, b.ws = "https://testnet.binance.vision", "wss://stream.testnet.binance.vision"
		}
		b.infoPath, b.timePath = "/api/v3/exchangeInfo", "/api/v3/time"
	case m.SubType == market.SubLinear || m.SubType == "":
		// USD-M futures are linear; an unqualified swap or future means USD-M.
		b.rest, b.ws = "https://fapi.binance.com", "wss://fstream.binance.com"
		if cfg.Testnet {
			b.rest, b.ws = "https://testnet.binancefuture.com", "wss://stream.binancefuture.com"
		}
		b.infoPath, b.timePath = "/fapi/v1/exchangeInfo", "/fapi/v1/time"
	default:
		return nil, &market.ConfigError{Field: "market", Value: m.String(), Reason: "binance supports spot and linear swap/future"}
	}
	if cfg.RESTURL != "" {
		b.rest = strings.TrimRight(cfg.RESTURL, "/")
	}
	if cfg.WSURL != "" {
		b.ws = strings.TrimRight(cfg.WSURL, "/")
	}
	return b, nil
}

func (b *Binance) Name() string          { return "binance" }
func (b *Binance) Market() market.Market { return b.market }

func (b *Binance) LoadCatalog(ctx context.Context) ([]market.Instrument, error) {
	var info binanceExchangeInfo
	if err := getJSON(ctx, b.http, b.rest+b.infoPath, &info); err != nil {
		return nil, connErr(b.market.String(), "load catalog", err)
	}
	out := make([]market.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		in := market.Instrument{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Type:   market.TypeSpot,
			Active: s.Status == "TRADING",
		}
		if b.market.Type != market.TypeSpot {
			in.SubType = market.SubLinear
			in.Type = market.TypeFuture
			if s.ContractType == "PERPETUAL" {
				in.Type = market.TypeSwap
			}
		}
		out = append(out, in)
	}
	return out, nil
}

func (b *Binance) Watch(ctx context.Context, symbols []string, mode market.Mode, fn func(market.Quote)) error {
	if len(symbols) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	suffix := "@bookTicker"
	if mode == market.ModeTicker {
		suffix = "@ticker"
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+suffix)
	}
	url := b.ws + "/stream?streams=" + strings.Join(streams, "/")

	c, err := dial(ctx, url)
	if err != nil {
		return connErr(b.market.String(), "watch", err)
	}
	defer c.CloseNow()
	b.log.Debug().Int("streams", len(streams)).Msg("connected")

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return connErr(b.market.String(), "read", err)
		}
		if q, ok := parseBinanceFrame(data, time.Now()); ok {
			fn(q)
		}
	}
}

// parseBinanceFrame decodes one combined-stream envelope
// {"stream": "...", "data": {...}}. Payload keys are case sensitive: "e" is
// the event name, "E" the event time and "T" the futures transaction time.
func parseBinanceFrame(data []byte, recv time.Time) (market.Quote, bool) {
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
	case strings.HasSuffix(stream, "@bookTicker"):
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
			Time:     msToTime(ts),
			Received: recv,
		}, true

	case strings.HasSuffix(stream, "@ticker"):
		return market.Quote{
			Symbol:   symbol,
			Last:     parseFloat(payload.Get("c").String()),
			Time:     msToTime(payload.Get("E").Int()),
			Received: recv,
		}, true
	}
	return market.Quote{}, false
}

func (b *Binance) ServerTime(ctx context.Context) (time.Time, error) {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := getJSON(ctx, b.http, b.rest+b.timePath, &resp); err != nil {
		return time.Time{}, connErr(b.market.String(), "server time", err)
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (b *Binance) Close() error {
	b.once.Do(func() {
		b.http.CloseIdleConnections()
		b.log.Debug().Msg("closed")
	})
	return nil
}
