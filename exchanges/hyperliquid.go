package exchanges

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/market"
)

const (
	// Hyperliquid drops connections idle for 60s.
	hlPingInterval = 50 * time.Second
	// hlQuote is the settlement currency of every perpetual.
	hlQuote = "USDC"
	// hlTimeCoin is the book sampled for the server clock.
	hlTimeCoin = "BTC"
)

// Hyperliquid serves the USDC perpetuals. Symbols are coin names ("BTC").
type Hyperliquid struct {
	market market.Market
	info   string
	ws     string
	http   *http.Client
	log    zerolog.Logger
	once   sync.Once
}

type hlMeta struct {
	Universe []struct {
		Name       string `json:"name"`
		IsDelisted bool   `json:"isDelisted"`
	} `json:"universe"`
}

type hlSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

type hlRequest struct {
	Method       string          `json:"method"`
	Subscription *hlSubscription `json:"subscription,omitempty"`
}

func NewHyperliquid(m market.Market, cfg config.ExchangeConfig, log zerolog.Logger) (*Hyperliquid, error) {
	if m.Type != market.TypeSwap || m.SubType == market.SubInverse {
		return nil, &market.ConfigError{Field: "market", Value: m.String(), Reason: "hyperliquid supports linear swap only"}
	}
	h := &Hyperliquid{
		market: m,
		info:   "https://api.hyperliquid.xyz/info",
		ws:     "wss://api.hyperliquid.xyz/ws",
		http:   newHTTPClient(),
		log:    log.With().Str("venue", m.String()).Logger(),
	}
	if cfg.Testnet {
		h.info, h.ws = "https://api.hyperliquid-testnet.xyz/info", "wss://api.hyperliquid-testnet.xyz/ws"
	}
	if cfg.RESTURL != "" {
		h.info = strings.TrimRight(cfg.RESTURL, "/") + "/info"
	}
	if cfg.WSURL != "" {
		h.ws = cfg.WSURL
	}
	return h, nil
}

func (h *Hyperliquid) Name() string          { return "hyperliquid" }
func (h *Hyperliquid) Market() market.Market { return h.market }

func (h *Hyperliquid) LoadCatalog(ctx context.Context) ([]market.Instrument, error) {
	var meta hlMeta
	if err := postJSON(ctx, h.http, h.info, hlSubscription{Type: "meta"}, &meta); err != nil {
		return nil, connErr(h.market.String(), "load catalog", err)
	}
	out := make([]market.Instrument, 0, len(meta.Universe))
	for _, u := range meta.Universe {
		out = append(out, market.Instrument{
			Symbol:  u.Name,
			Base:    u.Name,
			Quote:   hlQuote,
			Type:    market.TypeSwap,
			SubType: market.SubLinear,
			Active:  !u.IsDelisted,
		})
	}
	return out, nil
}

// Watch subscribes one l2Book per coin, or the single allMids feed in ticker
// mode, filtered to symbols.
func (h *Hyperliquid) Watch(ctx context.Context, symbols []string, mode market.Mode, fn func(market.Quote)) error {
	if len(symbols) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	var subs []hlSubscription
	if mode == market.ModeTicker {
		subs = []hlSubscription{{Type: "allMids"}}
	} else {
		for _, coin := range symbols {
			subs = append(subs, hlSubscription{Type: "l2Book", Coin: coin})
		}
	}
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}

	c, err := dial(ctx, h.ws)
	if err != nil {
		return connErr(h.market.String(), "watch", err)
	}
	defer c.CloseNow()

	for i := range subs {
		if err := wsjson.Write(ctx, c, hlRequest{Method: "subscribe", Subscription: &subs[i]}); err != nil {
			return connErr(h.market.String(), "subscribe", err)
		}
	}
	h.log.Debug().Int("subscriptions", len(subs)).Msg("subscribed")

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go h.keepalive(pingCtx, c)

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return connErr(h.market.String(), "read", err)
		}
		for _, q := range parseHyperliquidFrame(data, time.Now()) {
			if _, ok := want[q.Symbol]; ok {
				fn(q)
			}
		}
	}
}

func (h *Hyperliquid) keepalive(ctx context.Context, c *websocket.Conn) {
	t := time.NewTicker(hlPingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := wsjson.Write(ctx, c, hlRequest{Method: "ping"}); err != nil {
				return
			}
		}
	}
}

// parseHyperliquidFrame decodes {"channel": ..., "data": ...} pushes.
// Subscription acks and pongs yield nothing.
func parseHyperliquidFrame(data []byte, recv time.Time) []market.Quote {
	frame := gjson.ParseBytes(data)
	d := frame.Get("data")
	switch frame.Get("channel").String() {
	case "l2Book":
		q := market.Quote{
			Symbol:   d.Get("coin").String(),
			Bid:      parseFloat(d.Get("levels.0.0.px").String()),
			BidSize:  parseFloat(d.Get("levels.0.0.sz").String()),
			Ask:      parseFloat(d.Get("levels.1.0.px").String()),
			AskSize:  parseFloat(d.Get("levels.1.0.sz").String()),
			Time:     msToTime(d.Get("time").Int()),
			Received: recv,
		}
		if q.Symbol == "" {
			return nil
		}
		return []market.Quote{q}

	case "allMids":
		var out []market.Quote
		d.Get("mids").ForEach(func(coin, px gjson.Result) bool {
			out = append(out, market.Quote{Symbol: coin.String(), Last: parseFloat(px.String()), Received: recv})
			return true
		})
		return out
	}
	return nil
}

// ServerTime reads the timestamp of a book snapshot; the info API has no
// dedicated clock endpoint.
func (h *Hyperliquid) ServerTime(ctx context.Context) (time.Time, error) {
	var book struct {
		Time int64 `json:"time"`
	}
	if err := postJSON(ctx, h.http, h.info, hlSubscription{Type: "l2Book", Coin: hlTimeCoin}, &book); err != nil {
		return time.Time{}, connErr(h.market.String(), "server time", err)
	}
	return time.UnixMilli(book.Time), nil
}

func (h *Hyperliquid) Close() error {
	h.once.Do(func() {
		h.http.CloseIdleConnections()
		h.log.Debug().Msg("closed")
	})
	return nil
}
