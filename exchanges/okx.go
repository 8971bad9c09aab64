package exchanges

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
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

// OKX idles out public connections after 30s without traffic.
const okxPingInterval = 25 * time.Second

// OKX serves spot, swap and futures markets from the v5 public API.
type OKX struct {
	market   market.Market
	rest     string
	ws       string
	instType string
	http     *http.Client
	log      zerolog.Logger
	once     sync.Once
}

type okxEnvelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type okxInstrument struct {
	InstID    string `json:"instId"`
	BaseCcy   string `json:"baseCcy"`
	QuoteCcy  string `json:"quoteCcy"`
	Uly       string `json:"uly"`
	InstFam   string `json:"instFamily"`
	CtType    string `json:"ctType"`
	State     string `json:"state"`
	SettleCcy string `json:"settleCcy"`
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxRequest struct {
	Op   string   `json:"op"`
	Args []okxArg `json:"args"`
}

func NewOKX(m market.Market, cfg config.ExchangeConfig, log zerolog.Logger) (*OKX, error) {
	o := &OKX{
		market: m,
		rest:   "https://www.okx.com",
		ws:     "wss://ws.okx.com:8443/ws/v5/public",
		http:   newHTTPClient(),
		log:    log.With().Str("venue", m.String()).Logger(),
	}
	switch m.Type {
	case market.TypeSpot:
		o.instType = "SPOT"
	case market.TypeSwap:
		o.instType = "SWAP"
	case market.TypeFuture:
		o.instType = "FUTURES"
	default:
		return nil, &market.ConfigError{Field: "market", Value: m.String(), Reason: "unsupported okx market type"}
	}
	if cfg.Testnet {
		o.ws = "wss://wspap.okx.com:8443/ws/v5/public"
	}
	if cfg.RESTURL != "" {
		o.rest = strings.TrimRight(cfg.RESTURL, "/")
	}
	if cfg.WSURL != "" {
		o.ws = cfg.WSURL
	}
	return o, nil
}

func (o *OKX) Name() string          { return "okx" }
func (o *OKX) Market() market.Market { return o.market }

func (o *OKX) LoadCatalog(ctx context.Context) ([]market.Instrument, error) {
	var resp okxEnvelope[okxInstrument]
	url := o.rest + "/api/v5/public/instruments?instType=" + o.instType
	if err := getJSON(ctx, o.http, url, &resp); err != nil {
		return nil, connErr(o.market.String(), "load catalog", err)
	}
	if resp.Code != "0" {
		return nil, connErr(o.market.String(), "load catalog", fmt.Errorf("code %s: %s", resp.Code, resp.Msg))
	}
	out := make([]market.Instrument, 0, len(resp.Data))
	for _, d := range resp.Data {
		in := market.Instrument{
			Symbol: d.InstID,
			Base:   d.BaseCcy,
			Quote:  d.QuoteCcy,
			Type:   o.market.Type,
			Active: d.State == "live",
		}
		if o.market.Type != market.TypeSpot {
			in.SubType = d.CtType
			family := d.Uly
			if family == "" {
				family = d.InstFam
			}
			if base, quote, ok := strings.Cut(family, "-"); ok {
				in.Base, in.Quote = base, quote
			}
		}
		out = append(out, in)
	}
	return out, nil
}

func (o *OKX) Watch(ctx context.Context, symbols []string, mode market.Mode, fn func(market.Quote)) error {
	if len(symbols) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	channel := "bbo-tbt"
	if mode == market.ModeTicker {
		channel = "tickers"
	}
	req := okxRequest{Op: "subscribe", Args: make([]okxArg, 0, len(symbols))}
	for _, s := range symbols {
		req.Args = append(req.Args, okxArg{Channel: channel, InstID: s})
	}

	c, err := dial(ctx, o.ws)
	if err != nil {
		return connErr(o.market.String(), "watch", err)
	}
	defer c.CloseNow()

	if err := wsjson.Write(ctx, c, req); err != nil {
		return connErr(o.market.String(), "subscribe", err)
	}
	o.log.Debug().Int("args", len(req.Args)).Str("channel", channel).Msg("subscribed")

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go o.keepalive(pingCtx, c)

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return connErr(o.market.String(), "read", err)
		}
		if string(data) == "pong" {
			continue
		}
		quotes, err := parseOKXFrame(data, time.Now())
		if err != nil {
			return connErr(o.market.String(), "subscribe", err)
		}
		for _, q := range quotes {
			fn(q)
		}
	}
}

func (o *OKX) keepalive(ctx context.Context, c *websocket.Conn) {
	t := time.NewTicker(okxPingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// parseOKXFrame decodes one push frame. Event acks yield no quotes; an error
// event is returned as an error.
func parseOKXFrame(data []byte, recv time.Time) ([]market.Quote, error) {
	frame := gjson.ParseBytes(data)
	switch frame.Get("event").String() {
	case "":
	case "error":
		return nil, errors.New(frame.Get("code").String() + ": " + frame.Get("msg").String())
	default:
		return nil, nil
	}

	channel := frame.Get("arg.channel").String()
	instID := frame.Get("arg.instId").String()
	var out []market.Quote
	frame.Get("data").ForEach(func(_, d gjson.Result) bool {
		q := market.Quote{
			Symbol:   instID,
			Time:     msToTime(d.Get("ts").Int()),
			Received: recv,
		}
		switch channel {
		case "bbo-tbt", "books5", "bbo-tbt-l2":
			q.Bid = parseFloat(d.Get("bids.0.0").String())
			q.BidSize = parseFloat(d.Get("bids.0.1").String())
			q.Ask = parseFloat(d.Get("asks.0.0").String())
			q.AskSize = parseFloat(d.Get("asks.0.1").String())
		case "tickers":
			if id := d.Get("instId").String(); id != "" {
				q.Symbol = id
			}
			q.Last = parseFloat(d.Get("last").String())
		default:
			return true
		}
		out = append(out, q)
		return true
	})
	return out, nil
}

func (o *OKX) ServerTime(ctx context.Context) (time.Time, error) {
	var resp okxEnvelope[struct {
		Ts string `json:"ts"`
	}]
	if err := getJSON(ctx, o.http, o.rest+"/api/v5/public/time", &resp); err != nil {
		return time.Time{}, connErr(o.market.String(), "server time", err)
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return time.Time{}, connErr(o.market.String(), "server time", fmt.Errorf("code %s: %s", resp.Code, resp.Msg))
	}
	ms, err := strconv.ParseInt(resp.Data[0].Ts, 10, 64)
	if err != nil {
		return time.Time{}, connErr(o.market.String(), "server time", err)
	}
	return time.UnixMilli(ms), nil
}

func (o *OKX) Close() error {
	o.once.Do(func() {
		o.http.CloseIdleConnections()
		o.log.Debug().Msg("closed")
	})
	return nil
}
