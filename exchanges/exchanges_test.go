package exchanges

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/market"
)

var recv = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestParseBinanceBookTicker(t *testing.T) {
	frame := `{"stream":"btcusdt@bookTicker","data":{"e":"bookTicker","u":400900217,"E":1568014460893,"T":1568014460891,"s":"BTCUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}}`
	q, ok := parseBinanceFrame([]byte(frame), recv)
	if !ok {
		t.Fatal("frame not parsed")
	}
	if q.Symbol != "BTCUSDT" || q.Bid != 25.3519 || q.BidSize != 31.21 || q.Ask != 25.3652 || q.AskSize != 40.66 {
		t.Fatalf("quote = %+v", q)
	}
	if q.Time.UnixMilli() != 1568014460891 || !q.Received.Equal(recv) {
		t.Fatalf("timestamps = %v / %v", q.Time, q.Received)
	}
}

func TestParseBinanceSpotBookTickerHasNoTimestamp(t *testing.T) {
	frame := `{"stream":"ethbtc@bookTicker","data":{"u":1,"s":"ETHBTC","b":"0.05","B":"1","a":"0.0501","A":"2"}}`
	q, ok := parseBinanceFrame([]byte(frame), recv)
	if !ok || !q.Time.IsZero() || !q.Stamp().Equal(recv) {
		t.Fatalf("quote = %+v", q)
	}
}

func TestParseBinanceTicker(t *testing.T) {
	frame := `{"stream":"bnbbtc@ticker","data":{"e":"24hrTicker","E":123456789,"s":"BNBBTC","c":"0.0025","o":"0.0010"}}`
	q, ok := parseBinanceFrame([]byte(frame), recv)
	if !ok || q.Symbol != "BNBBTC" || q.Last != 0.0025 || q.Time.UnixMilli() != 123456789 {
		t.Fatalf("quote = %+v ok=%v", q, ok)
	}
	for _, junk := range []string{`{"result":null,"id":1}`, `not json`, `{"stream":"x@depth","data":{}}`, `{"stream":"x@bookTicker","data":{"e":"bookTicker","E":1}}`} {
		if _, ok := parseBinanceFrame([]byte(junk), recv); ok {
			t.Fatalf("junk frame %q parsed", junk)
		}
	}
}

func TestParseOKXFrames(t *testing.T) {
	bbo := `{"arg":{"channel":"bbo-tbt","instId":"BCH-USDT-SWAP"},"data":[{"asks":[["111.06","55154","0","2"]],"bids":[["111.05","57745","0","2"]],"ts":"1670324386802","seqId":363996337}]}`
	qs, err := parseOKXFrame([]byte(bbo), recv)
	if err != nil || len(qs) != 1 {
		t.Fatalf("bbo: %v %v", qs, err)
	}
	q := qs[0]
	if q.Symbol != "BCH-USDT-SWAP" || q.Bid != 111.05 || q.Ask != 111.06 || q.BidSize != 57745 || q.Time.UnixMilli() != 1670324386802 {
		t.Fatalf("bbo quote = %+v", q)
	}

	tick := `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instType":"SPOT","instId":"BTC-USDT","last":"9999.99","ts":"1597026383085"}]}`
	qs, err = parseOKXFrame([]byte(tick), recv)
	if err != nil || len(qs) != 1 || qs[0].Last != 9999.99 || qs[0].Symbol != "BTC-USDT" {
		t.Fatalf("tickers: %+v %v", qs, err)
	}

	ack := `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"},"connId":"a4d3ae55"}`
	if qs, err := parseOKXFrame([]byte(ack), recv); err != nil || len(qs) != 0 {
		t.Fatalf("ack: %v %v", qs, err)
	}
	bad := `{"event":"error","code":"60012","msg":"Invalid request"}`
	if _, err := parseOKXFrame([]byte(bad), recv); err == nil || !strings.Contains(err.Error(), "60012") {
		t.Fatalf("expected error event, got %v", err)
	}
}

func TestBinanceCatalogAndTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(`{"symbols":[
				{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","contractType":"PERPETUAL"},
				{"symbol":"BTCUSDT_250328","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","contractType":"CURRENT_QUARTER"},
				{"symbol":"LUNAUSDT","status":"SETTLING","baseAsset":"LUNA","quoteAsset":"USDT","contractType":"PERPETUAL"}]}`))
		case "/fapi/v1/time":
			w.Write([]byte(`{"serverTime":1499827319559}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := market.Market{Exchange: "binance", Type: market.TypeSwap, SubType: market.SubLinear}
	b, err := NewBinance(m, config.ExchangeConfig{RESTURL: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	cat, err := b.LoadCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cat) != 3 || cat[0].Type != market.TypeSwap || cat[1].Type != market.TypeFuture || cat[2].Active {
		t.Fatalf("catalog = %+v", cat)
	}
	if !m.Matches(cat[0]) || m.Matches(cat[1]) {
		t.Fatal("market filter should keep the perpetual only")
	}

	ts, err := b.ServerTime(context.Background())
	if err != nil || ts.UnixMilli() != 1499827319559 {
		t.Fatalf("server time = %v, %v", ts, err)
	}
}

func TestCatalogFailureIsConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o, err := NewOKX(market.Market{Exchange: "okx", Type: market.TypeSpot}, config.ExchangeConfig{RESTURL: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = o.LoadCatalog(context.Background())
	var cerr *market.ConnectivityError
	if !errors.As(err, &cerr) || cerr.Venue != "okx.spot" {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}

func TestOKXCatalogDerivesSwapPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instType") != "SWAP" {
			t.Errorf("instType = %q", r.URL.Query().Get("instType"))
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"BTC-USDT-SWAP","uly":"BTC-USDT","ctType":"linear","state":"live","baseCcy":"","quoteCcy":""},
			{"instId":"BTC-USD-SWAP","uly":"BTC-USD","ctType":"inverse","state":"live"}]}`))
	}))
	defer srv.Close()

	m := market.Market{Exchange: "okx", Type: market.TypeSwap, SubType: market.SubLinear}
	o, _ := NewOKX(m, config.ExchangeConfig{RESTURL: srv.URL}, zerolog.Nop())
	cat, err := o.LoadCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cat) != 2 || cat[0].Base != "BTC" || cat[0].Quote != "USDT" || cat[1].SubType != market.SubInverse {
		t.Fatalf("catalog = %+v", cat)
	}
	if !m.Matches(cat[0]) || m.Matches(cat[1]) {
		t.Fatal("linear filter mismatch")
	}
}

func TestBinanceWatchOverWebsocket(t *testing.T) {
	var gotStreams atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStreams.Store(r.URL.Query().Get("streams"))
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		frame := `{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"100","B":"1","a":"101","A":"2"}}`
		_ = c.Write(r.Context(), websocket.MessageText, []byte(frame))
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	cfg := config.ExchangeConfig{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	b, _ := NewBinance(market.Market{Exchange: "binance", Type: market.TypeSpot}, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan market.Quote, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- b.Watch(ctx, []string{"BTCUSDT", "ETHUSDT"}, market.ModeOrderbook, func(q market.Quote) {
			select {
			case got <- q:
			default:
			}
		})
	}()

	select {
	case q := <-got:
		if q.Symbol != "BTCUSDT" || q.Bid != 100 || q.Ask != 101 {
			t.Fatalf("quote = %+v", q)
		}
	case <-ctx.Done():
		t.Fatal("no quote delivered")
	}
	if s, _ := gotStreams.Load().(string); s != "btcusdt@bookTicker/ethusdt@bookTicker" {
		t.Fatalf("streams = %q", s)
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Watch returned %v after cancel", err)
	}
}

func TestOKXWatchSubscribes(t *testing.T) {
	subs := make(chan okxRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		var req okxRequest
		if err := wsjson.Read(r.Context(), c, &req); err != nil {
			return
		}
		subs <- req
		_ = c.Write(r.Context(), websocket.MessageText, []byte(`{"event":"subscribe","arg":{"channel":"tickers","instId":"ETH-USDT"}}`))
		_ = c.Write(r.Context(), websocket.MessageText, []byte(`{"arg":{"channel":"tickers","instId":"ETH-USDT"},"data":[{"instId":"ETH-USDT","last":"1800.5","ts":"1"}]}`))
		_ = c.Write(r.Context(), websocket.MessageText, []byte(`{"event":"error","code":"60018","msg":"doesn't exist"}`))
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	cfg := config.ExchangeConfig{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	o, _ := NewOKX(market.Market{Exchange: "okx", Type: market.TypeSpot}, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var quotes []market.Quote
	err := o.Watch(ctx, []string{"ETH-USDT"}, market.ModeTicker, func(q market.Quote) { quotes = append(quotes, q) })

	req := <-subs
	if req.Op != "subscribe" || len(req.Args) != 1 || req.Args[0] != (okxArg{Channel: "tickers", InstID: "ETH-USDT"}) {
		t.Fatalf("subscribe request = %+v", req)
	}
	if len(quotes) != 1 || quotes[0].Last != 1800.5 {
		t.Fatalf("quotes = %+v", quotes)
	}
	var cerr *market.ConnectivityError
	if !errors.As(err, &cerr) || !strings.Contains(err.Error(), "60018") {
		t.Fatalf("expected the error event to end the stream, got %v", err)
	}
}

func TestRunConnectionLoopReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	err := RunConnectionLoop(ctx, "test", time.Millisecond, zerolog.Nop(), func(ctx context.Context) error {
		if calls.Add(1) == 3 {
			cancel()
			return ctx.Err()
		}
		return errors.New("dropped")
	})
	if !errors.Is(err, context.Canceled) || calls.Load() != 3 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
}

func TestRunConnectionLoopStopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunConnectionLoop(ctx, "test", time.Hour, zerolog.Nop(), func(context.Context) error {
			return errors.New("dropped")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop ignored cancellation during backoff")
	}
}

func TestBatches(t *testing.T) {
	got := Batches([]string{"a", "b", "c", "d", "e"}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[1][0] != "c" {
		t.Fatalf("batches = %v", got)
	}
	got[0] = append(got[0], "x")
	if got[1][0] != "c" {
		t.Fatal("appending to a batch must not clobber the next one")
	}
	if Batches(nil, 3) != nil {
		t.Fatal("expected no batches")
	}
}

func TestRegistry(t *testing.T) {
	for _, desc := range []string{"binance.spot", "binance.swap", "binance.swap.linear", "binance.future", "okx.future.inverse", "backpack.spot", "hyperliquid.swap.linear", "mock.spot"} {
		m, err := market.ParseMarket(desc)
		if err != nil {
			t.Fatal(err)
		}
		v, err := New(m, config.ExchangeConfig{}, zerolog.Nop())
		if err != nil {
			t.Fatalf("%s: %v", desc, err)
		}
		if v.Market() != m {
			t.Fatalf("%s: market = %v", desc, v.Market())
		}
	}
	for _, desc := range []string{"kraken.spot", "binance.swap.inverse", "hyperliquid.spot"} {
		m, _ := market.ParseMarket(desc)
		v, err := New(m, config.ExchangeConfig{}, zerolog.Nop())
		var cerr *market.ConfigError
		if !errors.As(err, &cerr) || v != nil {
			t.Fatalf("%s: expected config error, got %v / %v", desc, v, err)
		}
	}
	if MaxBatch("okx") != 100 || MaxBatch("binance") != 200 {
		t.Fatal("unexpected batch caps")
	}
}

func TestRegistryRefusesDisabledExchange(t *testing.T) {
	m := market.Market{Exchange: "binance", Type: market.TypeSpot}
	v, err := New(m, config.ExchangeConfig{Disabled: true}, zerolog.Nop())
	var cerr *market.ConfigError
	if !errors.As(err, &cerr) || v != nil || cerr.Field != "exchanges.binance.disabled" {
		t.Fatalf("expected config error, got %v / %v", v, err)
	}
}

func TestBinanceUnqualifiedSwapIsUSDM(t *testing.T) {
	for _, desc := range []string{"binance.swap", "binance.future"} {
		m, _ := market.ParseMarket(desc)
		b, err := NewBinance(m, config.ExchangeConfig{}, zerolog.Nop())
		if err != nil {
			t.Fatalf("%s: %v", desc, err)
		}
		if b.rest != "https://fapi.binance.com" || b.infoPath != "/fapi/v1/exchangeInfo" {
			t.Fatalf("%s: rest = %s%s", desc, b.rest, b.infoPath)
		}
	}
}

func TestMockWatch(t *testing.T) {
	m := NewMock(market.Market{Exchange: "mock", Type: market.TypeSpot}, config.ExchangeConfig{})
	m.Tick = time.Millisecond
	m.Seed = 42
	cat, _ := m.LoadCatalog(context.Background())
	if len(cat) != len(mockPairs) || cat[0].Symbol != "BNBBTC" {
		t.Fatalf("catalog = %+v", cat)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	err := m.Watch(ctx, []string{"BTCUSDT", "ETHBTC"}, market.ModeOrderbook, func(q market.Quote) {
		if q.Bid <= 0 || q.Ask <= q.Bid {
			t.Errorf("crossed or empty book %+v", q)
		}
		if q.Symbol == "ETHBTC" && (q.Bid < 0.02 || q.Bid > 0.04) {
			t.Errorf("ETHBTC off its cross rate: %v", q.Bid)
		}
		if n.Add(1) >= 20 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Watch returned %v", err)
	}
}
