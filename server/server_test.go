package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/metrics"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
	"github.com/AlephTX/aleph-tx/arbmon/state"
)

type fakeBoard struct {
	running atomic.Bool
	lastN   atomic.Int64
}

func (f *fakeBoard) Running() bool { return f.running.Load() }

func (f *fakeBoard) Board(n int) state.Board {
	f.lastN.Store(int64(n))
	return state.Board{Kind: "triangle", At: time.Unix(1700000000, 0), Rows: []state.Snapshot{
		{ID: "USDT-BTC-ETH", Kind: relation.KindTriangle, NumLegs: 3, Metrics: state.Metrics{Rate: 1.001}},
	}}
}

func newServer(t *testing.T, fb *fakeBoard) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Handler(metrics.Init(zerolog.Nop()), fb, 20))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	fb := &fakeBoard{}
	srv := newServer(t, fb)

	if resp := get(t, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz = %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz before start = %d", resp.StatusCode)
	}
	fb.running.Store(true)
	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz after start = %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/metrics"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics = %d", resp.StatusCode)
	}
}

func TestTop(t *testing.T) {
	fb := &fakeBoard{}
	fb.running.Store(true)
	srv := newServer(t, fb)

	resp := get(t, srv.URL+"/top")
	var got struct {
		Kind string           `json:"kind"`
		Rows []map[string]any `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if fb.lastN.Load() != 20 || got.Kind != "triangle" || len(got.Rows) != 1 || got.Rows[0]["exchange_rate"] != 1.001 {
		t.Fatalf("n=%d body=%+v", fb.lastN.Load(), got)
	}

	get(t, srv.URL+"/top?n=100000")
	if fb.lastN.Load() != MaxTop {
		t.Fatalf("n capped to %d", fb.lastN.Load())
	}
	if resp := get(t, srv.URL+"/top?n=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad n = %d", resp.StatusCode)
	}
}
