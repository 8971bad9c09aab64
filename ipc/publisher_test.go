package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/relation"
	"github.com/AlephTX/aleph-tx/arbmon/state"
)

func board() state.Board {
	return state.Board{
		Kind: "spread",
		At:   time.Unix(1700000000, 0),
		Rows: []state.Snapshot{{
			ID:      "BTCUSDT-BTC-USDT-SWAP",
			Kind:    relation.KindPair,
			NumLegs: 2,
			Metrics: state.Metrics{SpreadPct: 0.01},
		}},
	}
}

func TestPublishLateConsumer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arb.sock")
	p := NewPublisher(path, zerolog.Nop())
	defer p.Close()

	if err := p.Publish(context.Background(), board()); err == nil {
		t.Fatal("expected an error with no consumer listening")
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	lines := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		if sc.Scan() {
			lines <- append([]byte(nil), sc.Bytes()...)
		}
	}()

	if err := p.Publish(context.Background(), board()); err != nil {
		t.Fatalf("publish after consumer came up: %v", err)
	}

	select {
	case line := <-lines:
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "leaderboard" {
			t.Fatalf("type = %q", msg.Type)
		}
		var payload struct {
			Kind string           `json:"kind"`
			Rows []map[string]any `json:"rows"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Kind != "spread" || len(payload.Rows) != 1 || payload.Rows[0]["pair_name"] != "BTCUSDT-BTC-USDT-SWAP" || payload.Rows[0]["spread_pct"] != 0.01 {
			t.Fatalf("payload = %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer received nothing")
	}
}
