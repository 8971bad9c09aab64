// Package ipc streams leaderboards to a local consumer over a Unix socket.
package ipc

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/state"
)

// Message is the envelope sent over the socket, one JSON object per line.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher dials the consumer socket and writes one message per board.
type Publisher struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
	conn net.Conn
}

// NewPublisher connects best-effort; the consumer may not be listening yet.
func NewPublisher(path string, log zerolog.Logger) *Publisher {
	p := &Publisher{path: path, log: log.With().Str("sink", "ipc").Logger()}
	p.mu.Lock()
	if err := p.dialLocked(context.Background()); err != nil {
		p.log.Debug().Err(err).Msg("consumer not listening yet")
	}
	p.mu.Unlock()
	return p
}

func (p *Publisher) dialLocked(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", p.path)
	if err != nil {
		return err
	}
	p.conn = conn
	p.log.Info().Str("path", p.path).Msg("connected")
	return nil
}

// Publish sends the board as a "leaderboard" message. A broken connection is
// redialed once per call.
func (p *Publisher) Publish(ctx context.Context, b state.Board) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Message{Type: "leaderboard", Payload: raw})
	if err != nil {
		return err
	}
	msg = append(msg, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if p.conn == nil {
			if err = p.dialLocked(ctx); err != nil {
				continue
			}
		}
		if _, err = p.conn.Write(msg); err != nil {
			p.conn.Close()
			p.conn = nil
			continue
		}
		return nil
	}
	return err
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
