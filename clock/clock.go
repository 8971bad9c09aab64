package clock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// DefaultInterval is how often each venue is re-measured.
const DefaultInterval = 10 * time.Second

// Offset is one latency/skew estimate for a venue.
type Offset struct {
	Latency time.Duration // half the measured round trip
	Skew    time.Duration // local clock minus venue clock
	At      time.Time
}

// Source answers server-time requests. Every exchanges.Venue is one.
type Source interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Table holds the latest estimate per venue key. A newer sample replaces the
// previous one; there is no smoothing.
type Table struct {
	mu sync.RWMutex
	m  map[string]Offset
}

func NewTable() *Table {
	return &Table{m: make(map[string]Offset)}
}

func (t *Table) Set(key string, o Offset) {
	t.mu.Lock()
	t.m[key] = o
	t.mu.Unlock()
}

func (t *Table) Get(key string) (Offset, bool) {
	t.mu.RLock()
	o, ok := t.m[key]
	t.mu.RUnlock()
	return o, ok
}

// Skew returns the venue's skew, zero until the first successful sample.
func (t *Table) Skew(key string) time.Duration {
	o, _ := t.Get(key)
	return o.Skew
}

// All copies the table.
func (t *Table) All() map[string]Offset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Offset, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}

// Measure performs one round trip against src.
func Measure(ctx context.Context, src Source, now func() time.Time) (Offset, error) {
	send := now()
	server, err := src.ServerTime(ctx)
	if err != nil {
		return Offset{}, err
	}
	recv := now()
	latency := recv.Sub(send) / 2
	return Offset{
		Latency: latency,
		Skew:    recv.Sub(server.Add(latency)),
		At:      recv,
	}, nil
}

// Syncer periodically refreshes a Table.
type Syncer struct {
	Table    *Table
	Interval time.Duration
	Now      func() time.Time
	Log      zerolog.Logger

	// OnSample, when set, observes every successful measurement.
	OnSample func(key string, o Offset)
}

// Run measures src immediately and then every Interval until ctx is done.
// Failures are logged and the previous estimate is kept. Run returns nil on
// cancellation.
func (s *Syncer) Run(ctx context.Context, key string, src Source) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	log := s.Log.With().Str("venue", key).Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o, err := Measure(ctx, src, now)
		switch {
		case err == nil:
			s.Table.Set(key, o)
			if s.OnSample != nil {
				s.OnSample(key, o)
			}
			log.Debug().Dur("latency", o.Latency).Dur("skew", o.Skew).Msg("clock synced")
		case market.IsCanceled(err) && ctx.Err() != nil:
			return nil
		default:
			log.Warn().Err(err).Msg("clock sync failed, keeping previous offset")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
