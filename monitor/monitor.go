// Package monitor runs the quote streams, the clock sync tasks and the
// periodic leaderboard refresh over one State Store.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlephTX/aleph-tx/arbmon/clock"
	"github.com/AlephTX/aleph-tx/arbmon/exchanges"
	"github.com/AlephTX/aleph-tx/arbmon/market"
	"github.com/AlephTX/aleph-tx/arbmon/metrics"
	"github.com/AlephTX/aleph-tx/arbmon/rank"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
	"github.com/AlephTX/aleph-tx/arbmon/state"
)

// calcLogBurst caps computation failure logs per stream and second.
const calcLogBurst = 5

var (
	ErrAlreadyStarted  = errors.New("monitor already started")
	ErrShutdownTimeout = errors.New("workers did not stop in time")
)

// Publisher receives every refreshed leaderboard.
type Publisher interface {
	Publish(ctx context.Context, b state.Board) error
}

type sink struct {
	name string
	pub  Publisher
}

// Options tunes a Monitor. Zero values fall back to the defaults noted.
type Options struct {
	TopN            int           // 20
	BatchSize       int           // 20, capped by exchanges.MaxBatch
	RefreshInterval time.Duration // 1s
	ClockSync       time.Duration // clock.DefaultInterval
	StreamRetry     time.Duration // exchanges.DefaultBackoff
	ShutdownTimeout time.Duration // 5s
}

func (o *Options) defaults() {
	if o.TopN <= 0 {
		o.TopN = 20
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = time.Second
	}
	if o.ClockSync <= 0 {
		o.ClockSync = clock.DefaultInterval
	}
	if o.StreamRetry <= 0 {
		o.StreamRetry = exchanges.DefaultBackoff
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
}

// Monitor owns the workers feeding one store. Venues are indexed by side:
// triangles use only relation.SideA.
type Monitor struct {
	store  *state.Store
	index  *relation.Index
	kind   relation.Kind
	venues []exchanges.Venue
	clocks *clock.Table
	opts   Options
	sinks  []sink
	log    zerolog.Logger

	running   atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New wires a monitor over rels. venues[side] serves the legs of that side.
func New(rels []relation.Relation, mode market.Mode, venues []exchanges.Venue, opts Options, log zerolog.Logger) *Monitor {
	opts.defaults()
	kind := relation.KindPair
	if len(rels) > 0 {
		kind = rels[0].Kind
	}
	return &Monitor{
		store:  state.NewStore(rels, mode),
		index:  relation.NewIndex(rels),
		kind:   kind,
		venues: venues,
		clocks: clock.NewTable(),
		opts:   opts,
		log:    log,
	}
}

// AddPublisher registers a leaderboard sink. Must be called before Start.
func (m *Monitor) AddPublisher(name string, p Publisher) {
	m.sinks = append(m.sinks, sink{name: name, pub: p})
}

func (m *Monitor) Store() *state.Store  { return m.store }
func (m *Monitor) Clocks() *clock.Table { return m.clocks }
func (m *Monitor) Running() bool        { return m.running.Load() }

// Start launches one worker per subscription batch per venue, one clock sync
// task per venue and the refresh task. It does not block.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)
	metrics.RelationsMonitored.Set(float64(m.store.Len()))

	g, gctx := errgroup.WithContext(ctx)
	workers := 0
	for side, v := range m.venues {
		side, v := side, v
		if v == nil {
			continue
		}
		symbols := m.index.Symbols(side)
		size := min(m.opts.BatchSize, exchanges.MaxBatch(v.Name()))
		for i, batch := range exchanges.Batches(symbols, size) {
			i, batch := i, batch
			g.Go(func() error { return m.watch(gctx, side, i, v, batch) })
			workers++
		}
		if len(symbols) > 0 {
			g.Go(func() error { return m.syncClock(gctx, v) })
		}
	}
	g.Go(func() error { return m.refresh(gctx) })

	m.log.Info().
		Int("relations", m.store.Len()).
		Int("workers", workers).
		Str("mode", m.store.Mode().String()).
		Msg("monitor started")

	done := m.done
	go func() {
		if err := g.Wait(); err != nil && !market.IsCanceled(err) {
			m.log.Error().Err(err).Msg("monitor worker failed")
		}
		close(done)
	}()
	return nil
}

// Stop flips the running flag, cancels every worker and waits for them up to
// the shutdown timeout. Venues are closed last, exactly once, whether or not
// the join completed.
func (m *Monitor) Stop() error {
	var err error
	if m.running.CompareAndSwap(true, false) {
		m.mu.Lock()
		cancel, done := m.cancel, m.done
		m.mu.Unlock()
		cancel()

		select {
		case <-done:
		case <-time.After(m.opts.ShutdownTimeout):
			err = ErrShutdownTimeout
			m.log.Warn().Dur("timeout", m.opts.ShutdownTimeout).Msg("abandoning workers still running")
		}
	}
	m.closeOnce.Do(m.closeVenues)
	return err
}

func (m *Monitor) closeVenues() {
	closed := make(map[exchanges.Venue]struct{}, len(m.venues))
	for _, v := range m.venues {
		if v == nil {
			continue
		}
		if _, dup := closed[v]; dup {
			continue
		}
		closed[v] = struct{}{}
		if err := v.Close(); err != nil {
			m.log.Warn().Err(err).Str("venue", v.Market().String()).Msg("close failed")
		}
	}
	m.log.Info().Msg("monitor stopped")
}

// Top returns the n best relations, best first. Safe to call at any time.
func (m *Monitor) Top(n int) []state.Snapshot {
	return rank.Top(m.store.Snapshot(), n, state.Snapshot.Score)
}

// Board wraps Top(n) for publishing.
func (m *Monitor) Board(n int) state.Board {
	return state.Board{Kind: m.kind.String(), At: time.Now(), Rows: m.Top(n)}
}

func (m *Monitor) watch(ctx context.Context, side, batch int, v exchanges.Venue, symbols []string) error {
	key := v.Market().String()
	name := fmt.Sprintf("%s#%d", key, batch)
	log := m.log.With().Str("venue", key).Int("side", side).Int("batch", batch).Logger()
	// a bad feed can fail every quote; keep a few per second
	calcLog := log.Sample(&zerolog.BurstSampler{Burst: calcLogBurst, Period: time.Second})

	handle := func(q market.Quote) {
		if !m.running.Load() {
			return
		}
		metrics.QuotesTotal.WithLabelValues(key).Inc()
		skew := m.clocks.Skew(key)
		for _, ref := range m.index.Lookup(side, q.Symbol) {
			err := m.store.Apply(ref, q, skew)
			if err == nil {
				continue
			}
			var cerr *market.ComputationError
			if errors.As(err, &cerr) {
				metrics.ComputationErrorsTotal.Inc()
				calcLog.Warn().Err(err).Str("relation", cerr.Relation).Msg("metric computation skipped")
				continue
			}
			log.Warn().Err(err).Str("symbol", q.Symbol).Msg("quote not applied")
		}
	}

	log.Debug().Int("symbols", len(symbols)).Msg("subscribing")
	err := exchanges.RunConnectionLoop(ctx, name, m.opts.StreamRetry, log, func(ctx context.Context) error {
		if !m.running.Load() {
			<-ctx.Done()
			return ctx.Err()
		}
		metrics.StreamConnectsTotal.WithLabelValues(key).Inc()
		err := v.Watch(ctx, symbols, m.store.Mode(), handle)
		if err != nil && ctx.Err() == nil {
			metrics.StreamErrorsTotal.WithLabelValues(key).Inc()
		}
		return err
	})
	if market.IsCanceled(err) {
		return nil
	}
	return err
}

func (m *Monitor) syncClock(ctx context.Context, v exchanges.Venue) error {
	s := &clock.Syncer{
		Table:    m.clocks,
		Interval: m.opts.ClockSync,
		Log:      m.log,
		OnSample: func(key string, o clock.Offset) {
			metrics.ClockSkewMs.WithLabelValues(key).Set(float64(o.Skew) / float64(time.Millisecond))
			metrics.ClockLatencyMs.WithLabelValues(key).Set(float64(o.Latency) / float64(time.Millisecond))
		},
	}
	return s.Run(ctx, v.Market().String(), v)
}

func (m *Monitor) refresh(ctx context.Context) error {
	t := time.NewTicker(m.opts.RefreshInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if !m.running.Load() {
			return nil
		}
		m.publish(ctx)
	}
}

func (m *Monitor) publish(ctx context.Context) {
	start := time.Now()
	b := m.Board(m.opts.TopN)
	for _, s := range m.sinks {
		if err := s.pub.Publish(ctx, b); err != nil && !market.IsCanceled(err) {
			metrics.PublishErrorsTotal.WithLabelValues(s.name).Inc()
			m.log.Warn().Err(err).Str("sink", s.name).Msg("publish failed")
		}
	}
	metrics.RefreshLatencyMs.Observe(float64(time.Since(start)) / float64(time.Millisecond))
	if len(b.Rows) > 0 {
		metrics.BestMetric.Set(b.Rows[0].Score())
	}
}
