package exchanges

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/market"
)

// DefaultBackoff is the pause between a failed stream and its reconnect.
const DefaultBackoff = 5 * time.Second

// Venue is one market of one exchange: its catalog, its quote streams and its
// server clock.
type Venue interface {
	Name() string
	Market() market.Market

	// LoadCatalog lists the venue's instruments. Failures are
	// *market.ConnectivityError.
	LoadCatalog(ctx context.Context) ([]market.Instrument, error)

	// Watch streams quotes for symbols into fn until the stream fails or ctx
	// is done, in which case it returns ctx.Err(). fn runs on the stream's
	// goroutine.
	Watch(ctx context.Context, symbols []string, mode market.Mode, fn func(market.Quote)) error

	ServerTime(ctx context.Context) (time.Time, error)

	// Close releases connection resources. Safe to call more than once.
	Close() error
}

// ConnectFunc represents one websocket session.
type ConnectFunc func(ctx context.Context) error

// RunConnectionLoop keeps connect running, reconnecting after backoff
// whenever it returns. It only returns once ctx is done.
func RunConnectionLoop(ctx context.Context, name string, backoff time.Duration, log zerolog.Logger, connect ConnectFunc) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	for {
		err := connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev := log.Warn().Str("stream", name).Dur("backoff", backoff)
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Batches splits symbols into consecutive chunks of at most size.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for len(symbols) > 0 {
		n := min(size, len(symbols))
		out = append(out, symbols[:n:n])
		symbols = symbols[n:]
	}
	return out
}
