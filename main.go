package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/cache"
	"github.com/AlephTX/aleph-tx/arbmon/config"
	"github.com/AlephTX/aleph-tx/arbmon/exchanges"
	"github.com/AlephTX/aleph-tx/arbmon/ipc"
	"github.com/AlephTX/aleph-tx/arbmon/logging"
	"github.com/AlephTX/aleph-tx/arbmon/market"
	"github.com/AlephTX/aleph-tx/arbmon/metrics"
	"github.com/AlephTX/aleph-tx/arbmon/monitor"
	"github.com/AlephTX/aleph-tx/arbmon/panel"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
	"github.com/AlephTX/aleph-tx/arbmon/server"
	"github.com/AlephTX/aleph-tx/arbmon/shm"
)

const usage = `usage: arbmon <command> [flags]

commands:
  triangle   rank triangular cycles on one exchange
  spread     rank cross-market spreads between two markets

run "arbmon <command> -h" for the flags of a command`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]
	if cmd != "triangle" && cmd != "spread" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cmd, os.Args[2:])
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbmon %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file (.toml, .yaml)")
	topN := fs.Int("topn", 0, "leaderboard size")
	noPanel := fs.Bool("no-panel", false, "do not render the leaderboard to stdout")
	exchange := fs.String("exchange", "", "triangle: exchange to scan")
	panelMode := fs.String("panel", "", "spread: orderbook or ticker")
	marketA := fs.String("market-a", "", "spread: market descriptor of side A, e.g. binance.spot")
	marketB := fs.String("market-b", "", "spread: market descriptor of side B, e.g. okx.swap.linear")
	quote := fs.String("quote", "", "spread: quote currency filter")
	symbols := fs.String("symbols", "", "spread: comma separated BASE-QUOTE allow-list, overrides -quote")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&cfg.Triangle.Exchange, *exchange)
	setIf(&cfg.Spread.Panel, *panelMode)
	setIf(&cfg.Spread.MarketA, *marketA)
	setIf(&cfg.Spread.MarketB, *marketB)
	setIf(&cfg.Spread.Quote, *quote)
	if *symbols != "" {
		cfg.Spread.Symbols = strings.Split(*symbols, ",")
	}
	if *topN > 0 {
		cfg.Monitor.TopN = *topN
	}
	if *noPanel {
		cfg.Publish.Panel = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.NewLogger(cfg.Log).With().Str("cmd", cmd).Logger()

	var (
		mon    *monitor.Monitor
		venues []exchanges.Venue
	)
	switch cmd {
	case "triangle":
		mon, venues, err = buildTriangle(ctx, cfg, log)
	default:
		mon, venues, err = buildSpread(ctx, cfg, log)
	}
	if err != nil {
		for _, v := range venues {
			v.Close()
		}
		return err
	}

	closers, err := attachSinks(ctx, cfg, mon, log)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if err != nil {
		mon.Stop()
		return err
	}

	if cfg.HTTP.Addr != "" {
		reg := metrics.Init(log)
		go func() {
			if err := server.Serve(ctx, cfg.HTTP.Addr, server.Handler(reg, mon, cfg.Monitor.TopN), log); err != nil {
				log.Error().Err(err).Msg("http server failed")
			}
		}()
	}

	if err := mon.Start(ctx); err != nil {
		mon.Stop()
		return err
	}
	<-ctx.Done()
	log.Info().Msg("shutting down")
	if err := mon.Stop(); err != nil {
		log.Warn().Err(err).Msg("unclean shutdown")
	}
	return nil
}

func monitorOptions(cfg *config.Config, batch int) monitor.Options {
	return monitor.Options{
		TopN:            cfg.Monitor.TopN,
		BatchSize:       batch,
		RefreshInterval: cfg.Monitor.RefreshInterval.Duration,
		ClockSync:       cfg.Monitor.ClockSync.Duration,
		StreamRetry:     cfg.Monitor.StreamRetry.Duration,
		ShutdownTimeout: cfg.Monitor.ShutdownTimeout.Duration,
	}
}

func buildTriangle(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*monitor.Monitor, []exchanges.Venue, error) {
	m, err := market.ParseMarket(cfg.Triangle.Exchange + "." + market.TypeSpot)
	if err != nil {
		return nil, nil, err
	}
	v, err := exchanges.New(m, cfg.Exchange(m.Exchange), log)
	if err != nil {
		return nil, nil, err
	}
	venues := []exchanges.Venue{v}

	rels, err := monitor.DiscoverTriangles(ctx, v, relation.NewCurrencyFilter(cfg.Triangle.Stablecoins, cfg.Triangle.Fiat))
	if err != nil {
		return nil, venues, fmt.Errorf("load catalog: %w", err)
	}
	log.Info().Str("market", m.String()).Int("triangles", len(rels)).Msg("relations discovered")
	return monitor.New(rels, market.ModeOrderbook, venues, monitorOptions(cfg, cfg.Triangle.BatchSize), log), venues, nil
}

func buildSpread(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*monitor.Monitor, []exchanges.Venue, error) {
	mode, err := market.ParseMode(cfg.Spread.Panel)
	if err != nil {
		return nil, nil, err
	}
	var venues []exchanges.Venue
	for _, desc := range []string{cfg.Spread.MarketA, cfg.Spread.MarketB} {
		m, err := market.ParseMarket(desc)
		if err != nil {
			return nil, venues, err
		}
		v, err := exchanges.New(m, cfg.Exchange(m.Exchange), log)
		if err != nil {
			return nil, venues, err
		}
		venues = append(venues, v)
	}

	sel := relation.Selector{Quote: cfg.Spread.Quote, Symbols: cfg.Spread.Symbols}
	rels, err := monitor.DiscoverPairs(ctx, venues[relation.SideA], venues[relation.SideB], sel)
	if err != nil {
		return nil, venues, fmt.Errorf("load catalog: %w", err)
	}
	log.Info().
		Str("market_a", cfg.Spread.MarketA).
		Str("market_b", cfg.Spread.MarketB).
		Str("panel", mode.String()).
		Int("pairs", len(rels)).
		Msg("relations discovered")
	return monitor.New(rels, mode, venues, monitorOptions(cfg, cfg.Spread.BatchSize), log), venues, nil
}

// attachSinks registers every configured publisher and returns their
// closers, also on error.
func attachSinks(ctx context.Context, cfg *config.Config, mon *monitor.Monitor, log zerolog.Logger) ([]func(), error) {
	var closers []func()
	if cfg.Publish.Panel {
		mon.AddPublisher("panel", panel.New(os.Stdout, true))
	}
	if cfg.Publish.IPCSocket != "" {
		p := ipc.NewPublisher(cfg.Publish.IPCSocket, log)
		mon.AddPublisher("ipc", p)
		closers = append(closers, func() { p.Close() })
	}
	if cfg.Publish.SHMPath != "" {
		b, err := shm.NewBoard(cfg.Publish.SHMPath, cfg.Monitor.TopN)
		if err != nil {
			return closers, fmt.Errorf("shm: %w", err)
		}
		mon.AddPublisher("shm", b)
		closers = append(closers, func() { b.Close() })
	}
	if cfg.Publish.RedisAddr != "" {
		c, err := cache.New(ctx, cfg.Publish.RedisAddr, cfg.Publish.RedisKey, cfg.Publish.RedisTTL.Duration)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return closers, err
			}
			log.Warn().Err(err).Str("addr", cfg.Publish.RedisAddr).Msg("redis sink disabled")
		} else {
			mon.AddPublisher("redis", c)
			closers = append(closers, func() { c.Close() })
		}
	}
	return closers, nil
}
