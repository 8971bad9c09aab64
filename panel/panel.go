// Package panel renders the leaderboard as an aligned text table.
package panel

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/AlephTX/aleph-tx/arbmon/market"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
	"github.com/AlephTX/aleph-tx/arbmon/state"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// Panel writes one table per published board.
type Panel struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool
}

// New renders to w. With clear set every board starts on a fresh screen.
func New(w io.Writer, clear bool) *Panel {
	return &Panel{w: w, clear: clear}
}

func (p *Panel) Publish(_ context.Context, b state.Board) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clear {
		if _, err := io.WriteString(p.w, clearScreen); err != nil {
			return err
		}
	}
	return Render(p.w, b)
}

// Render writes the board using the columns of its relation kind and mode.
func Render(w io.Writer, b state.Board) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s  %d rows  %s\n", b.Kind, len(b.Rows), b.At.Format("15:04:05"))

	var mode market.Mode
	kind := relation.KindTriangle
	if len(b.Rows) > 0 {
		kind, mode = b.Rows[0].Kind, b.Rows[0].Mode
	} else if b.Kind != relation.KindTriangle.String() {
		kind = relation.KindPair
	}

	switch {
	case kind == relation.KindTriangle:
		fmt.Fprintln(tw, "#\tTRIANGLE\tRATE\tABC\tACB\tBAC\tBCA\tCAB\tCBA\tBID/ASK A\tBID/ASK B\tBID/ASK C\tELAPSED")
		for i, s := range b.Rows {
			m := s.Metrics
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				i, s.ID, rate(m.Rate),
				rate(m.Rates[state.RateABC]), rate(m.Rates[state.RateACB]), rate(m.Rates[state.RateBAC]),
				rate(m.Rates[state.RateBCA]), rate(m.Rates[state.RateCAB]), rate(m.Rates[state.RateCBA]),
				pair(s.Legs[0].Bid, s.Legs[0].Ask), pair(s.Legs[1].Bid, s.Legs[1].Ask), pair(s.Legs[2].Bid, s.Legs[2].Ask),
				ms(s.ElapsedMs))
		}
	case mode == market.ModeTicker:
		fmt.Fprintln(tw, "#\tPAIR\tSPREAD%\tSPREAD\tLAST A\tLAST B\tELAPSED A\tELAPSED B")
		for i, s := range b.Rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				i, s.ID, pct(s.Metrics.SpreadPct), num(s.Metrics.Spread),
				num(s.Legs[0].Last), num(s.Legs[1].Last),
				ms(s.Legs[0].ElapsedMs), ms(s.Legs[1].ElapsedMs))
		}
	default:
		fmt.Fprintln(tw, "#\tPAIR\tSPREAD\tBUY A SELL B\tBUY B SELL A\tBID/SIZE A\tASK/SIZE A\tBID/SIZE B\tASK/SIZE B\tELAPSED A/B")
		for i, s := range b.Rows {
			a, bl := s.Legs[0], s.Legs[1]
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s/%s\n",
				i, s.ID, pct(s.Metrics.SpreadPct), pct(s.Metrics.BuyASellBPct), pct(s.Metrics.BuyBSellAPct),
				pair(a.Bid, a.BidSize), pair(a.Ask, a.AskSize), pair(bl.Bid, bl.BidSize), pair(bl.Ask, bl.AskSize),
				ms(a.ElapsedMs), ms(bl.ElapsedMs))
		}
	}
	return tw.Flush()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func pair(x, y float64) string { return num(x) + "/" + num(y) }

func rate(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func pct(v float64) string { return strconv.FormatFloat(v*100, 'f', 4, 64) + "%" }

func ms(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + "ms" }
