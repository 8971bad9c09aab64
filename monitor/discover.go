package monitor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/AlephTX/aleph-tx/arbmon/exchanges"
	"github.com/AlephTX/aleph-tx/arbmon/market"
	"github.com/AlephTX/aleph-tx/arbmon/relation"
)

// DiscoverTriangles loads v's catalog and enumerates its triangles.
func DiscoverTriangles(ctx context.Context, v exchanges.Venue, filter relation.CurrencyFilter) ([]relation.Relation, error) {
	cat, err := v.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return relation.FindTriangles(cat, filter), nil
}

// DiscoverPairs loads both catalogs concurrently and matches them.
func DiscoverPairs(ctx context.Context, a, b exchanges.Venue, sel relation.Selector) ([]relation.Relation, error) {
	var catA, catB []market.Instrument
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		catA, err = a.LoadCatalog(gctx)
		return err
	})
	g.Go(func() (err error) {
		catB, err = b.LoadCatalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return relation.FindPairs(catA, catB, a.Market(), b.Market(), sel), nil
}
