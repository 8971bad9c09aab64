package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AlephTX/aleph-tx/arbmon/relation"
	"github.com/AlephTX/aleph-tx/arbmon/state"
)

type fakeRedis struct {
	strings map[string][]byte
	zsets   map[string][]redis.Z
	ttls    map[string]time.Duration
	setErr  error
	txs     [][]string // command names of each committed transaction
}

func newFake() *fakeRedis {
	return &fakeRedis{strings: map[string][]byte{}, zsets: map[string][]redis.Z{}, ttls: map[string]time.Duration{}}
}

// TxPipelined queues the commands and applies them only after fn returns,
// all or nothing.
func (f *fakeRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &fakePipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	var names []string
	for _, op := range pipe.ops {
		if op.name == "set" && f.setErr != nil {
			return nil, f.setErr
		}
		names = append(names, op.name)
	}
	for _, op := range pipe.ops {
		op.apply(f)
	}
	f.txs = append(f.txs, names)
	return nil, nil
}

func (f *fakeRedis) Close() error { return nil }

type fakeOp struct {
	name  string
	apply func(*fakeRedis)
}

// fakePipe overrides the commands Publish queues; anything else panics on
// the nil embedded Pipeliner.
type fakePipe struct {
	redis.Pipeliner
	ops []fakeOp
}

func (p *fakePipe) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	p.ops = append(p.ops, fakeOp{"set", func(f *fakeRedis) {
		f.strings[key] = value.([]byte)
		f.ttls[key] = exp
	}})
	return redis.NewStatusResult("OK", nil)
}

func (p *fakePipe) Del(_ context.Context, keys ...string) *redis.IntCmd {
	p.ops = append(p.ops, fakeOp{"del", func(f *fakeRedis) {
		for _, k := range keys {
			delete(f.zsets, k)
			delete(f.strings, k)
		}
	}})
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (p *fakePipe) ZAdd(_ context.Context, key string, members ...redis.Z) *redis.IntCmd {
	p.ops = append(p.ops, fakeOp{"zadd", func(f *fakeRedis) {
		f.zsets[key] = append(f.zsets[key], members...)
	}})
	return redis.NewIntResult(int64(len(members)), nil)
}

func (p *fakePipe) Expire(_ context.Context, key string, exp time.Duration) *redis.BoolCmd {
	p.ops = append(p.ops, fakeOp{"expire", func(f *fakeRedis) { f.ttls[key] = exp }})
	return redis.NewBoolResult(true, nil)
}

func TestPublishStoresBoardAndScores(t *testing.T) {
	f := newFake()
	p := newPublisher(f, "arbmon:top", 10*time.Second)

	b := state.Board{Kind: "triangle", At: time.Unix(1700000000, 0), Rows: []state.Snapshot{
		{ID: "USDT-BTC-ETH", Kind: relation.KindTriangle, NumLegs: 3, Metrics: state.Metrics{Rate: 1.003}},
		{ID: "USDT-ETH-SOL", Kind: relation.KindTriangle, NumLegs: 3, Metrics: state.Metrics{Rate: 1.001}},
	}}
	if err := p.Publish(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	var got struct {
		Kind string           `json:"kind"`
		Rows []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(f.strings["arbmon:top"], &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != "triangle" || len(got.Rows) != 2 || got.Rows[0]["name"] != "USDT-BTC-ETH" {
		t.Fatalf("stored board = %+v", got)
	}
	z := f.zsets["arbmon:top:scores"]
	if len(z) != 2 || z[0].Member != "USDT-BTC-ETH" || z[0].Score != 1.003 {
		t.Fatalf("scores = %+v", z)
	}
	if f.ttls["arbmon:top"] != 10*time.Second || f.ttls["arbmon:top:scores"] != 10*time.Second {
		t.Fatalf("ttls = %v", f.ttls)
	}

	// A later, shorter board replaces the ranking instead of accumulating.
	b.Rows = b.Rows[1:]
	_ = p.Publish(context.Background(), b)
	if z := f.zsets["arbmon:top:scores"]; len(z) != 1 || z[0].Member != "USDT-ETH-SOL" {
		t.Fatalf("scores after replace = %+v", z)
	}
}

func TestPublishPropagatesErrors(t *testing.T) {
	f := newFake()
	f.zsets["k:scores"] = []redis.Z{{Score: 1, Member: "old"}}
	f.setErr = errors.New("READONLY")
	p := newPublisher(f, "k", time.Second)
	b := state.Board{Rows: []state.Snapshot{{ID: "new", NumLegs: 2}}}
	if err := p.Publish(context.Background(), b); err == nil || err.Error() != "READONLY" {
		t.Fatalf("err = %v", err)
	}
	if z := f.zsets["k:scores"]; len(z) != 1 || z[0].Member != "old" {
		t.Fatalf("failed publish touched the ranking: %+v", z)
	}
}

func TestPublishReplacesScoresInOneTransaction(t *testing.T) {
	f := newFake()
	p := newPublisher(f, "k", time.Second)
	b := state.Board{Rows: []state.Snapshot{{ID: "a", NumLegs: 2}, {ID: "b", NumLegs: 2}}}
	if err := p.Publish(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), state.Board{}); err != nil {
		t.Fatal(err)
	}
	if len(f.txs) != 2 {
		t.Fatalf("transactions = %v", f.txs)
	}
	if got := strings.Join(f.txs[0], " "); got != "set del zadd expire" {
		t.Fatalf("first transaction = %s", got)
	}
	if got := strings.Join(f.txs[1], " "); got != "set del" {
		t.Fatalf("empty board transaction = %s", got)
	}
	if _, ok := f.zsets["k:scores"]; ok {
		t.Fatal("empty board left a ranking behind")
	}
}
