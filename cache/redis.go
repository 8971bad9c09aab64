// Package cache mirrors the latest leaderboard into Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AlephTX/aleph-tx/arbmon/state"
)

// client is the subset of *redis.Client the publisher uses.
type client interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// Publisher stores the board JSON under Key and the ranking under
// Key+":scores" (a sorted set of relation ids), both expiring after TTL so a
// stopped monitor does not leave a stale leaderboard behind. Each board is
// written in one MULTI/EXEC, so readers never see a half-replaced ranking.
type Publisher struct {
	client client
	key    string
	ttl    time.Duration
}

// New connects and pings the server.
func New(ctx context.Context, addr, key string, ttl time.Duration) (*Publisher, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newPublisher(c, key, ttl), nil
}

func newPublisher(c client, key string, ttl time.Duration) *Publisher {
	return &Publisher{client: c, key: key, ttl: ttl}
}

func (p *Publisher) Publish(ctx context.Context, b state.Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	members := make([]redis.Z, len(b.Rows))
	for i, s := range b.Rows {
		members[i] = redis.Z{Score: s.Score(), Member: s.ID}
	}

	scores := p.key + ":scores"
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key, data, p.ttl)
		pipe.Del(ctx, scores)
		if len(members) > 0 {
			pipe.ZAdd(ctx, scores, members...)
			pipe.Expire(ctx, scores, p.ttl)
		}
		return nil
	})
	return err
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
