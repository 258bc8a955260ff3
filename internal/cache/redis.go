package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores per-symbol prices as decimal text. Anything that prevents a
// read from producing a number (missing key, broken connection, garbage
// value) is reported as absence, never as a failure of the caller.
type Redis struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}

func (c *Redis) Get(ctx context.Context, key string) (float64, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache get %s error: %v", key, err)
		}
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("cache get %s: non-numeric value %q", key, raw)
		return 0, false
	}
	return v, true
}

func (c *Redis) Put(ctx context.Context, key string, v float64) error {
	if err := c.rdb.Set(ctx, key, formatValue(v), 0).Err(); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent writes the value only when the key does not exist and lets it
// expire after ttl. Returns whether this call created the key. SetNX makes
// the first-write-wins rule hold even when two runs overlap.
func (c *Redis) PutIfAbsent(ctx context.Context, key string, v float64, ttl time.Duration) (bool, error) {
	created, err := c.rdb.SetNX(ctx, key, formatValue(v), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache put-if-absent %s: %w", key, err)
	}
	return created, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
