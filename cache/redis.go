// Package cache keeps replayed customer debt totals in Redis.
//
// Each customer has two keys: <prefix><id> holds the total and
// <prefix>gen:<id> a counter bumped by Invalidate. SetDebt writes the total
// only while the counter still matches the value the reader saw.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/account"
)

const (
	DefaultPrefix = "ledger:debt:"
	DefaultTTL    = 10 * time.Minute
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis implements account.BalanceCache.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings the server. A failed ping closes the client.
func NewRedis(ctx context.Context, opts Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisFromClient wraps an existing client. Empty prefix and zero TTL
// fall back to the defaults.
func NewRedisFromClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) key(id account.CustomerID) string    { return r.prefix + string(id) }
func (r *Redis) genKey(id account.CustomerID) string { return r.prefix + "gen:" + string(id) }

// KEYS[1] total, KEYS[2] generation; ARGV[1] expected generation,
// ARGV[2] total, ARGV[3] ttl in milliseconds.
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (r *Redis) GetDebt(ctx context.Context, id account.CustomerID) (decimal.Decimal, bool, error) {
	s, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read cached debt: %w", err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		// Unparseable entries are treated as a miss and dropped.
		r.client.Del(ctx, r.key(id))
		return decimal.Zero, false, nil
	}
	return d, true, nil
}

func (r *Redis) Generation(ctx context.Context, id account.CustomerID) (int64, error) {
	gen, err := r.client.Get(ctx, r.genKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// SetDebt stores total unless the customer was invalidated after gen was
// read. A skipped write is not an error.
func (r *Redis) SetDebt(ctx context.Context, id account.CustomerID, total decimal.Decimal, gen int64) error {
	keys := []string{r.key(id), r.genKey(id)}
	err := setIfGeneration.Run(ctx, r.client, keys, strconv.FormatInt(gen, 10), total.String(), r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to cache debt: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, id account.CustomerID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey(id))
		pipe.Del(ctx, r.key(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached debt: %w", err)
	}
	return nil
}
