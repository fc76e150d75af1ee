// Package redis provides a debounce ledger shared across processes.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Ledger records debounce claims as self-expiring Redis keys.
// A key lives for the claim window, so Release has nothing to do.
type Ledger struct {
	client store
	prefix string
	now    func() time.Time
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}
	return newLedger(client, cfg.Prefix), nil
}

func newLedger(client store, prefix string) *Ledger {
	return &Ledger{client: client, prefix: prefix, now: time.Now}
}

// Claim implements guard.Ledger.
func (l *Ledger) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	stamp := strconv.FormatInt(l.now().UnixMilli(), 10)
	ok, err := l.client.SetNX(ctx, l.prefix+key, stamp, window).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis claim %s", key)
	}
	return ok, nil
}

// Release implements guard.Ledger. Keys expire on their own.
func (l *Ledger) Release(context.Context, string) error {
	return nil
}

// Close closes the Redis connection.
func (l *Ledger) Close() error {
	return l.client.Close()
}
