package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

const dialWait = 5 * time.Second

// OpenRedis connects and pings within dialWait. The client backs the
// idempotency store and the /health probe.
func OpenRedis(ctx context.Context, opt Options) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.DB,
		DialTimeout:  dialWait,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, dialWait)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis %s: %w", opt.Addr, err)
	}
	slog.Info("redis connected", "addr", opt.Addr, "db", opt.DB)
	return r, nil
}

// Ping adapts the client to a health probe.
func Ping(r *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error { return r.Ping(ctx).Err() }
}
