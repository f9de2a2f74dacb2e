// Package ratelimit counts attempts per key in fixed Redis windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Decision is the outcome of one Hit.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

// Limiter allows at most MaxAttempts hits per key within Window.
// A nil *Limiter allows everything.
type Limiter struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
}

func New(client *redis.Client, cfg Config) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit:"
	}
	return &Limiter{client: client, max: cfg.MaxAttempts, window: cfg.Window, prefix: cfg.Prefix}, nil
}

// NewClient builds a Redis client from a redis:// URL.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Check reports whether key is still below the limit without recording anything.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}

	k := l.prefix + key
	n, err := l.client.Get(ctx, k).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return Decision{Allowed: true, Remaining: l.max}, nil
	case err != nil:
		return Decision{}, fmt.Errorf("get %s: %w", k, err)
	}
	if n < l.max {
		return Decision{Allowed: true, Remaining: l.max - n}, nil
	}
	return l.blocked(ctx, k)
}

// Hit records one attempt for key and reports whether it is within the limit.
func (l *Limiter) Hit(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}

	k := l.prefix + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", k, err)
		}
	}

	if int(n) <= l.max {
		return Decision{Allowed: true, Remaining: l.max - int(n)}, nil
	}
	return l.blocked(ctx, k)
}

func (l *Limiter) blocked(ctx context.Context, k string) (Decision, error) {
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ttl %s: %w", k, err)
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// Reset forgets the attempts recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	return l.client.Del(ctx, l.prefix+key).Err()
}
