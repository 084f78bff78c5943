// Package idempotency fences concurrent submissions that share a client
// supplied idempotency key.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/smallbiznis/quotaguard/internal/ratelimit"
	"go.uber.org/zap"
)

const keyPrefix = "quotaguard:idem:"

var (
	ErrInFlight   = errors.New("idempotency_key_in_flight")
	ErrInvalidKey = errors.New("invalid_idempotency_key")
)

const maxKeyLength = 128

// Guard holds a key for the duration of one submission. Release is always
// safe to call.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NormalizeKey trims the key and rejects oversize values.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) > maxKeyLength {
		return "", ErrInvalidKey
	}
	return key, nil
}

type redisGuard struct {
	locker *ratelimit.Locker
	ttl    time.Duration
	log    *zap.Logger
}

// NewGuard uses the Redis locker when available and falls back to a no-op
// guard; the unique index on the key still rejects duplicates.
func NewGuard(cfg config.Config, locker *ratelimit.Locker, log *zap.Logger) Guard {
	if !locker.Enabled() {
		return NoopGuard{}
	}
	ttl := time.Duration(cfg.RateLimit.IdempotencyLockTTL) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisGuard{locker: locker, ttl: ttl, log: log.Named("idempotency")}
}

func (g *redisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := keyPrefix + key
	token, ok, err := g.locker.TryLock(ctx, lockKey, g.ttl)
	if err != nil {
		// Redis trouble must not block sales.
		g.log.Warn("idempotency lock unavailable", zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return func() {}, ErrInFlight
	}
	return func() {
		if err := g.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			g.log.Warn("idempotency lock release failed", zap.Error(err))
		}
	}, nil
}

type NoopGuard struct{}

func (NoopGuard) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
