package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotaguard/internal/config"
)

const (
	keyAPI     = "quotaguard:rl:api:%s"
	keyBilling = "quotaguard:rl:billing:%s"
	keySession = "quotaguard:rl:session:%s"
)

// Policy is a request budget over a window, enforced as a token bucket.
type Policy struct {
	Requests int
	Window   time.Duration
}

func (p Policy) rate() float64 {
	if p.Window <= 0 {
		return 0
	}
	return float64(p.Requests) / p.Window.Seconds()
}

// Limiter applies the API, billing and session budgets. A nil Limiter allows
// everything.
type Limiter struct {
	bucket  *TokenBucket
	api     Policy
	billing Policy
	session Policy
}

func NewLimiter(cfg config.Config, client *redis.Client) *Limiter {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil
	}
	rl := cfg.RateLimit
	return &Limiter{
		bucket:  NewTokenBucket(client),
		api:     Policy{Requests: rl.APIRequests, Window: time.Duration(rl.APIWindowSeconds) * time.Second},
		billing: Policy{Requests: rl.BillingRequests, Window: time.Duration(rl.BillingWindowSeconds) * time.Second},
		session: Policy{Requests: rl.SessionRequests, Window: time.Duration(rl.SessionWindowSeconds) * time.Second},
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *Limiter) AllowAPI(ctx context.Context, clientIP string) (Result, error) {
	return l.allow(ctx, keyAPI, clientIP, l.api)
}

func (l *Limiter) AllowBilling(ctx context.Context, subject string) (Result, error) {
	return l.allow(ctx, keyBilling, subject, l.billing)
}

func (l *Limiter) AllowSession(ctx context.Context, clientIP string) (Result, error) {
	return l.allow(ctx, keySession, clientIP, l.session)
}

func (l *Limiter) allow(ctx context.Context, pattern, subject string, policy Policy) (Result, error) {
	if !l.Enabled() || policy.Requests <= 0 {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(pattern, strings.TrimSpace(subject)), policy.rate(), policy.Requests)
}
