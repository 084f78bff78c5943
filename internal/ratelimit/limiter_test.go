package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	res, err := l.AllowBilling(context.Background(), "cashier-1")
	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, l.Enabled())

	assert.Nil(t, NewLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, nil))
}

func TestPolicyRate(t *testing.T) {
	assert.InDelta(t, 0.5, Policy{Requests: 30, Window: time.Minute}.rate(), 1e-9)
	assert.Zero(t, Policy{Requests: 30}.rate())
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 120*time.Second, bucketTTL(0.5, 30))
	assert.Equal(t, time.Second, bucketTTL(1000, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(7), toInt("7"))
	assert.InDelta(t, 2.75, toFloat("2.75"), 1e-9)
	assert.Zero(t, toFloat(nil))
}

func TestNilLockerIsDisabled(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}
