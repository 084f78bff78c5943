package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockUnavailable = errors.New("lock client not configured")
	ErrLockKey         = errors.New("lock key is empty")
	ErrLockTTL         = errors.New("lock ttl must be positive")
)

// compare-and-delete so an expired holder cannot drop a successor's lock.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short leases used to serialise duplicate submissions of
// the same sale or order.
type Locker struct {
	client *redis.Client
}

// NewLocker returns nil without a client.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// TryLock returns the owner token and whether the lease was taken.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case !l.Enabled():
		return "", false, ErrLockUnavailable
	case key == "":
		return "", false, ErrLockKey
	case ttl <= 0:
		return "", false, ErrLockTTL
	}

	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if !l.Enabled() || key == "" || token == "" {
		return nil
	}
	return releaseIfOwner.Run(ctx, l.client, []string{key}, token).Err()
}
