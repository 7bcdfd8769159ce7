package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/avdept/flowmachine/pkg/ports"
)

// releaseScript deletes the lock only when still held by this owner, so an
// expired-and-reacquired lock is never released by the old holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// lockRetryInterval is the polling cadence while the lock is contended.
const lockRetryInterval = 50 * time.Millisecond

// Locker implements ports.ConversationLocker with Redis SET NX PX.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a locker on an existing client.
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "flowmachine:lock:"
	}
	return &Locker{client: client, prefix: prefix}
}

// Lock acquires the lock for key, polling until ctx is done. The owner token
// is random so release is safe across holders.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + key
	owner := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, owner, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if acquired {
			return func(ctx context.Context) error {
				return l.client.Eval(ctx, releaseScript, []string{lockKey}, owner).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
