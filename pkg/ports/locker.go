package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// ConversationLocker serializes message processing per conversation across
// engine replicas. Single-instance deployments run without one; the
// in-process dedup guard already serializes duplicates within a process.
type ConversationLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is done. The lock
	// auto-expires after ttl so a crashed holder cannot wedge the conversation.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
