// Package guard implements the engine's concurrency protections: inbound
// message deduplication and traversal cycle/depth limits.
package guard

import (
	"context"
	"sync"
	"time"
)

// finishedRetention bounds how long completed message keys are remembered.
// Channel providers redeliver within seconds, not hours.
const finishedRetention = 30 * time.Minute

// MessageDeduper serializes processing per (conversationID, messageID).
// The first caller for a key proceeds; concurrent callers block until the
// first finishes and then observe the finished set, skipping re-execution.
// This guarantees at most one side-effecting traversal per distinct message.
type MessageDeduper struct {
	mu       sync.Mutex
	inFlight map[string]chan struct{}
	finished map[string]time.Time
}

// NewMessageDeduper creates an empty deduper.
func NewMessageDeduper() *MessageDeduper {
	return &MessageDeduper{
		inFlight: make(map[string]chan struct{}),
		finished: make(map[string]time.Time),
	}
}

func dedupKey(conversationID, messageID string) string {
	return conversationID + ":" + messageID
}

// Acquire claims the right to process a message. It returns true when the
// caller should run the traversal and must call Release afterwards. It
// returns false when the message was already processed (or is being
// processed and completed while we waited).
func (d *MessageDeduper) Acquire(ctx context.Context, conversationID, messageID string) (bool, error) {
	key := dedupKey(conversationID, messageID)

	for {
		d.mu.Lock()
		if _, done := d.finished[key]; done {
			d.mu.Unlock()
			return false, nil
		}
		ch, busy := d.inFlight[key]
		if !busy {
			d.inFlight[key] = make(chan struct{})
			d.pruneLocked()
			d.mu.Unlock()
			return true, nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ch:
			// First caller finished; loop to re-check the finished set.
		}
	}
}

// Release marks the message as processed and wakes any waiters.
func (d *MessageDeduper) Release(conversationID, messageID string) {
	key := dedupKey(conversationID, messageID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.inFlight[key]; ok {
		close(ch)
		delete(d.inFlight, key)
	}
	d.finished[key] = time.Now()
}

// pruneLocked drops finished entries past retention. Called with mu held.
func (d *MessageDeduper) pruneLocked() {
	if len(d.finished) < 1024 {
		return
	}
	cutoff := time.Now().Add(-finishedRetention)
	for k, at := range d.finished {
		if at.Before(cutoff) {
			delete(d.finished, k)
		}
	}
}
