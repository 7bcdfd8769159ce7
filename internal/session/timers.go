package session

import (
	"context"
	"time"

	"github.com/avdept/flowmachine/pkg/domain"
)

// scheduleTimerLocked (re)arms the direct expiry timer for a session.
// Called with mu held. Sessions without a deadline carry no timer. The timer
// is one of two expiry paths; the periodic sweep catches sessions whose
// timers were lost to a process restart.
func (m *Manager) scheduleTimerLocked(s *domain.FlowSessionState) {
	m.cancelTimerLocked(s.SessionID)
	if s.ExpiresAt == nil {
		return
	}
	id := s.SessionID
	until := time.Until(*s.ExpiresAt)
	if until < 0 {
		until = 0
	}
	m.timers[id] = time.AfterFunc(until, func() {
		m.Expire(context.Background(), id)
	})
}

// cancelTimerLocked stops and forgets a session's timer. Called with mu held.
func (m *Manager) cancelTimerLocked(sessionID string) {
	if t, ok := m.timers[sessionID]; ok {
		t.Stop()
		delete(m.timers, sessionID)
	}
}

// StartSweeper runs the periodic expiry sweep until the context is canceled.
// The sweep compares ExpiresAt across all in-memory sessions, catching
// expirations whose per-session timers never fired.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()
}

// SweepExpired expires every in-memory session past its deadline and returns
// how many were evicted.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := time.Now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.Expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Expire(ctx, id)
	}
	if len(expired) > 0 {
		m.logger.Info("expiry sweep evicted sessions", "count", len(expired))
	}
	return len(expired)
}
