package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/avdept/flowmachine/internal/events"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (s *recordingSink) HandleSessionEvent(event domain.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) seen() []domain.SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionEvent, len(s.events))
	copy(out, s.events)
	return out
}

type panickingSink struct{}

func (panickingSink) HandleSessionEvent(domain.SessionEvent) { panic("sink exploded") }

func TestEmitDeliversToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	emitter := events.NewEmitter(nil, a)
	emitter.Subscribe(b)

	emitter.Emit(domain.SessionEvent{Type: domain.EventSessionCreated, SessionID: "s-1"})

	assert.Eventually(t, func() bool {
		return len(a.seen()) == 1 && len(b.seen()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.EventSessionCreated, a.seen()[0].Type)
	assert.Equal(t, "s-1", b.seen()[0].SessionID)
}

func TestEmitSurvivesPanickingSink(t *testing.T) {
	healthy := &recordingSink{}
	emitter := events.NewEmitter(nil, panickingSink{}, healthy)

	emitter.Emit(domain.SessionEvent{Type: domain.EventSessionExpired, SessionID: "s-2"})

	assert.Eventually(t, func() bool {
		return len(healthy.seen()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEmitWithNoSinksIsNoop(t *testing.T) {
	emitter := events.NewEmitter(nil)
	assert.NotPanics(t, func() {
		emitter.Emit(domain.SessionEvent{Type: domain.EventSessionUpdated})
	})
}
