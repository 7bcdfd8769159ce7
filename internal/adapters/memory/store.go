// Package memory provides in-memory adapters: a SessionStore used when
// persistence is disabled and a FlowProvider for embedding hosts and tests.
package memory

import (
	"context"
	"sync"

	"github.com/avdept/flowmachine/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]*domain.FlowSessionState
}

// NewStore creates a new in-memory session store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.FlowSessionState),
	}
}

// Save persists the session in memory. The state is cloned on write so the
// caller can't mutate stored rows through retained pointers.
func (s *Store) Save(ctx context.Context, session *domain.FlowSessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.SessionID] = session.Clone()
	return nil
}

// Load retrieves a session copy.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.FlowSessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// ListLive returns the active and waiting sessions.
func (s *Store) ListLive(ctx context.Context) ([]*domain.FlowSessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.FlowSessionState
	for _, session := range s.data {
		if session.Status.IsLive() {
			out = append(out, session.Clone())
		}
	}
	return out, nil
}

// UpsertVariable writes one variable of a stored session.
func (s *Store) UpsertVariable(ctx context.Context, sessionID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.data[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Variables[name] = value
	return nil
}

// ListVariables returns a copy of a session's variables.
func (s *Store) ListVariables(ctx context.Context, sessionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	vars := make(map[string]any, len(session.Variables))
	for k, v := range session.Variables {
		vars[k] = v
	}
	return vars, nil
}
