// Package session owns the in-memory session table, its persistence mirror
// and the timeout/expiry machinery.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avdept/flowmachine/internal/events"
	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/internal/metrics"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// DefaultTTL applies when a trigger configures no session window.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the expiry sweep runs.
const DefaultSweepInterval = 5 * time.Minute

// TriggerConfigFunc resolves the *current* configuration of a trigger node.
// Timeout renewal reads through this on every update so edits to a trigger's
// window apply retroactively to live sessions.
type TriggerConfigFunc func(ctx context.Context, flowID, triggerNodeID string) (domain.TriggerConfig, error)

// Manager creates, mutates, loads and expires flow sessions. The in-memory
// table is authoritative; the store is a best-effort mirror whose write
// failures are logged and otherwise ignored.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*domain.FlowSessionState
	timers   map[string]*time.Timer

	store         ports.SessionStore // nil disables persistence
	triggerConfig TriggerConfigFunc
	emitter       *events.Emitter
	logger        *slog.Logger
	metrics       *metrics.Metrics

	defaultTTL    time.Duration
	sweepInterval time.Duration
}

// Option configures the Manager.
type Option func(*Manager)

// WithStore enables the persistence mirror.
func WithStore(store ports.SessionStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithEmitter wires the lifecycle event emitter.
func WithEmitter(e *events.Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithLogger configures the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics wires Prometheus collectors.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithDefaultTTL overrides the 24h fallback window.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = ttl }
}

// WithSweepInterval overrides the 5 minute sweep cadence.
func WithSweepInterval(interval time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = interval }
}

// NewManager creates a session manager. triggerConfig may be nil, in which
// case windows are only computed at creation time.
func NewManager(triggerConfig TriggerConfigFunc, opts ...Option) *Manager {
	m := &Manager{
		sessions:      make(map[string]*domain.FlowSessionState),
		timers:        make(map[string]*time.Timer),
		triggerConfig: triggerConfig,
		logger:        logging.NewNop(),
		metrics:       metrics.NewNop(),
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.emitter == nil {
		m.emitter = events.NewEmitter(m.logger)
	}
	return m
}

// Create starts a new session for a trigger match without a reusable session.
// The expiry window comes from the trigger configuration, falling back to the
// default TTL when the trigger declares none.
func (m *Manager) Create(ctx context.Context, flowID, conversationID, contactID, companyID string,
	trigger *domain.Node) (*domain.FlowSessionState, error) {

	var cfg domain.TriggerConfig
	if err := trigger.DecodeConfig(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode trigger config: %w", err)
	}

	s := domain.NewSession(uuid.NewString(), flowID, conversationID, contactID, companyID, trigger.ID)
	m.applyWindow(s, cfg)

	m.mu.Lock()
	superseded := m.abandonLiveLocked(trigger.ID, conversationID, contactID)
	m.sessions[s.SessionID] = s
	m.scheduleTimerLocked(s)
	m.mu.Unlock()

	if superseded != nil {
		m.metrics.ActiveSessions.Dec()
		m.persist(ctx, superseded)
		m.emitter.Emit(domain.NewSessionEvent(domain.EventSessionUpdated, superseded))
		m.logger.Info("abandoned superseded session", "session_id", superseded.SessionID, "trigger", trigger.ID)
	}

	m.persist(ctx, s)
	m.metrics.SessionsCreated.Inc()
	m.metrics.ActiveSessions.Inc()
	m.emitter.Emit(domain.NewSessionEvent(domain.EventSessionCreated, s))

	return s.Clone(), nil
}

// abandonLiveLocked settles the live session of a trigger identity, if any,
// so a newly created session never coexists with the one it supersedes. At
// most one live session exists per (trigger node, conversation, contact).
// Called with mu held; returns a snapshot of the abandoned session.
func (m *Manager) abandonLiveLocked(triggerNodeID, conversationID, contactID string) *domain.FlowSessionState {
	for id, prev := range m.sessions {
		if prev.TriggerNodeID == triggerNodeID &&
			prev.ConversationID == conversationID &&
			prev.ContactID == contactID &&
			prev.Status.IsLive() {
			prev.Status = domain.StatusAbandoned
			prev.Touch()
			m.cancelTimerLocked(id)
			delete(m.sessions, id)
			return prev.Clone()
		}
	}
	return nil
}

// Update applies a mutation to a session under the manager's lock, bumps the
// activity timestamp and, while the session stays active, re-derives the
// expiry window from the trigger node's current configuration.
func (m *Manager) Update(ctx context.Context, sessionID string, mutate func(*domain.FlowSessionState)) (*domain.FlowSessionState, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, m.missingSessionError(ctx, sessionID)
	}

	wasLive := s.Status.IsLive()
	mutate(s)
	s.Touch()

	if s.Status == domain.StatusActive {
		m.renewLocked(ctx, s)
	}
	if wasLive && s.Status.IsTerminal() {
		m.cancelTimerLocked(sessionID)
		delete(m.sessions, sessionID)
		m.metrics.ActiveSessions.Dec()
	}
	snapshot := s.Clone()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.emitter.Emit(domain.NewSessionEvent(domain.EventSessionUpdated, snapshot))
	return snapshot, nil
}

// missingSessionError tells a session that already settled apart from one the
// manager has never seen. Terminal sessions leave the in-memory table but
// keep their persisted row.
func (m *Manager) missingSessionError(ctx context.Context, sessionID string) error {
	if m.store != nil {
		if row, err := m.store.Load(ctx, sessionID); err == nil && row.Status.IsTerminal() {
			return domain.ErrSessionTerminal
		}
	}
	return domain.ErrSessionNotFound
}

// renewLocked recomputes ExpiresAt from the trigger's current window and
// reschedules the expiry timer. Called with mu held.
func (m *Manager) renewLocked(ctx context.Context, s *domain.FlowSessionState) {
	ttl := m.defaultTTL
	if m.triggerConfig != nil {
		cfg, err := m.triggerConfig(ctx, s.FlowID, s.TriggerNodeID)
		if err != nil {
			m.logger.Warn("failed to resolve trigger config for renewal, keeping default window",
				"session_id", s.SessionID, "err", err)
		} else if d := cfg.SessionTimeout.Duration(); d > 0 {
			ttl = d
		}
	}
	exp := s.LastActivityAt.Add(ttl)
	s.ExpiresAt = &exp
	m.scheduleTimerLocked(s)
}

// applyWindow sets the initial expiry from the creating trigger's config.
func (m *Manager) applyWindow(s *domain.FlowSessionState, cfg domain.TriggerConfig) {
	ttl := cfg.SessionTimeout.Duration()
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	exp := s.LastActivityAt.Add(ttl)
	s.ExpiresAt = &exp
}

// Get returns a snapshot of an in-memory session.
func (m *Manager) Get(sessionID string) (*domain.FlowSessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// FindLive returns the live session for a trigger identity, if any. At most
// one such session exists per (trigger node, conversation, contact).
func (m *Manager) FindLive(triggerNodeID, conversationID, contactID string) (*domain.FlowSessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TriggerNodeID == triggerNodeID &&
			s.ConversationID == conversationID &&
			s.ContactID == contactID &&
			s.Status.IsLive() {
			return s.Clone(), true
		}
	}
	return nil, false
}

// WaitingForConversation returns the waiting sessions of a conversation,
// the candidates for resume-from-waiting.
func (m *Manager) WaitingForConversation(conversationID string) []*domain.FlowSessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.FlowSessionState
	for _, s := range m.sessions {
		if s.ConversationID == conversationID && s.Status == domain.StatusWaiting {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Load returns the session from memory, falling back to the store. A session
// hydrated from the store re-enters the in-memory table with a fresh timer.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.FlowSessionState, error) {
	if s, ok := m.Get(sessionID); ok {
		return s, nil
	}
	return m.LoadFromStore(ctx, sessionID)
}

// LoadFromStore hydrates a session row into memory. Store rows round-trip
// through lenient JSON parsing, so malformed collections arrive empty rather
// than failing the load.
func (m *Manager) LoadFromStore(ctx context.Context, sessionID string) (*domain.FlowSessionState, error) {
	if m.store == nil {
		return nil, domain.ErrSessionNotFound
	}
	s, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	normalize(s)

	if s.Status.IsLive() {
		m.mu.Lock()
		if _, exists := m.sessions[s.SessionID]; !exists {
			m.sessions[s.SessionID] = s
			m.scheduleTimerLocked(s)
			m.metrics.ActiveSessions.Inc()
		}
		m.mu.Unlock()
	}
	return s.Clone(), nil
}

// Hydrate pulls every live session from the store into memory, re-arming
// expiry timers. Called once at startup; persisted ExpiresAt outlives the
// in-memory timers lost to a restart.
func (m *Manager) Hydrate(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	live, err := m.store.ListLive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list live sessions: %w", err)
	}
	count := 0
	m.mu.Lock()
	for _, s := range live {
		if _, exists := m.sessions[s.SessionID]; exists {
			continue
		}
		normalize(s)
		m.sessions[s.SessionID] = s
		m.scheduleTimerLocked(s)
		count++
	}
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(float64(count))
	return count, nil
}

// Expire transitions a session to timeout, evicts it from memory and cancels
// its timer. Idempotent: expiring an unknown or terminal session is a no-op.
func (m *Manager) Expire(ctx context.Context, sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	s.Status = domain.StatusTimeout
	s.Touch()
	m.cancelTimerLocked(sessionID)
	delete(m.sessions, sessionID)
	snapshot := s.Clone()
	m.mu.Unlock()

	m.metrics.ActiveSessions.Dec()
	m.metrics.SessionsTimedOut.Inc()
	m.persist(ctx, snapshot)
	m.emitter.Emit(domain.NewSessionEvent(domain.EventSessionExpired, snapshot))
	m.logger.Info("session expired", "session_id", sessionID)
}

// PersistVariable mirrors a single variable write, best-effort.
func (m *Manager) PersistVariable(ctx context.Context, sessionID, name string, value any) {
	if m.store == nil {
		return
	}
	if err := m.store.UpsertVariable(ctx, sessionID, name, value); err != nil {
		m.logger.Warn("failed to persist session variable", "session_id", sessionID, "variable", name, "err", err)
	}
}

// Emitter exposes the manager's event emitter for components that share it.
func (m *Manager) Emitter() *events.Emitter {
	return m.emitter
}

// persist mirrors the session to the store, best-effort: failures are logged
// and the in-memory copy stays authoritative.
func (m *Manager) persist(ctx context.Context, s *domain.FlowSessionState) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, s); err != nil {
		m.logger.Warn("failed to persist session, continuing degraded", "session_id", s.SessionID, "err", err)
	}
}

// normalize repairs nil collections on hydrated sessions.
func normalize(s *domain.FlowSessionState) {
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}
	if s.NodeStates == nil {
		s.NodeStates = make(map[string]domain.NodeState)
	}
	if s.ExecutionPath == nil {
		s.ExecutionPath = []string{}
	}
}
