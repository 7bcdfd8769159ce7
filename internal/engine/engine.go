// Package engine implements the session-aware execution graph walker: it
// routes inbound messages into flow traversals, suspends on input nodes,
// resumes waiting sessions and isolates per-node failures.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/avdept/flowmachine/internal/guard"
	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/internal/metrics"
	"github.com/avdept/flowmachine/internal/session"
	"github.com/avdept/flowmachine/internal/trigger"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
	"github.com/avdept/flowmachine/pkg/registry"
)

// Engine composes the session manager, trigger resolver, concurrency guard
// and executor registry into the message-processing entrypoint. Construct it
// explicitly and inject it into callers; there is no process-wide instance.
type Engine struct {
	flows    ports.FlowProvider
	sessions *session.Manager
	registry *registry.Registry
	resolver *trigger.Resolver
	deduper  *guard.MessageDeduper
	locker   ports.ConversationLocker

	maxDepth int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// conversationLockTTL bounds how long a crashed replica can hold a
// conversation; traversals are expected to finish well within it.
const conversationLockTTL = 30 * time.Second

// Option configures the Engine.
type Option func(*Engine)

// WithMaxDepth overrides the traversal depth limit (default 100).
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// WithLogger configures the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLocker serializes processing per conversation across replicas.
func WithLocker(locker ports.ConversationLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// New creates an engine.
func New(flows ports.FlowProvider, sessions *session.Manager, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		flows:    flows,
		sessions: sessions,
		registry: reg,
		deduper:  guard.NewMessageDeduper(),
		maxDepth: guard.DefaultMaxDepth,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = trigger.NewResolver(sessions, e.logger)
	return e
}

// Sessions exposes the session manager (hydration, sweeping, inspection).
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// walkEnv carries the per-message collaborators through a traversal.
type walkEnv struct {
	msg          *domain.InboundMessage
	conversation *domain.Conversation
	contact      *domain.Contact
	connection   *domain.ChannelConnection
}

// ProcessMessage drives one inbound message through the engine: dedup,
// resume-from-waiting, then cold trigger matching. Traversal failures are
// recorded on the session and logged; they never propagate to the transport.
func (e *Engine) ProcessMessage(ctx context.Context, msg *domain.InboundMessage,
	conversation *domain.Conversation, contact *domain.Contact,
	connection *domain.ChannelConnection) error {

	proceed, err := e.deduper.Acquire(ctx, conversation.ID, msg.ID)
	if err != nil {
		return err
	}
	if !proceed {
		e.metrics.MessagesDeduped.Inc()
		e.logger.Debug("duplicate message skipped", "conversation_id", conversation.ID, "message_id", msg.ID)
		return nil
	}
	defer e.deduper.Release(conversation.ID, msg.ID)

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "conversation:"+conversation.ID, conversationLockTTL)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("failed to release conversation lock", "conversation_id", conversation.ID, "err", err)
			}
		}()
	}

	env := &walkEnv{msg: msg, conversation: conversation, contact: contact, connection: connection}

	// 1. Resume: waiting sessions of this conversation get first claim.
	for _, s := range e.sessions.WaitingForConversation(conversation.ID) {
		if s.ContactID != contact.ID {
			continue
		}
		handled, err := e.tryResume(ctx, s, env)
		if err != nil {
			e.logger.Error("traversal failed on resume", "session_id", s.SessionID, "err", err)
			return nil
		}
		if handled {
			return nil
		}
	}

	// 2. Cold matching: reuse a live session or create a new one.
	flows, err := e.flows.FlowsForCompany(ctx, conversation.CompanyID)
	if err != nil {
		e.logger.Error("failed to load flows for trigger matching", "company_id", conversation.CompanyID, "err", err)
		return nil
	}

	for _, flow := range flows {
		for i := range flow.Nodes {
			trig := &flow.Nodes[i]
			if trig.Type != domain.NodeTrigger {
				continue
			}
			if !e.resolver.Matches(trig, msg, conversation, contact) {
				continue
			}

			if msg.SessionReuse {
				e.continueReusedSession(ctx, trig, flow, env)
				return nil
			}

			s, err := e.sessions.Create(ctx, flow.ID, conversation.ID, contact.ID, conversation.CompanyID, trig)
			if err != nil {
				e.logger.Error("failed to create session", "flow_id", flow.ID, "trigger", trig.ID, "err", err)
				return nil
			}

			trav := guard.NewTraversal(e.maxDepth)
			if err := e.walk(ctx, s.SessionID, flow, trig.ID, env, nil, trav); err != nil {
				e.logger.Error("traversal failed", "session_id", s.SessionID, "err", err)
				return nil
			}
			if err := e.finishTraversal(ctx, s.SessionID, flow); err != nil {
				e.logger.Error("failed to settle session after traversal", "session_id", s.SessionID, "err", err)
			}
			return nil
		}
	}

	return nil
}

// continueReusedSession feeds the message into the live session that absorbed
// it. A waiting session that did not match its input contract above simply
// consumes the message; an active (re-armed) session walks from its current
// node again.
func (e *Engine) continueReusedSession(ctx context.Context, trig *domain.Node, flow *domain.Flow, env *walkEnv) {
	s, ok := e.sessions.FindLive(trig.ID, env.conversation.ID, env.contact.ID)
	if !ok {
		return
	}
	if s.Status != domain.StatusActive {
		return
	}
	trav := guard.NewTraversal(e.maxDepth)
	if err := e.walk(ctx, s.SessionID, flow, s.CurrentNodeID, env, nil, trav); err != nil {
		e.logger.Error("traversal failed on reused session", "session_id", s.SessionID, "err", err)
		return
	}
	if err := e.finishTraversal(ctx, s.SessionID, flow); err != nil {
		e.logger.Error("failed to settle session after traversal", "session_id", s.SessionID, "err", err)
	}
}
