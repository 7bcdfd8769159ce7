package flowmachine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avdept/flowmachine/internal/adapters/console"
	"github.com/avdept/flowmachine/internal/engine"
	"github.com/avdept/flowmachine/internal/events"
	"github.com/avdept/flowmachine/internal/executors"
	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/internal/metrics"
	"github.com/avdept/flowmachine/internal/session"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
	"github.com/avdept/flowmachine/pkg/registry"
)

// Version is the library version, set at build time via ldflags.
var Version = "dev"

// Engine is the high-level entry point. It wires the session manager, the
// executor registry and the traversal engine behind one constructor so that
// hosts embedding the library do not have to assemble internal packages.
type Engine struct {
	runtime  *engine.Engine
	sessions *session.Manager
	registry *registry.Registry

	store      ports.SessionStore
	locker     ports.ConversationLocker
	dispatcher ports.Dispatcher
	sinks      []ports.EventSink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxDepth   int
	defaultTTL time.Duration
	sweepEvery time.Duration
}

// Option configures the Engine.
type Option func(*Engine)

// WithStore sets the persistence backend for sessions. Without it sessions
// live only in memory.
func WithStore(store ports.SessionStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLocker serializes message processing per conversation across engine
// replicas sharing a store.
func WithLocker(locker ports.ConversationLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithDispatcher sets the outbound message channel. Defaults to a dispatcher
// that logs outbound traffic.
func WithDispatcher(d ports.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithEventSink subscribes a sink to session lifecycle events.
func WithEventSink(sink ports.EventSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sink) }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetricsRegistry registers engine metrics on reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = metrics.New(reg) }
}

// WithMaxDepth bounds traversal depth per message.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// WithDefaultTTL sets the session window applied when a trigger configures
// no timeout of its own.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.defaultTTL = ttl }
}

// WithSweepInterval sets how often the expiry sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(e *Engine) { e.sweepEvery = interval }
}

// New builds an Engine around the given flow provider.
func New(flows ports.FlowProvider, opts ...Option) (*Engine, error) {
	if flows == nil {
		return nil, fmt.Errorf("flow provider is required")
	}

	e := &Engine{
		maxDepth:   0, // engine default applies
		defaultTTL: session.DefaultTTL,
		sweepEvery: session.DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNop()
	}
	if e.dispatcher == nil {
		e.dispatcher = console.New(e.logger)
	}

	emitter := events.NewEmitter(e.logger, e.sinks...)

	managerOpts := []session.Option{
		session.WithEmitter(emitter),
		session.WithLogger(e.logger),
		session.WithMetrics(e.metrics),
		session.WithDefaultTTL(e.defaultTTL),
		session.WithSweepInterval(e.sweepEvery),
	}
	if e.store != nil {
		managerOpts = append(managerOpts, session.WithStore(e.store))
	}
	e.sessions = session.NewManager(ProviderTriggerConfig(flows), managerOpts...)

	e.registry = registry.New()
	executors.New(e.dispatcher, executors.WithLogger(e.logger)).RegisterAll(e.registry)

	engineOpts := []engine.Option{
		engine.WithLogger(e.logger),
		engine.WithMetrics(e.metrics),
	}
	if e.maxDepth > 0 {
		engineOpts = append(engineOpts, engine.WithMaxDepth(e.maxDepth))
	}
	if e.locker != nil {
		engineOpts = append(engineOpts, engine.WithLocker(e.locker))
	}
	e.runtime = engine.New(flows, e.sessions, e.registry, engineOpts...)

	return e, nil
}

// ProcessMessage routes one inbound message through trigger matching,
// session resume and graph traversal. Flow-level failures are absorbed into
// session state; only infrastructure errors are returned.
func (e *Engine) ProcessMessage(ctx context.Context, msg *domain.InboundMessage,
	conversation *domain.Conversation, contact *domain.Contact,
	connection *domain.ChannelConnection) error {
	return e.runtime.ProcessMessage(ctx, msg, conversation, contact, connection)
}

// Sessions exposes the session manager for inspection and administration.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Registry exposes the executor registry so hosts can override node
// executors before serving traffic.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Hydrate reloads live sessions from the store into memory, re-arming their
// expiry timers. Call once at startup when a store is configured.
func (e *Engine) Hydrate(ctx context.Context) (int, error) {
	return e.sessions.Hydrate(ctx)
}

// StartSweeper runs the periodic expiry sweep until ctx is cancelled.
func (e *Engine) StartSweeper(ctx context.Context) {
	e.sessions.StartSweeper(ctx)
}

// ProviderTriggerConfig derives a trigger-config resolver from a flow
// provider. Session timeout renewal reads through this so edits to a
// trigger's window apply to live sessions.
func ProviderTriggerConfig(flows ports.FlowProvider) session.TriggerConfigFunc {
	return func(ctx context.Context, flowID, triggerNodeID string) (domain.TriggerConfig, error) {
		flow, err := flows.Flow(ctx, flowID)
		if err != nil {
			return domain.TriggerConfig{}, err
		}
		node, ok := flow.NodeByID(triggerNodeID)
		if !ok {
			return domain.TriggerConfig{}, fmt.Errorf("trigger %s: %w", triggerNodeID, domain.ErrNodeNotFound)
		}
		var cfg domain.TriggerConfig
		if err := node.DecodeConfig(&cfg); err != nil {
			return domain.TriggerConfig{}, fmt.Errorf("decode trigger config: %w", err)
		}
		return cfg, nil
	}
}
