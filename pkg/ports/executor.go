package ports

import (
	"context"

	"github.com/avdept/flowmachine/pkg/domain"
)

// ExecutionContext is the scratch space handed to executors. Variables
// written here are merged into the session (last-writer-wins) after the
// executor returns.
type ExecutionContext struct {
	Session        *domain.FlowSessionState
	Message        *domain.InboundMessage
	Variables      map[string]any
	TriggeredTasks []string // AI assistant task ids fired during execution
}

// NewExecutionContext builds a context seeded with the session's variables.
func NewExecutionContext(session *domain.FlowSessionState, msg *domain.InboundMessage) *ExecutionContext {
	vars := make(map[string]any, len(session.Variables))
	for k, v := range session.Variables {
		vars[k] = v
	}
	return &ExecutionContext{Session: session, Message: msg, Variables: vars}
}

// SetVariable records a variable write.
func (e *ExecutionContext) SetVariable(name string, value any) {
	e.Variables[name] = value
}

// NodeExecutor performs the work of one node type. Executors may mutate the
// execution context's variables and perform channel sends; a returned error
// fails the session and aborts the traversal (no retry inside the engine).
type NodeExecutor interface {
	Execute(ctx context.Context, node *domain.Node, execCtx *ExecutionContext,
		conversation *domain.Conversation, contact *domain.Contact,
		connection *domain.ChannelConnection) error
}

// ExecutorFunc adapts a function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, node *domain.Node, execCtx *ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact,
	connection *domain.ChannelConnection) error

// Execute implements NodeExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, node *domain.Node, execCtx *ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact,
	connection *domain.ChannelConnection) error {
	return f(ctx, node, execCtx, conversation, contact, connection)
}
