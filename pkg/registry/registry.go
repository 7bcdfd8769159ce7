// Package registry maps node types to their executors.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// Registry holds one executor per node type. It replaces label-based dynamic
// dispatch with a closed lookup over domain.NodeType.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.NodeType]ports.NodeExecutor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		executors: make(map[domain.NodeType]ports.NodeExecutor),
	}
}

// Register adds an executor for a node type.
// If the type is already registered, it is overwritten.
func (r *Registry) Register(t domain.NodeType, exec ports.NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = exec
}

// RegisterFunc is a convenience wrapper around Register.
func (r *Registry) RegisterFunc(t domain.NodeType, fn ports.ExecutorFunc) {
	r.Register(t, fn)
}

// Lookup returns the executor for a node type.
func (r *Registry) Lookup(t domain.NodeType) (ports.NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[t]
	return exec, ok
}

// Execute dispatches the node to its registered executor.
// Returns domain.ErrNoExecutor if the type is not registered.
func (r *Registry) Execute(ctx context.Context, node *domain.Node, execCtx *ports.ExecutionContext,
	conversation *domain.Conversation, contact *domain.Contact,
	connection *domain.ChannelConnection) error {

	exec, ok := r.Lookup(node.Type)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoExecutor, node.Type)
	}
	return exec.Execute(ctx, node, execCtx, conversation, contact, connection)
}
