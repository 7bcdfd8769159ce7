package guard

import (
	"fmt"

	"github.com/avdept/flowmachine/pkg/domain"
)

// DefaultMaxDepth bounds a single traversal run.
const DefaultMaxDepth = 100

// Traversal tracks the nodes visited within one traversal run. Each
// top-level dispatch (fresh message or resume-from-waiting) starts a new
// Traversal with an empty visited set.
type Traversal struct {
	visited  map[string]struct{}
	depth    int
	maxDepth int
}

// NewTraversal creates a traversal guard. A non-positive maxDepth falls back
// to DefaultMaxDepth.
func NewTraversal(maxDepth int) *Traversal {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Traversal{
		visited:  make(map[string]struct{}),
		maxDepth: maxDepth,
	}
}

// Enter records a step into the given node. It returns ErrCycleDetected when
// the node was already visited in this run, or ErrMaxDepthExceeded when the
// depth limit is crossed; either failure is terminal for the session.
func (t *Traversal) Enter(nodeID string) error {
	if _, seen := t.visited[nodeID]; seen {
		return fmt.Errorf("%w: node %s revisited", domain.ErrCycleDetected, nodeID)
	}
	t.depth++
	if t.depth > t.maxDepth {
		return fmt.Errorf("%w: limit %d", domain.ErrMaxDepthExceeded, t.maxDepth)
	}
	t.visited[nodeID] = struct{}{}
	return nil
}

// Visited reports whether the node was entered in this run.
func (t *Traversal) Visited(nodeID string) bool {
	_, ok := t.visited[nodeID]
	return ok
}

// Depth returns the number of nodes entered so far.
func (t *Traversal) Depth() int {
	return t.depth
}
