package guard_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdept/flowmachine/internal/guard"
	"github.com/avdept/flowmachine/pkg/domain"
)

func TestTraversalDetectsCycle(t *testing.T) {
	trav := guard.NewTraversal(0)

	require.NoError(t, trav.Enter("a"))
	require.NoError(t, trav.Enter("b"))

	err := trav.Enter("a")
	assert.ErrorIs(t, err, domain.ErrCycleDetected)
	assert.True(t, trav.Visited("a"))
	assert.True(t, trav.Visited("b"))
}

func TestTraversalDepthLimit(t *testing.T) {
	trav := guard.NewTraversal(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, trav.Enter(fmt.Sprintf("n%d", i)))
	}
	assert.Equal(t, 3, trav.Depth())

	err := trav.Enter("n3")
	assert.ErrorIs(t, err, domain.ErrMaxDepthExceeded)
}

func TestTraversalDefaultDepth(t *testing.T) {
	trav := guard.NewTraversal(-1)
	for i := 0; i < guard.DefaultMaxDepth; i++ {
		require.NoError(t, trav.Enter(fmt.Sprintf("n%d", i)))
	}
	assert.ErrorIs(t, trav.Enter("one-more"), domain.ErrMaxDepthExceeded)
}

func TestFreshTraversalForgetsVisits(t *testing.T) {
	// Each message dispatch starts a new traversal, so a node revisited
	// across separate messages is legal.
	first := guard.NewTraversal(0)
	require.NoError(t, first.Enter("a"))

	second := guard.NewTraversal(0)
	assert.NoError(t, second.Enter("a"))
}
