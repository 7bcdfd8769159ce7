package ports

import (
	"context"
	"testing"
	"time"

	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract verifies that a SessionStore implementation adheres
// to the interface contract. Adapter test suites call this against their
// backend (memory, miniredis, in-memory sqlite).
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	id := "contract-session-" + time.Now().Format("20060102150405.000")

	session := domain.NewSession(id, "flow-1", "conv-1", "contact-1", "company-1", "trigger-1")
	session.Variables["foo"] = "bar"
	session.ExecutionPath = append(session.ExecutionPath, "node-2")
	session.NodeStates["node-2"] = domain.NodeState{Status: domain.NodeRunCompleted, StartedAt: time.Now()}

	t.Run("SaveAndLoad", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, session))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, session.SessionID, loaded.SessionID)
		assert.Equal(t, session.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, domain.StatusActive, loaded.Status)
		assert.Equal(t, "bar", loaded.Variables["foo"])
		assert.Equal(t, []string{"trigger-1", "node-2"}, loaded.ExecutionPath)
		assert.Contains(t, loaded.NodeStates, "node-2")
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "never-created")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("ListLive", func(t *testing.T) {
		live, err := store.ListLive(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(live))
		for _, s := range live {
			ids = append(ids, s.SessionID)
		}
		assert.Contains(t, ids, id)
	})

	t.Run("TerminalSessionsStayPersisted", func(t *testing.T) {
		session.Status = domain.StatusCompleted
		require.NoError(t, store.Save(ctx, session))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, loaded.Status)

		live, err := store.ListLive(ctx)
		require.NoError(t, err)
		for _, s := range live {
			assert.NotEqual(t, id, s.SessionID, "terminal session must not be listed as live")
		}
	})

	t.Run("Variables", func(t *testing.T) {
		require.NoError(t, store.UpsertVariable(ctx, id, "answer", 42))
		require.NoError(t, store.UpsertVariable(ctx, id, "answer", 43))
		require.NoError(t, store.UpsertVariable(ctx, id, "name", "ada"))

		vars, err := store.ListVariables(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "ada", vars["name"])
		// JSON round-trips numbers as float64; accept either representation.
		assert.InDelta(t, 43, toF(vars["answer"]), 0.001)
	})

	t.Run("LoadIsolation", func(t *testing.T) {
		a, err := store.Load(ctx, id)
		require.NoError(t, err)
		a.Variables["mutated"] = true

		b, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, b.Variables, "mutated", "loads must not share mutable state")
	})
}

func toF(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return -1
}
