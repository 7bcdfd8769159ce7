package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	sqliteadapter "github.com/avdept/flowmachine/internal/adapters/sqlite"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

func newTestStore(t *testing.T) *sqliteadapter.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A pooled second connection would see its own empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := sqliteadapter.New(db)
	require.NoError(t, err)
	return store
}

func TestStoreContract(t *testing.T) {
	ports.RunSessionStoreContract(t, newTestStore(t))
}

func TestRoundTripPreservesSessionDetail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := domain.NewSession("s-1", "f-1", "conv-1", "ct-1", "co-1", "trig")
	s.Status = domain.StatusWaiting
	s.CurrentNodeID = "menu"
	s.ExecutionPath = append(s.ExecutionPath, "menu")
	s.Variables["name"] = "Ada"
	ended := time.Now()
	s.NodeStates["menu"] = domain.NodeState{Status: domain.NodeRunCompleted, StartedAt: ended.Add(-time.Second), EndedAt: &ended}
	s.WaitingContext = &domain.WaitingContext{NodeID: "menu", ExpectedInputType: "selection", Timestamp: time.Now()}
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s.ExpiresAt = &exp
	s.AISessionActive = true
	s.AINodeID = "ai-1"
	s.AIStopKeyword = "done"
	s.AIExitOutputHandle = "finished"

	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, loaded.Status)
	assert.Equal(t, "menu", loaded.CurrentNodeID)
	assert.Equal(t, []string{"trig", "menu"}, loaded.ExecutionPath)
	assert.Equal(t, "Ada", loaded.Variables["name"])
	require.NotNil(t, loaded.WaitingContext)
	assert.Equal(t, "selection", loaded.WaitingContext.ExpectedInputType)
	require.NotNil(t, loaded.ExpiresAt)
	assert.True(t, loaded.AISessionActive)
	assert.Equal(t, "done", loaded.AIStopKeyword)
	assert.Contains(t, loaded.NodeStates, "menu")
}

func TestSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := domain.NewSession("s-1", "f-1", "conv-1", "ct-1", "co-1", "trig")
	require.NoError(t, store.Save(ctx, s))

	s.Status = domain.StatusCompleted
	s.CurrentNodeID = "end"
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, loaded.Status)
	assert.Equal(t, "end", loaded.CurrentNodeID)
}
