package engine_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdept/flowmachine/internal/adapters/memory"
	"github.com/avdept/flowmachine/internal/engine"
	"github.com/avdept/flowmachine/internal/executors"
	"github.com/avdept/flowmachine/internal/session"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
	"github.com/avdept/flowmachine/pkg/registry"
)

// capturingDispatcher records outbound sends.
type capturingDispatcher struct {
	mu   sync.Mutex
	sent []string
}

func (d *capturingDispatcher) SendMessage(_ context.Context, _ *domain.ChannelConnection,
	_ *domain.Conversation, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, text)
	return nil
}

func (d *capturingDispatcher) SendMedia(_ context.Context, _ *domain.ChannelConnection,
	_ *domain.Conversation, mediaURL, _, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, "media:"+mediaURL)
	return nil
}

func (d *capturingDispatcher) messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// harness bundles a fully wired engine over in-memory adapters.
type harness struct {
	engine     *engine.Engine
	sessions   *session.Manager
	store      *memory.Store
	dispatcher *capturingDispatcher
}

func newHarness(t *testing.T, flows *memory.FlowProvider, opts ...engine.Option) *harness {
	t.Helper()

	store := memory.NewStore()
	triggerConfig := func(ctx context.Context, flowID, triggerNodeID string) (domain.TriggerConfig, error) {
		flow, err := flows.Flow(ctx, flowID)
		if err != nil {
			return domain.TriggerConfig{}, err
		}
		node, ok := flow.NodeByID(triggerNodeID)
		if !ok {
			return domain.TriggerConfig{}, domain.ErrNodeNotFound
		}
		var cfg domain.TriggerConfig
		if err := node.DecodeConfig(&cfg); err != nil {
			return domain.TriggerConfig{}, err
		}
		return cfg, nil
	}

	mgr := session.NewManager(triggerConfig, session.WithStore(store))

	dispatcher := &capturingDispatcher{}
	reg := registry.New()
	executors.New(dispatcher).RegisterAll(reg)

	return &harness{
		engine:     engine.New(flows, mgr, reg, opts...),
		sessions:   mgr,
		store:      store,
		dispatcher: dispatcher,
	}
}

func (h *harness) process(t *testing.T, msgID, content string) {
	t.Helper()
	msg := &domain.InboundMessage{
		ID:             msgID,
		ConversationID: "conv-1",
		Channel:        domain.ChannelWhatsApp,
		Content:        content,
		ReceivedAt:     time.Now(),
	}
	conv := &domain.Conversation{ID: "conv-1", CompanyID: "co-1", Channel: domain.ChannelWhatsApp, ContactID: "ct-1"}
	contact := &domain.Contact{ID: "ct-1"}
	require.NoError(t, h.engine.ProcessMessage(context.Background(), msg, conv, contact, nil))
}

func (h *harness) waitingSession(t *testing.T) *domain.FlowSessionState {
	t.Helper()
	waiting := h.sessions.WaitingForConversation("conv-1")
	require.Len(t, waiting, 1)
	return waiting[0]
}

func registerFlow(flows *memory.FlowProvider, nodes []domain.Node, edges []domain.Edge) {
	flows.Register("co-1", &domain.Flow{ID: "flow-1", Name: "test flow", Nodes: nodes, Edges: edges})
}

func anyTrigger(persistent bool) domain.Node {
	return domain.Node{ID: "trig", Type: domain.NodeTrigger, Data: map[string]any{
		"condition":          "any",
		"sessionPersistence": persistent,
	}}
}

func TestNonPersistentTriggerCreatesSessionPerMessage(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "greet", Type: domain.NodeMessage, Data: map[string]any{"text": "welcome"}},
		},
		[]domain.Edge{{Source: "trig", Target: "greet"}},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hello")
	h.process(t, "m2", "hello again")

	assert.Equal(t, []string{"welcome", "welcome"}, h.dispatcher.messages())

	// Both runs completed and left the live table.
	_, ok := h.sessions.FindLive("trig", "conv-1", "ct-1")
	assert.False(t, ok)
}

func TestPersistentTriggerReusesSession(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(true),
			{ID: "greet", Type: domain.NodeMessage, Data: map[string]any{"text": "welcome"}},
		},
		[]domain.Edge{{Source: "trig", Target: "greet"}},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hello")

	first, ok := h.sessions.FindLive("trig", "conv-1", "ct-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, first.Status, "persistent trigger re-arms instead of completing")
	assert.Equal(t, "trig", first.CurrentNodeID)

	h.process(t, "m2", "hello again")

	second, ok := h.sessions.FindLive("trig", "conv-1", "ct-1")
	require.True(t, ok)
	assert.Equal(t, first.SessionID, second.SessionID, "at most one live session per trigger identity")
	assert.Equal(t, []string{"welcome", "welcome"}, h.dispatcher.messages())
}

func TestQuickReplySuspendAndResume(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "menu", Type: domain.NodeQuickReply, Data: map[string]any{
				"prompt": "Pick one",
				"options": []any{
					map[string]any{"label": "Sales"},
					map[string]any{"label": "Support", "value": "support-queue"},
				},
			}},
			{ID: "sales", Type: domain.NodeMessage, Data: map[string]any{"text": "sales here"}},
			{ID: "support", Type: domain.NodeMessage, Data: map[string]any{"text": "support here"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "menu"},
			{Source: "menu", Target: "sales", SourceHandle: "option-1"},
			{Source: "menu", Target: "support", SourceHandle: "option-2"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")

	s := h.waitingSession(t)
	assert.Equal(t, "menu", s.WaitingContext.NodeID)
	assert.Equal(t, "selection", s.WaitingContext.ExpectedInputType)
	require.Len(t, h.dispatcher.messages(), 1)
	assert.Contains(t, h.dispatcher.messages()[0], "1. Sales")
	assert.Contains(t, h.dispatcher.messages()[0], "2. Support")

	h.process(t, "m2", "2")

	row, err := h.store.Load(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, row.Status)
	assert.Equal(t, 1, row.Variables["selectedOptionIndex"], "stored index is 0-based")
	assert.Equal(t, "Support", row.Variables["selectedOptionLabel"])
	assert.Equal(t, "support-queue", row.Variables["selectedOptionValue"])
	assert.Contains(t, row.ExecutionPath, "support")
	assert.NotContains(t, row.ExecutionPath, "sales")
	assert.Equal(t, "support here", h.dispatcher.messages()[1])
}

func TestQuickReplyResumeByLabel(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "menu", Type: domain.NodeQuickReply, Data: map[string]any{
				"prompt":  "Pick one",
				"options": []any{map[string]any{"label": "Sales"}},
			}},
			{ID: "sales", Type: domain.NodeMessage, Data: map[string]any{"text": "sales here"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "menu"},
			{Source: "menu", Target: "sales", SourceHandle: "option-1"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")
	h.process(t, "m2", "sales") // label match, case-insensitive

	assert.Equal(t, "sales here", h.dispatcher.messages()[1])
}

func TestInvalidSelectionRoutesToInvalidResponseEdge(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "menu", Type: domain.NodeQuickReply, Data: map[string]any{
				"prompt":  "Pick one",
				"options": []any{map[string]any{"label": "Sales"}},
			}},
			{ID: "retry", Type: domain.NodeMessage, Data: map[string]any{"text": "please answer with 1"}},
			{ID: "sales", Type: domain.NodeMessage, Data: map[string]any{"text": "sales here"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "menu"},
			{Source: "menu", Target: "sales", SourceHandle: "option-1"},
			{Source: "menu", Target: "retry", SourceHandle: "invalid-response"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")
	h.process(t, "m2", "99")

	msgs := h.dispatcher.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "please answer with 1", msgs[1])
}

func TestInvalidSelectionWithoutEdgeLeavesSessionWaiting(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			{ID: "trig", Type: domain.NodeTrigger, Data: map[string]any{
				"condition": "exact", "value": "start", "sessionPersistence": false,
			}},
			{ID: "menu", Type: domain.NodeQuickReply, Data: map[string]any{
				"prompt":  "Pick one",
				"options": []any{map[string]any{"label": "Sales"}},
			}},
			{ID: "sales", Type: domain.NodeMessage, Data: map[string]any{"text": "sales here"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "menu"},
			{Source: "menu", Target: "sales", SourceHandle: "option-1"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "start")
	h.process(t, "m2", "gibberish") // neither a valid option nor a trigger match

	s := h.waitingSession(t)
	assert.Equal(t, "menu", s.WaitingContext.NodeID, "session still waits for valid input")
	assert.Len(t, h.dispatcher.messages(), 1, "nothing sent for the unmatched reply")

	// A valid answer afterwards still works.
	h.process(t, "m3", "1")
	assert.Equal(t, "sales here", h.dispatcher.messages()[1])
}

func TestQuestionCapturesVariableAndInterpolates(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "ask", Type: domain.NodeQuestion, Data: map[string]any{
				"prompt": "What is your name?", "variable": "name",
			}},
			{ID: "greet", Type: domain.NodeMessage, Data: map[string]any{"text": "Hello {{name}}!"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "ask"},
			{Source: "ask", Target: "greet"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")
	s := h.waitingSession(t)

	h.process(t, "m2", "Ada")

	row, err := h.store.Load(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", row.Variables["name"])
	assert.Equal(t, "Hello Ada!", h.dispatcher.messages()[1])
}

func TestConditionBranching(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "set", Type: domain.NodeSetVariable, Data: map[string]any{"name": "tier", "value": "gold"}},
			{ID: "check", Type: domain.NodeCondition, Data: map[string]any{
				"variable": "tier", "operator": "equals", "value": "gold",
			}},
			{ID: "vip", Type: domain.NodeMessage, Data: map[string]any{"text": "vip lane"}},
			{ID: "std", Type: domain.NodeMessage, Data: map[string]any{"text": "standard lane"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "set"},
			{Source: "set", Target: "check"},
			{Source: "check", Target: "vip", SourceHandle: "yes"},
			{Source: "check", Target: "std", SourceHandle: "no"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")

	assert.Equal(t, []string{"vip lane"}, h.dispatcher.messages())
}

func TestConditionFallbackToAllWithoutBranchHandles(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "check", Type: domain.NodeCondition, Data: map[string]any{
				"variable": "missing", "operator": "equals", "value": "x",
			}},
			{ID: "a", Type: domain.NodeMessage, Data: map[string]any{"text": "path a"}},
			{ID: "b", Type: domain.NodeMessage, Data: map[string]any{"text": "path b"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "check"},
			{Source: "check", Target: "a"},
			{Source: "check", Target: "b"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")

	assert.Equal(t, []string{"path a", "path b"}, h.dispatcher.messages(),
		"edges without branch handles all fire regardless of the predicate")
}

func TestKeywordBranchingMessageNode(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "topic", Type: domain.NodeMessage, Data: map[string]any{
				"text":            "Say 'pricing' or 'demo'",
				"keywordTriggers": true,
				"keywords": []any{
					map[string]any{"keyword": "pricing"},
					map[string]any{"keyword": "demo"},
				},
			}},
			{ID: "price", Type: domain.NodeMessage, Data: map[string]any{"text": "pricing info"}},
			{ID: "demo", Type: domain.NodeMessage, Data: map[string]any{"text": "demo link"}},
			{ID: "sorry", Type: domain.NodeMessage, Data: map[string]any{"text": "did not get that"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "topic"},
			{Source: "topic", Target: "price", SourceHandle: "keyword-pricing"},
			{Source: "topic", Target: "demo", SourceHandle: "keyword-demo"},
			{Source: "topic", Target: "sorry", SourceHandle: "no-match"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")
	h.process(t, "m2", "tell me about PRICING")

	msgs := h.dispatcher.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "pricing info", msgs[1])
}

func TestKeywordMissRoutesToNoMatchEdge(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "topic", Type: domain.NodeMessage, Data: map[string]any{
				"text":            "Say 'pricing'",
				"keywordTriggers": true,
				"keywords":        []any{map[string]any{"keyword": "pricing"}},
			}},
			{ID: "price", Type: domain.NodeMessage, Data: map[string]any{"text": "pricing info"}},
			{ID: "sorry", Type: domain.NodeMessage, Data: map[string]any{"text": "did not get that"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "topic"},
			{Source: "topic", Target: "price", SourceHandle: "keyword-pricing"},
			{Source: "topic", Target: "sorry", SourceHandle: "no-match"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")
	h.process(t, "m2", "something unrelated")

	assert.Equal(t, "did not get that", h.dispatcher.messages()[1])
}

func TestCycleFailsSession(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "a", Type: domain.NodeSetVariable, Data: map[string]any{"name": "x", "value": "1"}},
			{ID: "b", Type: domain.NodeSetVariable, Data: map[string]any{"name": "y", "value": "2"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"}, // the cycle
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi") // must not hang or panic

	live, err := h.store.ListLive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live, "failed session is terminal")
}

func TestDepthLimitFailsSession(t *testing.T) {
	nodes := []domain.Node{anyTrigger(false)}
	var edges []domain.Edge
	prev := "trig"
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5"} {
		nodes = append(nodes, domain.Node{ID: id, Type: domain.NodeSetVariable,
			Data: map[string]any{"name": id, "value": "v"}})
		edges = append(edges, domain.Edge{Source: prev, Target: id})
		prev = id
	}
	flows := memory.NewFlowProvider()
	registerFlow(flows, nodes, edges)
	h := newHarness(t, flows, engine.WithMaxDepth(3))

	h.process(t, "m1", "hi")

	live, err := h.store.ListLive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestDuplicateMessageProcessedOnce(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "greet", Type: domain.NodeMessage, Data: map[string]any{"text": "welcome"}},
		},
		[]domain.Edge{{Source: "trig", Target: "greet"}},
	)
	h := newHarness(t, flows)

	h.process(t, "dup", "hello")
	h.process(t, "dup", "hello") // channel redelivery

	assert.Equal(t, []string{"welcome"}, h.dispatcher.messages())
}

func TestEdgeConditionGatesTraversal(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "set", Type: domain.NodeSetVariable, Data: map[string]any{"name": "lang", "value": "pt"}},
			{ID: "en", Type: domain.NodeMessage, Data: map[string]any{"text": "hello"}},
			{ID: "pt", Type: domain.NodeMessage, Data: map[string]any{"text": "olá"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "set"},
			{Source: "set", Target: "en", Condition: &domain.EdgeCondition{
				Variable: "lang", Operator: domain.OpEquals, Value: "en"}},
			{Source: "set", Target: "pt", Condition: &domain.EdgeCondition{
				Variable: "lang", Operator: domain.OpEquals, Value: "pt"}},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")

	assert.Equal(t, []string{"olá"}, h.dispatcher.messages())
}

func TestAIAssistantAbsorbsUntilStopKeyword(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "ai", Type: domain.NodeAIAssistant, Data: map[string]any{
				"prompt":           "Assistant here, say 'done' to finish",
				"stopKeyword":      "done",
				"exitOutputHandle": "finished",
			}},
			{ID: "bye", Type: domain.NodeMessage, Data: map[string]any{"text": "thanks for chatting"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "ai"},
			{Source: "ai", Target: "bye", SourceHandle: "finished"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")

	s := h.waitingSession(t)
	assert.True(t, s.AISessionActive)
	assert.Equal(t, "done", s.AIStopKeyword)

	// Mid-conversation turns are absorbed without advancing.
	h.process(t, "m2", "what are your hours?")
	s = h.waitingSession(t)
	assert.Equal(t, "ai", s.WaitingContext.NodeID)

	// The stop keyword exits through the configured handle.
	h.process(t, "m3", "DONE")

	row, err := h.store.Load(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, row.Status)
	assert.False(t, row.AISessionActive, "exit clears the AI sub-state")
	assert.Equal(t, "thanks for chatting", h.dispatcher.messages()[1])
}

func TestFailingExecutorFailsSessionButNotTransport(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "boom", Type: domain.NodeWebhook, Data: map[string]any{"url": "://not-a-url"}},
		},
		[]domain.Edge{{Source: "trig", Target: "boom"}},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi") // ProcessMessage must swallow the executor error

	live, err := h.store.ListLive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestUnknownNodeTypeFailsSession(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "shop", Type: "shopify_order", Data: map[string]any{}},
		},
		[]domain.Edge{{Source: "trig", Target: "shop"}},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")

	live, err := h.store.ListLive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestSetVariableMergesSliceValues(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "set", Type: domain.NodeSetVariable, Data: map[string]any{
				"name": "items", "value": []any{"a", "b"},
			}},
			{ID: "done", Type: domain.NodeMessage, Data: map[string]any{"text": "saved"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "set"},
			{Source: "set", Target: "done"},
		},
	)
	h := newHarness(t, flows)

	// The slice-valued variable is carried into the next node's merge; the
	// traversal must complete rather than choke on the uncomparable value.
	h.process(t, "m1", "hi")

	assert.Equal(t, []string{"saved"}, h.dispatcher.messages())

	live, err := h.store.ListLive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestMultipleKeywordsTriggerRoutesMatchedBranchOnly(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			{ID: "trig", Type: domain.NodeTrigger, Data: map[string]any{
				"condition": "multiple_keywords",
				"keywords": []any{
					map[string]any{"keyword": "pricing"},
					map[string]any{"keyword": "demo"},
				},
				"sessionPersistence": false,
			}},
			{ID: "price", Type: domain.NodeMessage, Data: map[string]any{"text": "pricing info"}},
			{ID: "demo", Type: domain.NodeMessage, Data: map[string]any{"text": "demo link"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "price", SourceHandle: "keyword-pricing"},
			{Source: "trig", Target: "demo", SourceHandle: "keyword-demo"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "tell me about pricing")

	assert.Equal(t, []string{"pricing info"}, h.dispatcher.messages(),
		"only the matched keyword's branch fires")
}

func TestNonMatchingReplyReplacesWaitingSession(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "menu", Type: domain.NodeQuickReply, Data: map[string]any{
				"prompt":  "Pick one",
				"options": []any{map[string]any{"label": "Sales"}},
			}},
			{ID: "sales", Type: domain.NodeMessage, Data: map[string]any{"text": "sales here"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "menu"},
			{Source: "menu", Target: "sales", SourceHandle: "option-1"},
		},
	)
	h := newHarness(t, flows)

	h.process(t, "m1", "hi")
	first := h.waitingSession(t)

	// Not an option, so the any-trigger matches cold and restarts the flow.
	// The superseded session must not linger as a second live one.
	h.process(t, "m2", "gibberish")

	second := h.waitingSession(t)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	row, err := h.store.Load(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, row.Status)
}

func TestAIAssistantTaskExecutionBranches(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "ai", Type: domain.NodeAIAssistant, Data: map[string]any{
				"prompt":        "How can I help?",
				"stopKeyword":   "done",
				"taskExecution": true,
			}},
			{ID: "order", Type: domain.NodeMessage, Data: map[string]any{"text": "your order is on its way"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "ai"},
			{Source: "ai", Target: "order", SourceHandle: "task-check-order"},
		},
	)

	store := memory.NewStore()
	mgr := session.NewManager(nil, session.WithStore(store))
	dispatcher := &capturingDispatcher{}
	reg := registry.New()
	executors.New(dispatcher).RegisterAll(reg)
	// A provider executor that fires a task when the user asks about orders.
	reg.RegisterFunc(domain.NodeAIAssistant, func(ctx context.Context, node *domain.Node,
		execCtx *ports.ExecutionContext, conversation *domain.Conversation,
		contact *domain.Contact, connection *domain.ChannelConnection) error {
		if !execCtx.Session.AISessionActive {
			return nil // opening turn only arms the handoff
		}
		if strings.Contains(strings.ToLower(execCtx.Message.Content), "order") {
			execCtx.TriggeredTasks = append(execCtx.TriggeredTasks, "check order")
		}
		return nil
	})
	h := &harness{engine: engine.New(flows, mgr, reg), sessions: mgr, store: store, dispatcher: dispatcher}

	h.process(t, "m1", "hi")
	s := h.waitingSession(t)
	require.True(t, s.AISessionActive)

	h.process(t, "m2", "where is my order?")

	assert.Equal(t, []string{"your order is on its way"}, h.dispatcher.messages(),
		"a triggered task runs its branch")

	// The assistant still owns the conversation after the side branch.
	s = h.waitingSession(t)
	assert.Equal(t, "ai", s.WaitingContext.NodeID)
	assert.True(t, s.AISessionActive)
}

func TestHydratedSessionResumesLikeLiveOne(t *testing.T) {
	nodes := []domain.Node{
		anyTrigger(false),
		{ID: "ask", Type: domain.NodeQuestion, Data: map[string]any{
			"prompt": "What is your name?", "variable": "name",
		}},
		{ID: "greet", Type: domain.NodeMessage, Data: map[string]any{"text": "Hello {{name}}!"}},
	}
	edges := []domain.Edge{
		{Source: "trig", Target: "ask"},
		{Source: "ask", Target: "greet"},
	}

	// Control: suspend and resume within one engine instance.
	controlFlows := memory.NewFlowProvider()
	registerFlow(controlFlows, nodes, edges)
	control := newHarness(t, controlFlows)
	control.process(t, "m1", "hi")
	controlSession := control.waitingSession(t)
	control.process(t, "m2", "Ada")
	controlRow, err := control.store.Load(context.Background(), controlSession.SessionID)
	require.NoError(t, err)

	// Same flow, but the waiting session crosses a restart: a fresh manager
	// hydrates it from the store before the reply arrives.
	flows := memory.NewFlowProvider()
	registerFlow(flows, nodes, edges)
	store := memory.NewStore()

	build := func() *harness {
		mgr := session.NewManager(nil, session.WithStore(store))
		dispatcher := &capturingDispatcher{}
		reg := registry.New()
		executors.New(dispatcher).RegisterAll(reg)
		return &harness{engine: engine.New(flows, mgr, reg), sessions: mgr, store: store, dispatcher: dispatcher}
	}

	before := build()
	before.process(t, "m1", "hi")
	suspended := before.waitingSession(t)

	after := build()
	count, err := after.sessions.Hydrate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	after.process(t, "m2", "Ada")

	row, err := store.Load(context.Background(), suspended.SessionID)
	require.NoError(t, err)
	assert.Equal(t, controlRow.Status, row.Status)
	assert.Equal(t, controlRow.CurrentNodeID, row.CurrentNodeID, "restart must not change the transition")
	assert.Equal(t, "Ada", row.Variables["name"])
	assert.Equal(t, "Hello Ada!", after.dispatcher.messages()[0])
}

func TestCustomExecutorIntegration(t *testing.T) {
	flows := memory.NewFlowProvider()
	registerFlow(flows,
		[]domain.Node{
			anyTrigger(false),
			{ID: "shop", Type: "shopify_order", Data: map[string]any{}},
			{ID: "confirm", Type: domain.NodeMessage, Data: map[string]any{"text": "order {{orderId}} placed"}},
		},
		[]domain.Edge{
			{Source: "trig", Target: "shop"},
			{Source: "shop", Target: "confirm"},
		},
	)

	store := memory.NewStore()
	mgr := session.NewManager(nil, session.WithStore(store))
	dispatcher := &capturingDispatcher{}
	reg := registry.New()
	executors.New(dispatcher).RegisterAll(reg)
	reg.RegisterFunc("shopify_order", func(ctx context.Context, node *domain.Node,
		execCtx *ports.ExecutionContext, conversation *domain.Conversation,
		contact *domain.Contact, connection *domain.ChannelConnection) error {
		execCtx.SetVariable("orderId", "A-100")
		return nil
	})
	h := &harness{engine: engine.New(flows, mgr, reg), sessions: mgr, store: store, dispatcher: dispatcher}

	h.process(t, "m1", "hi")

	assert.Equal(t, []string{"order A-100 placed"}, h.dispatcher.messages())
}
