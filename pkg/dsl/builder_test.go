package dsl_test

import (
	"testing"

	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWelcomeFlow(t *testing.T) {
	flow, err := dsl.New("welcome").Name("Welcome").
		Node("trig").Trigger(domain.TriggerContains).Value("hi").Timeout(30, "minutes").Go("ask").
		Node("ask").Question("What is your name?", "name").Go("greet").
		Node("greet").Message("Nice to meet you, {{name}}!").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "welcome", flow.ID)
	assert.Equal(t, "Welcome", flow.Name)
	require.Len(t, flow.Nodes, 3)
	assert.Equal(t, "trig", flow.Nodes[0].ID)
	assert.Equal(t, domain.NodeTrigger, flow.Nodes[0].Type)

	var trig domain.TriggerConfig
	require.NoError(t, flow.Nodes[0].DecodeConfig(&trig))
	assert.Equal(t, domain.TriggerContains, trig.Condition)
	assert.Equal(t, "hi", trig.Value)
	assert.Equal(t, 30, trig.SessionTimeout.Amount)
	assert.True(t, trig.Persistent())

	var q domain.QuestionConfig
	require.NoError(t, flow.Nodes[1].DecodeConfig(&q))
	assert.Equal(t, "name", q.Variable)

	require.Len(t, flow.Edges, 2)
	assert.Equal(t, domain.Edge{Source: "trig", Target: "ask"}, flow.Edges[0])
}

func TestBuildHandlesAndConditions(t *testing.T) {
	flow, err := dsl.New("routing").
		Node("trig").Trigger(domain.TriggerAny).NonPersistent().Go("pick").
		Node("pick").QuickReply("Pick one", "Sales", "Support").
		On("option-1", "sales").
		On("option-2", "support").
		On("invalid-response", "sorry").
		Node("sales").Condition("vip", domain.OpEquals, "yes").
		On("yes", "fast").GoIf("slow", "region", domain.OpExists, nil).
		Node("support").Message("Support here").
		Node("sorry").Message("Did not catch that").
		Node("fast").Message("VIP lane").
		Node("slow").Message("Regular lane").
		Build()
	require.NoError(t, err)

	var trig domain.TriggerConfig
	require.NoError(t, flow.Nodes[0].DecodeConfig(&trig))
	assert.False(t, trig.Persistent())

	var sel domain.SelectionConfig
	pick, ok := flow.NodeByID("pick")
	require.True(t, ok)
	require.NoError(t, pick.DecodeConfig(&sel))
	require.Len(t, sel.Options, 2)
	assert.Equal(t, "Sales", sel.Options[0].Label)

	out := flow.OutgoingEdges("pick")
	require.Len(t, out, 3)
	assert.Equal(t, "option-1", out[0].SourceHandle)
	assert.Equal(t, "invalid-response", out[2].SourceHandle)

	gated := flow.OutgoingEdges("sales")[1]
	require.NotNil(t, gated.Condition)
	assert.Equal(t, domain.OpExists, gated.Condition.Operator)
}

func TestBuildKeywordMessage(t *testing.T) {
	flow, err := dsl.New("kw").
		Node("trig").Trigger(domain.TriggerAny).Go("menu").
		Node("menu").Message("Say pizza or sushi").KeywordReplies("pizza", "sushi").
		On("keyword-pizza", "pizza").
		Node("pizza").Message("Pizza it is").
		Node("sushi").Message("Sushi it is").
		Build()
	require.NoError(t, err)

	menu, ok := flow.NodeByID("menu")
	require.True(t, ok)
	assert.True(t, menu.RequiresInput())

	var cfg domain.MessageConfig
	require.NoError(t, menu.DecodeConfig(&cfg))
	require.Len(t, cfg.Keywords, 2)
	assert.Equal(t, "pizza", cfg.Keywords[0].Keyword)
}

func TestBuildRejectsDanglingEdge(t *testing.T) {
	_, err := dsl.New("broken").
		Node("trig").Trigger(domain.TriggerAny).Go("missing").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared node")
}

func TestBuildRejectsUntypedNode(t *testing.T) {
	_, err := dsl.New("broken").
		Node("mystery").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no type")
}

func TestNodeReturnsExistingBuilder(t *testing.T) {
	b := dsl.New("f")
	b.Node("a").Message("first")
	b.Node("a").Set("text", "second")
	flow, err := b.Build()
	require.NoError(t, err)
	require.Len(t, flow.Nodes, 1)
	assert.Equal(t, "second", flow.Nodes[0].Data["text"])
}
