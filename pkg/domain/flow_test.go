package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdept/flowmachine/pkg/domain"
)

func TestParseFlowFromDefinitionBlob(t *testing.T) {
	definition := []byte(`{
		"nodes": [
			{"id": "t1", "type": "trigger", "data": {"condition": "any"}},
			{"id": "m1", "type": "message", "data": {"text": "hi"}}
		],
		"edges": [
			{"source": "t1", "target": "m1"}
		]
	}`)

	flow := domain.ParseFlow("flow-1", definition, nil, nil)
	require.Len(t, flow.Nodes, 2)
	require.Len(t, flow.Edges, 1)
	assert.Equal(t, "flow-1", flow.ID)

	trig, ok := flow.NodeByID("t1")
	require.True(t, ok)
	assert.Equal(t, domain.NodeTrigger, trig.Type)
}

func TestParseFlowFromColumns(t *testing.T) {
	nodes := []byte(`[{"id": "t1", "type": "trigger"}, {"id": "e1", "type": "end"}]`)
	edges := []byte(`[{"source": "t1", "target": "e1", "sourceHandle": "yes"}]`)

	flow := domain.ParseFlow("flow-2", nil, nodes, edges)
	require.Len(t, flow.Nodes, 2)
	require.Len(t, flow.Edges, 1)
	assert.Equal(t, "yes", flow.Edges[0].SourceHandle)
}

func TestParseFlowMalformedDegradesToEmpty(t *testing.T) {
	flow := domain.ParseFlow("flow-3", []byte(`{not json`), []byte(`also not`), nil)
	assert.Empty(t, flow.Nodes)
	assert.Empty(t, flow.Edges)
}

func TestOutgoingEdgesPreservesDeclarationOrder(t *testing.T) {
	flow := &domain.Flow{
		Edges: []domain.Edge{
			{Source: "a", Target: "b"},
			{Source: "x", Target: "y"},
			{Source: "a", Target: "c"},
		},
	}
	out := flow.OutgoingEdges("a")
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Target)
	assert.Equal(t, "c", out[1].Target)
}

func TestTriggerNodes(t *testing.T) {
	flow := &domain.Flow{
		Nodes: []domain.Node{
			{ID: "m", Type: domain.NodeMessage},
			{ID: "t1", Type: domain.NodeTrigger},
			{ID: "t2", Type: domain.NodeTrigger},
		},
	}
	triggers := flow.TriggerNodes()
	require.Len(t, triggers, 2)
	assert.Equal(t, "t1", triggers[0].ID)
	assert.Equal(t, "t2", triggers[1].ID)
}

func TestDecodeConfigWeakTyping(t *testing.T) {
	// Flow builders persist through JSON, so numbers arrive as float64 and
	// booleans occasionally as strings.
	node := &domain.Node{
		ID:   "d1",
		Type: domain.NodeDelay,
		Data: map[string]any{"amount": float64(5), "unit": "seconds"},
	}
	var cfg domain.DelayConfig
	require.NoError(t, node.DecodeConfig(&cfg))
	assert.Equal(t, 5, cfg.Amount)

	trig := &domain.Node{
		ID:   "t1",
		Type: domain.NodeTrigger,
		Data: map[string]any{"condition": "exact", "value": "hi", "caseSensitive": "true"},
	}
	var tcfg domain.TriggerConfig
	require.NoError(t, trig.DecodeConfig(&tcfg))
	assert.True(t, tcfg.CaseSensitive)
}
