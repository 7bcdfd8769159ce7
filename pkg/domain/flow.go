package domain

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeType is the closed set of node kinds the engine can dispatch.
// Integration-heavy types (Shopify, calendars, ...) register their executors
// at runtime but still declare one of these values or an extension string;
// unknown types simply fail dispatch with ErrNoExecutor.
type NodeType string

const (
	NodeTrigger            NodeType = "trigger"
	NodeMessage            NodeType = "message"
	NodeMedia              NodeType = "media"
	NodeQuickReply         NodeType = "quick_reply"
	NodePoll               NodeType = "poll"
	NodeInteractiveButtons NodeType = "interactive_buttons"
	NodeInteractiveList    NodeType = "interactive_list"
	NodeQuestion           NodeType = "question"
	NodeCondition          NodeType = "condition"
	NodeSetVariable        NodeType = "set_variable"
	NodeDelay              NodeType = "delay"
	NodeWebhook            NodeType = "webhook"
	NodeAIAssistant        NodeType = "ai_assistant"
	NodeHandoff            NodeType = "handoff"
	NodeBotDisable         NodeType = "bot_disable"
	NodeEnd                NodeType = "end"
)

// Node is one typed unit of work in a flow graph. Data carries the
// node-specific configuration as authored in the flow builder.
type Node struct {
	ID   string         `json:"id"`
	Type NodeType       `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// DecodeConfig maps the node's raw Data into a typed config struct.
// Input is weakly typed because Data round-trips through JSON (numbers
// arrive as float64, booleans sometimes as strings).
func (n *Node) DecodeConfig(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build node config decoder: %w", err)
	}
	if err := dec.Decode(n.Data); err != nil {
		return fmt.Errorf("failed to decode config of node %s: %w", n.ID, err)
	}
	return nil
}

// Edge is a directed connection between two nodes. SourceHandle discriminates
// among multiple output branches of the source node; Condition optionally
// gates the edge on session variables.
type Edge struct {
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	SourceHandle string         `json:"sourceHandle,omitempty"`
	Condition    *EdgeCondition `json:"condition,omitempty"`
}

// Flow is a user-authored automation graph.
type Flow struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID looks a node up by id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns the edges leaving the given node, in declaration order.
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// TriggerNodes returns the flow's entry nodes in declaration order.
func (f *Flow) TriggerNodes() []Node {
	var out []Node
	for _, n := range f.Nodes {
		if n.Type == NodeTrigger {
			out = append(out, n)
		}
	}
	return out
}

// flowDefinition is the single-blob shape some providers store flows in.
type flowDefinition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ParseFlow builds a Flow from provider rows. Providers store graphs either
// as one JSON "definition" blob or as separately encoded nodes/edges columns;
// both shapes are accepted, with the blob taking precedence when present.
// Malformed JSON degrades to an empty graph rather than an error.
func ParseFlow(id string, definition, nodesJSON, edgesJSON []byte) *Flow {
	f := &Flow{ID: id}
	if len(definition) > 0 {
		def := SafeUnmarshal(definition, flowDefinition{})
		f.Nodes = def.Nodes
		f.Edges = def.Edges
		if f.Nodes != nil || f.Edges != nil {
			return f
		}
	}
	f.Nodes = SafeUnmarshal(nodesJSON, []Node{})
	f.Edges = SafeUnmarshal(edgesJSON, []Edge{})
	return f
}

// MarshalDefinition serializes the graph into the single-blob shape.
func (f *Flow) MarshalDefinition() ([]byte, error) {
	return json.Marshal(flowDefinition{Nodes: f.Nodes, Edges: f.Edges})
}
