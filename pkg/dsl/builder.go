package dsl

import (
	"fmt"

	"github.com/avdept/flowmachine/pkg/domain"
)

// Builder accumulates nodes and edges in declaration order.
type Builder struct {
	id    string
	name  string
	order []*NodeBuilder
	nodes map[string]*NodeBuilder
}

// New creates a builder for a flow with the given id.
func New(flowID string) *Builder {
	return &Builder{
		id:    flowID,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Name sets the flow's display name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Node creates a node in the graph, or returns the existing builder when the
// id was already declared.
func (b *Builder) Node(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Data: make(map[string]any)},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, nb)
	return nb
}

// Build compiles the graph. Node and edge order follow declaration order,
// which is what trigger matching and edge resolution key on.
func (b *Builder) Build() (*domain.Flow, error) {
	flow := &domain.Flow{ID: b.id, Name: b.name}
	for _, nb := range b.order {
		if nb.node.Type == "" {
			return nil, fmt.Errorf("node %s has no type", nb.node.ID)
		}
		flow.Nodes = append(flow.Nodes, nb.node)
	}
	for _, nb := range b.order {
		for _, e := range nb.edges {
			if _, ok := b.nodes[e.Target]; !ok {
				return nil, fmt.Errorf("edge %s -> %s targets an undeclared node", e.Source, e.Target)
			}
			flow.Edges = append(flow.Edges, e)
		}
	}
	return flow, nil
}
