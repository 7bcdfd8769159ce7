package memory

import (
	"context"
	"sync"

	"github.com/avdept/flowmachine/pkg/domain"
)

// FlowProvider implements ports.FlowProvider over a registered flow set.
type FlowProvider struct {
	mu      sync.RWMutex
	flows   map[string]*domain.Flow
	company map[string][]string // companyID -> flow ids, registration order
}

// NewFlowProvider creates an empty provider.
func NewFlowProvider() *FlowProvider {
	return &FlowProvider{
		flows:   make(map[string]*domain.Flow),
		company: make(map[string][]string),
	}
}

// Register adds or replaces a flow for a company.
func (p *FlowProvider) Register(companyID string, flow *domain.Flow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.flows[flow.ID]; !exists {
		p.company[companyID] = append(p.company[companyID], flow.ID)
	}
	p.flows[flow.ID] = flow
}

// Flow returns one flow by id.
func (p *FlowProvider) Flow(ctx context.Context, flowID string) (*domain.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	flow, ok := p.flows[flowID]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return flow, nil
}

// FlowsForCompany returns a company's flows in registration order.
func (p *FlowProvider) FlowsForCompany(ctx context.Context, companyID string) ([]*domain.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := p.company[companyID]
	out := make([]*domain.Flow, 0, len(ids))
	for _, id := range ids {
		if f, ok := p.flows[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}
