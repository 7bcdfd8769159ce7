package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdept/flowmachine/internal/adapters/memory"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

func TestStoreContract(t *testing.T) {
	ports.RunSessionStoreContract(t, memory.NewStore())
}

func TestFlowProviderRegistrationOrder(t *testing.T) {
	p := memory.NewFlowProvider()
	p.Register("co-1", &domain.Flow{ID: "f-b"})
	p.Register("co-1", &domain.Flow{ID: "f-a"})
	p.Register("co-2", &domain.Flow{ID: "f-x"})

	flows, err := p.FlowsForCompany(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "f-b", flows[0].ID, "trigger matching order follows registration order")
	assert.Equal(t, "f-a", flows[1].ID)

	flow, err := p.Flow(context.Background(), "f-x")
	require.NoError(t, err)
	assert.Equal(t, "f-x", flow.ID)

	_, err = p.Flow(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	// Re-registering replaces without duplicating the company listing.
	p.Register("co-1", &domain.Flow{ID: "f-a", Name: "updated"})
	flows, err = p.FlowsForCompany(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Len(t, flows, 2)
}
