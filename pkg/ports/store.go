package ports

import (
	"context"

	"github.com/avdept/flowmachine/pkg/domain"
)

// SessionStore persists flow sessions. Implementations must treat JSON-encoded
// array/map columns leniently on read (domain.SafeUnmarshal), so a corrupt row
// hydrates to empty collections instead of failing the load.
//
// Sessions are never physically deleted by the engine; terminal sessions stay
// in the store with their final status.
type SessionStore interface {
	// Save creates or replaces the persisted session row.
	Save(ctx context.Context, session *domain.FlowSessionState) error

	// Load retrieves one session by id.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.FlowSessionState, error)

	// ListLive returns the sessions whose status is active or waiting.
	ListLive(ctx context.Context) ([]*domain.FlowSessionState, error)

	// UpsertVariable writes a single session variable. Stores that persist
	// variables inline may implement this as a read-modify-write of the row.
	UpsertVariable(ctx context.Context, sessionID, name string, value any) error

	// ListVariables returns the persisted variables of a session.
	ListVariables(ctx context.Context, sessionID string) (map[string]any, error)
}

// FlowProvider supplies flow definitions. Providers may store graphs as one
// JSON definition blob or as separate node/edge columns; domain.ParseFlow
// accepts either shape.
type FlowProvider interface {
	// Flow returns one flow by id.
	// Returns domain.ErrFlowNotFound if the flow does not exist.
	Flow(ctx context.Context, flowID string) (*domain.Flow, error)

	// FlowsForCompany returns the active flows of a company, the candidate
	// set for cold trigger matching.
	FlowsForCompany(ctx context.Context, companyID string) ([]*domain.Flow, error)
}
