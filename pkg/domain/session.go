package domain

import (
	"time"
)

// SessionStatus defines the lifecycle phase of a flow session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"    // Traversal in progress or re-armed at the trigger
	StatusWaiting   SessionStatus = "waiting"   // Suspended pending user input
	StatusPaused    SessionStatus = "paused"    // Suspended by an operator (AI handoff, manual takeover)
	StatusCompleted SessionStatus = "completed" // Reached the end of the graph
	StatusFailed    SessionStatus = "failed"    // Executor error, cycle or depth violation
	StatusAbandoned SessionStatus = "abandoned" // Dropped by an operator or superseded by a newer session
	StatusTimeout   SessionStatus = "timeout"   // Expired by the timeout sweep
)

// IsTerminal reports whether the session can never advance again.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAbandoned, StatusTimeout:
		return true
	}
	return false
}

// IsLive reports whether the session still participates in trigger matching
// and resume-from-waiting. At most one live session may exist per
// (trigger node, conversation, contact).
func (s SessionStatus) IsLive() bool {
	return s == StatusActive || s == StatusWaiting
}

// NodeRunStatus tracks the outcome of a single node execution.
type NodeRunStatus string

const (
	NodeRunRunning   NodeRunStatus = "running"
	NodeRunCompleted NodeRunStatus = "completed"
	NodeRunFailed    NodeRunStatus = "failed"
)

// NodeState is the per-node bookkeeping kept inside a session.
type NodeState struct {
	Status    NodeRunStatus `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// WaitingContext records what kind of user input a suspended session expects.
type WaitingContext struct {
	NodeID            string    `json:"nodeId"`
	ExpectedInputType string    `json:"expectedInputType"`
	Timestamp         time.Time `json:"timestamp"`
}

// FlowSessionState is one live execution of one flow for one
// (conversation, contact) pair. The in-memory copy is authoritative; the
// persisted copy is a best-effort mirror.
type FlowSessionState struct {
	SessionID      string `json:"sessionId"`
	FlowID         string `json:"flowId"`
	ConversationID string `json:"conversationId"`
	ContactID      string `json:"contactId"`
	CompanyID      string `json:"companyId"`

	Status        SessionStatus `json:"status"`
	CurrentNodeID string        `json:"currentNodeId"`
	TriggerNodeID string        `json:"triggerNodeId"`

	// ExecutionPath is the ordered, append-only sequence of visited node ids.
	ExecutionPath []string `json:"executionPath"`

	Variables  map[string]any       `json:"variables"`
	NodeStates map[string]NodeState `json:"nodeStates"`

	WaitingContext *WaitingContext `json:"waitingContext,omitempty"`

	StartedAt      time.Time  `json:"startedAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`

	// AI handoff sub-state: set while an AI assistant node owns the
	// conversation, cleared when the stop keyword exits the handoff.
	AISessionActive    bool   `json:"aiSessionActive,omitempty"`
	AINodeID           string `json:"aiNodeId,omitempty"`
	AIStopKeyword      string `json:"aiStopKeyword,omitempty"`
	AIExitOutputHandle string `json:"aiExitOutputHandle,omitempty"`
}

// NewSession creates a fresh active session positioned at the trigger node.
func NewSession(id, flowID, conversationID, contactID, companyID, triggerNodeID string) *FlowSessionState {
	now := time.Now()
	return &FlowSessionState{
		SessionID:      id,
		FlowID:         flowID,
		ConversationID: conversationID,
		ContactID:      contactID,
		CompanyID:      companyID,
		Status:         StatusActive,
		CurrentNodeID:  triggerNodeID,
		TriggerNodeID:  triggerNodeID,
		ExecutionPath:  []string{triggerNodeID},
		Variables:      make(map[string]any),
		NodeStates:     make(map[string]NodeState),
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Clone returns a copy safe for independent mutation. Maps and slices are
// copied one level deep; variable values themselves are shared.
func (s *FlowSessionState) Clone() *FlowSessionState {
	if s == nil {
		return nil
	}
	next := *s
	next.ExecutionPath = append([]string(nil), s.ExecutionPath...)
	next.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		next.Variables[k] = v
	}
	next.NodeStates = make(map[string]NodeState, len(s.NodeStates))
	for k, v := range s.NodeStates {
		next.NodeStates[k] = v
	}
	if s.WaitingContext != nil {
		wc := *s.WaitingContext
		next.WaitingContext = &wc
	}
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		next.ExpiresAt = &exp
	}
	return &next
}

// Touch bumps the activity timestamp.
func (s *FlowSessionState) Touch() {
	s.LastActivityAt = time.Now()
}

// Expired reports whether the session's deadline has passed at the given
// instant. Sessions without a deadline never expire.
func (s *FlowSessionState) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
