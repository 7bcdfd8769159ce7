package domain

import "time"

// EventType categorizes session lifecycle notifications.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventSessionUpdated   EventType = "session_updated"
	EventSessionWaiting   EventType = "session_waiting"
	EventSessionCompleted EventType = "session_completed"
	EventSessionExpired   EventType = "session_expired"
)

// SessionEvent is delivered at-most-once to event consumers. Emission is
// non-blocking and consumer failures are swallowed; events are a courtesy,
// not a source of truth.
type SessionEvent struct {
	Type           EventType `json:"type"`
	SessionID      string    `json:"sessionId"`
	FlowID         string    `json:"flowId"`
	ConversationID string    `json:"conversationId"`
	ContactID      string    `json:"contactId"`
	NodeID         string    `json:"nodeId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewSessionEvent builds an event snapshotting the session's identity.
func NewSessionEvent(typ EventType, s *FlowSessionState) SessionEvent {
	return SessionEvent{
		Type:           typ,
		SessionID:      s.SessionID,
		FlowID:         s.FlowID,
		ConversationID: s.ConversationID,
		ContactID:      s.ContactID,
		NodeID:         s.CurrentNodeID,
		Timestamp:      time.Now(),
	}
}
