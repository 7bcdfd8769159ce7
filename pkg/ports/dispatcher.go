package ports

import (
	"context"

	"github.com/avdept/flowmachine/pkg/domain"
)

// Dispatcher delivers outbound messages on a channel. Wire protocols and
// formatting are the host's concern; the engine only hands over content.
type Dispatcher interface {
	SendMessage(ctx context.Context, connection *domain.ChannelConnection,
		conversation *domain.Conversation, text string) error

	SendMedia(ctx context.Context, connection *domain.ChannelConnection,
		conversation *domain.Conversation, mediaURL, mediaType, caption string) error
}

// EventSink consumes session lifecycle events. Delivery is at-most-once and
// non-blocking; implementations must not rely on receiving every event.
type EventSink interface {
	HandleSessionEvent(event domain.SessionEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(event domain.SessionEvent)

// HandleSessionEvent implements EventSink.
func (f EventSinkFunc) HandleSessionEvent(event domain.SessionEvent) { f(event) }
