// Package console provides a Dispatcher that writes outbound messages to the
// structured log instead of a real channel. Used by the standalone server and
// in examples where no gateway is attached.
package console

import (
	"context"
	"log/slog"

	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/pkg/domain"
)

type Dispatcher struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) SendMessage(_ context.Context, _ *domain.ChannelConnection,
	conversation *domain.Conversation, text string) error {
	d.logger.Info("outbound message",
		"conversation_id", conversation.ID,
		"channel", conversation.Channel,
		"text", text)
	return nil
}

func (d *Dispatcher) SendMedia(_ context.Context, _ *domain.ChannelConnection,
	conversation *domain.Conversation, mediaURL, mediaType, caption string) error {
	d.logger.Info("outbound media",
		"conversation_id", conversation.ID,
		"channel", conversation.Channel,
		"media_url", mediaURL,
		"media_type", mediaType,
		"caption", caption)
	return nil
}
