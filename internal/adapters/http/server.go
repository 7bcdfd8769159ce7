// Package http exposes the message-ingest webhook over chi.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/pkg/domain"
)

// Processor is the engine surface the transport needs.
type Processor interface {
	ProcessMessage(ctx context.Context, msg *domain.InboundMessage,
		conversation *domain.Conversation, contact *domain.Contact,
		connection *domain.ChannelConnection) error
}

// inboundPayload is the webhook body: the message plus its conversation
// envelope as delivered by the channel gateway.
type inboundPayload struct {
	Message      domain.InboundMessage     `json:"message"`
	Conversation domain.Conversation       `json:"conversation"`
	Contact      domain.Contact            `json:"contact"`
	Connection   *domain.ChannelConnection `json:"connection,omitempty"`
}

// NewHandler builds the HTTP surface: message ingest, health and metrics.
func NewHandler(engine Processor, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/v1/messages", func(w http.ResponseWriter, req *http.Request) {
		var payload inboundPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if payload.Message.ID == "" || payload.Conversation.ID == "" {
			http.Error(w, "message.id and conversation.id are required", http.StatusBadRequest)
			return
		}
		if payload.Message.ConversationID == "" {
			payload.Message.ConversationID = payload.Conversation.ID
		}
		if payload.Message.Channel == "" {
			payload.Message.Channel = payload.Conversation.Channel
		}
		if payload.Message.ReceivedAt.IsZero() {
			payload.Message.ReceivedAt = time.Now()
		}

		if err := engine.ProcessMessage(req.Context(), &payload.Message,
			&payload.Conversation, &payload.Contact, payload.Connection); err != nil {
			logger.Error("message processing aborted", "message_id", payload.Message.ID, "err", err)
			http.Error(w, "processing aborted", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	})

	return r
}
