// Package events fans session lifecycle events out to registered sinks.
package events

import (
	"log/slog"
	"sync"

	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// Emitter delivers events to sinks at-most-once and never blocks the
// traversal that produced them. Sink panics are swallowed: events are a
// courtesy surface, not a source of truth.
type Emitter struct {
	mu     sync.RWMutex
	sinks  []ports.EventSink
	logger *slog.Logger
}

// NewEmitter creates an emitter.
func NewEmitter(logger *slog.Logger, sinks ...ports.EventSink) *Emitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Emitter{sinks: sinks, logger: logger}
}

// Subscribe adds a sink.
func (e *Emitter) Subscribe(sink ports.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Emit dispatches the event to every sink on its own goroutine.
func (e *Emitter) Emit(event domain.SessionEvent) {
	e.mu.RLock()
	sinks := make([]ports.EventSink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.RUnlock()

	for _, sink := range sinks {
		go func(s ports.EventSink) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("event sink panicked", "event", event.Type, "panic", r)
				}
			}()
			s.HandleSessionEvent(event)
		}(sink)
	}
}
