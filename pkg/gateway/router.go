package gateway

import (
	"fmt"
	"log/slog"
)

type EventHandler func(Conn, *InEvent) error

// EventRouter dispatches inbound events to the handler registered for the
// event type. Panics inside a handler are caught at the per-event boundary
// so a malformed event can never take down the connection handler.
type EventRouter struct {
	handlers map[string]EventHandler
	logger   *slog.Logger
}

func NewEventRouter(logger *slog.Logger) *EventRouter {
	return &EventRouter{
		handlers: make(map[string]EventHandler),
		logger:   logger,
	}
}

func (r *EventRouter) On(eventType string, h EventHandler) {
	if _, ok := r.handlers[eventType]; ok {
		panic(fmt.Sprintf("handler(%s): already exists", eventType))
	}
	r.handlers[eventType] = h
}

func (r *EventRouter) Dispatch(c Conn, event *InEvent) (err error) {
	h, ok := r.handlers[event.Type]
	if !ok {
		r.logger.Error("no handler for event", slog.String("event.type", event.Type))
		return ErrInvalidRequest
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Sprintf("handler(%s) panicked: %v", event.Type, rec))
			err = fmt.Errorf("handler(%s): %v", event.Type, rec)
		}
	}()

	return h(c, event)
}
