package bot

import (
	"context"
	"net/url"
)

// Registry holds bot handlers in priority order.
type Registry struct {
	handlers []Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make([]Handler, 0)}
}

// Register appends a handler. Registration order is dispatch priority:
// earlier handlers get first claim on every event.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Dispatch routes a text event to the first handler that claims it.
// Returns the handler name for logging, or "" when nothing claimed the event.
func (r *Registry) Dispatch(ctx context.Context, ev *Event) (*Reply, string, error) {
	for _, h := range r.handlers {
		if h.CanHandle(ctx, ev) {
			reply, err := h.Handle(ctx, ev)
			return reply, h.Name(), err
		}
	}
	return nil, "", nil
}

// DispatchPostback routes a postback payload to the first PostbackHandler
// that accepts it.
func (r *Registry) DispatchPostback(ctx context.Context, userID string, params url.Values) (*Reply, string, error) {
	for _, h := range r.handlers {
		ph, ok := h.(PostbackHandler)
		if !ok {
			continue
		}
		reply, handled, err := ph.HandlePostback(ctx, userID, params)
		if err != nil {
			return nil, h.Name(), err
		}
		if handled {
			return reply, h.Name(), nil
		}
	}
	return nil, "", nil
}

// Get returns a registered handler by name, or nil.
func (r *Registry) Get(name string) Handler {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}
