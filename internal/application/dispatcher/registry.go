package dispatcher

import (
	"fmt"

	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// Registry maps action tags to their incoming handlers.
type Registry struct {
	handlers map[protocol.ActionType]action.Handler
}

// NewRegistry builds a registry that covers every known action type exactly once.
func NewRegistry(handlers ...action.Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[protocol.ActionType]action.Handler, len(handlers))}
	for _, h := range handlers {
		t := h.Type()
		if _, dup := r.handlers[t]; dup {
			return nil, fmt.Errorf("duplicate handler for %s", t)
		}
		r.handlers[t] = h
	}
	for _, t := range protocol.AllActionTypes {
		if _, ok := r.handlers[t]; !ok {
			return nil, fmt.Errorf("no handler registered for %s", t)
		}
	}
	if len(r.handlers) != len(protocol.AllActionTypes) {
		return nil, fmt.Errorf("registry has %d handlers for %d action types", len(r.handlers), len(protocol.AllActionTypes))
	}
	return r, nil
}

// Lookup returns the handler for t.
func (r *Registry) Lookup(t protocol.ActionType) (action.Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}
