package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// Handler serves one server-to-client method. The returned value is sent back
// as the result when the message was a request; it is ignored for notifications.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// HandlerName maps a method to its canonical handler identifier,
// e.g. "textDocument/publishDiagnostics" -> "textDocument_publishDiagnostics"
func HandlerName(method string) string {
	return strings.ReplaceAll(method, "/", "_")
}

// Registry is a static method -> handler table built once at startup
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry keyed by canonical handler name
func NewRegistry(handlers map[string]Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for method, h := range handlers {
		r.handlers[HandlerName(method)] = h
	}
	return r
}

// Lookup finds the handler for a method. A miss is a normal outcome.
func (r *Registry) Lookup(method string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[HandlerName(method)]
	return h, ok
}

// Names returns the canonical names of all registered handlers, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
