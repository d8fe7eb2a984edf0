package eventq

import (
	"reflect"
	"sync"

	"github.com/akaros-project/mcp/eventmsg"
)

// HandlerResult is a handler's verdict on a delivered message, modeling
// original_source event.h's ev_might_not_return/ev_we_returned bracket
// around handler dispatch: a handler that "might not return" to vcore
// context (because it directly pops a different uthread to run, say) is
// adapted here as a handler that asks for the message to be requeued
// rather than consumed, since Go has no analogue to jumping to another
// context and never coming back short of goroutine exit.
type HandlerResult int

const (
	// Consumed is the ordinary case: the handler fully processed msg.
	Consumed HandlerResult = iota
	// Requeue asks the dispatcher to post msg back to the mailbox it came
	// from instead of discarding it, and to stop draining that mailbox
	// for this call (ev_we_returned didn't happen cleanly).
	Requeue
)

// HandlerFunc mirrors original_source event.h's handle_event_t.
type HandlerFunc func(msg eventmsg.Message, evType eventmsg.Type, data any) HandlerResult

type handlerEntry struct {
	fn   HandlerFunc
	data any
}

// Registry is process-wide: register_ev_handler/deregister_ev_handler in
// the original take no vcore argument, so one set of handler chains
// serves every vcore's handle_events call.
type Registry struct {
	mu       sync.RWMutex
	handlers map[eventmsg.Type][]handlerEntry
}

// NewRegistry constructs an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[eventmsg.Type][]handlerEntry)}
}

// RegisterHandler adds fn to the chain for evType (register_ev_handler).
func (r *Registry) RegisterHandler(evType eventmsg.Type, fn HandlerFunc, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[evType] = append(r.handlers[evType], handlerEntry{fn: fn, data: data})
}

// DeregisterHandler removes the first entry matching (fn, data), if
// present (deregister_ev_handler identifies the node by that pair).
func (r *Registry) DeregisterHandler(evType eventmsg.Type, fn HandlerFunc, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.handlers[evType]
	for i, e := range chain {
		if sameFunc(e.fn, fn) && e.data == data {
			r.handlers[evType] = append(chain[:i], chain[i+1:]...)
			return
		}
	}
}

func (r *Registry) chainFor(evType eventmsg.Type) []handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]handlerEntry(nil), r.handlers[evType]...)
}

func sameFunc(a, b HandlerFunc) bool {
	// Go forbids comparing func values directly; pointer identity via
	// reflection is the closest approximation register/deregister
	// symmetry needs, since callers always pass back the same closure
	// variable they registered.
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
