package livews

import (
	"reflect"
	"sync"
)

// Listener receives dispatched events.
type Listener interface {
	HandleEvent(e Event)
}

// ListenerFunc adapts a plain function to Listener.
//
// Functions have no identity in Go, so a ListenerFunc cannot be removed with
// RemoveEventListener. Keep the func returned by AddEventListener instead.
type ListenerFunc func(e Event)

func (f ListenerFunc) HandleEvent(e Event) {
	f(e)
}

// ListenerRegistry keeps listeners per event type in registration order.
// It is safe for concurrent use, and listeners may add or remove listeners
// while an event is being dispatched.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners map[EventType][]*registration
}

type registration struct {
	listener Listener
}

func knownEventType(t EventType) bool {
	switch t {
	case EventOpen, EventMessage, EventClose, EventError:
		return true
	}
	return false
}

// Add appends l to the listeners of t and returns a func removing exactly
// this registration. Listeners for unknown event types are ignored.
func (r *ListenerRegistry) Add(t EventType, l Listener) (remove func()) {
	if l == nil || !knownEventType(t) {
		return func() {}
	}

	reg := &registration{listener: l}

	r.mu.Lock()
	if r.listeners == nil {
		r.listeners = make(map[EventType][]*registration)
	}
	r.listeners[t] = append(r.listeners[t], reg)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.listeners[t] = deleteFunc(r.listeners[t], func(other *registration) bool {
			return other == reg
		})
	}
}

// Remove unregisters every registration of l for t. Listeners are compared
// by reference: pointers, maps and channels match only themselves, and
// values without identity, such as funcs, never match.
func (r *ListenerRegistry) Remove(t EventType, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners[t] = deleteFunc(r.listeners[t], func(reg *registration) bool {
		return sameListener(reg.listener, l)
	})
}

// Dispatch calls the listeners registered for e.Type() in order. It always
// returns true.
func (r *ListenerRegistry) Dispatch(e Event) bool {
	r.mu.Lock()
	regs := append([]*registration(nil), r.listeners[e.Type()]...)
	r.mu.Unlock()

	for _, reg := range regs {
		reg.listener.HandleEvent(e)
	}
	return true
}

func (r *ListenerRegistry) Len(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.listeners[t])
}

func deleteFunc(regs []*registration, del func(*registration) bool) []*registration {
	kept := make([]*registration, 0, len(regs))
	for _, reg := range regs {
		if !del(reg) {
			kept = append(kept, reg)
		}
	}
	return kept
}

func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return false
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	default:
		return false
	}
}
