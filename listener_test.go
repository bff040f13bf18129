package livews

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/livews/livews.go/internal/mock"
)

type recordingListener struct {
	name string
	log  *[]string
}

func (l *recordingListener) HandleEvent(Event) {
	*l.log = append(*l.log, l.name)
}

type valueListener struct{}

func (valueListener) HandleEvent(Event) {}

func TestListenerRegistryOrder(t *testing.T) {
	var r ListenerRegistry
	var log []string

	a := &recordingListener{name: "a", log: &log}
	b := &recordingListener{name: "b", log: &log}
	r.Add(EventOpen, a)
	r.Add(EventOpen, b)
	r.Add(EventOpen, a)
	r.Add(EventClose, b)

	assert.True(t, r.Dispatch(&OpenEvent{}))
	assert.Equal(t, []string{"a", "b", "a"}, log)

	log = nil
	r.Dispatch(&CloseEvent{})
	assert.Equal(t, []string{"b"}, log)

	log = nil
	r.Dispatch(&ErrorEvent{})
	assert.Empty(t, log)
}

func TestListenerRegistryRemove(t *testing.T) {
	var r ListenerRegistry
	var log []string

	a := &recordingListener{name: "a", log: &log}
	b := &recordingListener{name: "b", log: &log}
	r.Add(EventMessage, a)
	r.Add(EventMessage, b)
	r.Add(EventMessage, a)

	r.Remove(EventMessage, a)
	assert.Equal(t, 1, r.Len(EventMessage))
	r.Dispatch(&MessageEvent{})
	assert.Equal(t, []string{"b"}, log)

	r.Remove(EventMessage, &recordingListener{name: "b", log: &log})
	assert.Equal(t, 1, r.Len(EventMessage), "a different pointer is a different listener")

	r.Remove(EventClose, b)
	assert.Equal(t, 1, r.Len(EventMessage))
}

func TestListenerRegistryWithoutIdentity(t *testing.T) {
	var r ListenerRegistry
	calls := 0
	fn := ListenerFunc(func(Event) { calls++ })

	remove := r.Add(EventOpen, fn)
	r.Add(EventOpen, valueListener{})

	r.Remove(EventOpen, fn)
	r.Remove(EventOpen, valueListener{})
	assert.Equal(t, 2, r.Len(EventOpen))

	remove()
	assert.Equal(t, 1, r.Len(EventOpen))
	r.Dispatch(&OpenEvent{})
	assert.Zero(t, calls)

	remove()
	assert.Equal(t, 1, r.Len(EventOpen))
}

func TestListenerRegistryIgnoresUnknownTypes(t *testing.T) {
	var r ListenerRegistry
	var log []string

	remove := r.Add("custom", &recordingListener{name: "a", log: &log})
	remove()
	assert.Zero(t, r.Len("custom"))

	r.Add(EventOpen, nil)
	assert.Zero(t, r.Len(EventOpen))
}

func TestListenerRegistryChangesDuringDispatch(t *testing.T) {
	var r ListenerRegistry
	var log []string

	late := &recordingListener{name: "late", log: &log}
	var removeSecond func()
	r.Add(EventOpen, ListenerFunc(func(Event) {
		log = append(log, "first")
		r.Add(EventOpen, late)
		removeSecond()
	}))
	removeSecond = r.Add(EventOpen, ListenerFunc(func(Event) {
		log = append(log, "second")
	}))

	r.Dispatch(&OpenEvent{})
	assert.Equal(t, []string{"first", "second"}, log)

	log = nil
	r.Dispatch(&OpenEvent{})
	assert.Equal(t, []string{"first", "late"}, log)
}

func TestSocketDispatchEvent(t *testing.T) {
	s, _ := newTestSocket(t, &mock.Dialer{}, WithStartClosed(true))

	got := make(chan Event, 1)
	s.AddEventListener(EventError, ListenerFunc(func(e Event) { got <- e }))

	e := &ErrorEvent{Target: s}
	assert.True(t, s.DispatchEvent(e))
	assert.Same(t, e, <-got)
}
