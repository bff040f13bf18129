// Package lifecycle reports whether the host application is in the
// foreground (visible) or background (hidden).
//
// A livews.Socket subscribes to a Signal to pause reconnection while hidden,
// reconnect as soon as the application becomes visible again, and release
// connections that have stayed hidden for too long.
package lifecycle

import (
	"sync"
)

type Signal interface {
	// Subscribe registers fn to be called on every visibility change.
	// The returned func removes the subscription.
	Subscribe(fn func(hidden bool)) (unsubscribe func())

	// Hidden reports the current state.
	Hidden() bool
}

// Manual is a Signal driven by explicit calls to Hide and Show.
// The zero value is visible and ready to use.
type Manual struct {
	mu     sync.Mutex
	hidden bool
	nextID int
	subs   map[int]func(bool)
}

var _ Signal = (*Manual)(nil)

func NewManual(hidden bool) *Manual {
	return &Manual{hidden: hidden}
}

func (m *Manual) Subscribe(fn func(hidden bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs == nil {
		m.subs = make(map[int]func(bool))
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manual) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hidden
}

func (m *Manual) Hide() {
	m.Set(true)
}

func (m *Manual) Show() {
	m.Set(false)
}

// Set changes the state and notifies subscribers. Setting the current state
// again does nothing.
func (m *Manual) Set(hidden bool) {
	m.mu.Lock()
	if m.hidden == hidden {
		m.mu.Unlock()
		return
	}
	m.hidden = hidden
	subs := make([]func(bool), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(hidden)
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subs)
}
