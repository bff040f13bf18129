package livews

import (
	"time"
)

// Observer is notified of socket activity, for metrics. Methods are called
// from the socket's event loop and must not block.
type Observer interface {
	ConnectAttempt(retry int, delay time.Duration)
	Reconnected()
	Opened()
	Closed(code int)
	Failed(err error)
	MessageSent(size int)
	MessageQueued(size, queued int)
	MessageDropped(size int)
	QueueFlushed(n int)
	PongTimeout()
}

// NopObserver ignores everything.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) ConnectAttempt(int, time.Duration) {}
func (NopObserver) Reconnected()                      {}
func (NopObserver) Opened()                           {}
func (NopObserver) Closed(int)                        {}
func (NopObserver) Failed(error)                      {}
func (NopObserver) MessageSent(int)                   {}
func (NopObserver) MessageQueued(int, int)            {}
func (NopObserver) MessageDropped(int)                {}
func (NopObserver) QueueFlushed(int)                  {}
func (NopObserver) PongTimeout()                      {}
