package livews

import (
	"github.com/livews/livews.go/pkg/transport"
)

type EventType string

const (
	EventOpen    EventType = "open"
	EventMessage EventType = "message"
	EventClose   EventType = "close"
	EventError   EventType = "error"
)

// Event is anything that can be dispatched to listeners.
type Event interface {
	Type() EventType
}

type OpenEvent struct {
	Target *Socket
}

type MessageEvent struct {
	Target *Socket
	Data   transport.Message
}

// CloseEvent reports the end of a connection. Close events synthesized by the
// socket itself, e.g. after a pong timeout, always report WasClean.
type CloseEvent struct {
	Target   *Socket
	Code     int
	Reason   string
	WasClean bool
}

// ErrorEvent reports a connection failure. A connection attempt that did not
// open within the configured timeout is reported with Message "TIMEOUT" and
// Err wrapping ErrConnectTimeout.
type ErrorEvent struct {
	Target  *Socket
	Message string
	Err     error
}

func (*OpenEvent) Type() EventType    { return EventOpen }
func (*MessageEvent) Type() EventType { return EventMessage }
func (*CloseEvent) Type() EventType   { return EventClose }
func (*ErrorEvent) Type() EventType   { return EventError }

func newErrorEvent(target *Socket, err error) *ErrorEvent {
	return &ErrorEvent{Target: target, Message: err.Error(), Err: err}
}

func (e *ErrorEvent) timedOut() bool {
	return e.Message == timeoutMessage
}

const timeoutMessage = "TIMEOUT"
