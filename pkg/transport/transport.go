// Package transport defines the boundary between livews and the WebSocket
// implementation that actually moves bytes.
//
// A [Dialer] opens a [Conn] and reports its lifecycle to a [Handler].
// Dial must not block on the network: it returns a Conn in the [Connecting]
// state and completes the handshake in the background. After Dial returns,
// the handler receives exactly one of OnOpen or OnError for the handshake,
// any number of OnMessage calls while open, and a single OnClose when the
// connection ends. Handler calls for one Conn are never concurrent.
//
// Implementations live in the gorillaws, gws and nhooyr sub-packages.
package transport

import (
	"sync"
	"sync/atomic"
)

// Close codes used on the wire.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
)

// ReadyState mirrors the WebSocket readyState attribute.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

// Conn is a single live WebSocket handle.
type Conn interface {
	// Send writes one message. It fails if the connection is not open.
	Send(msg Message) error

	// Close starts the closing handshake with the given code and reason.
	// Closing a connection that is still connecting aborts the handshake.
	Close(code int, reason string) error

	ReadyState() ReadyState

	// BufferedAmount reports bytes accepted by Send but not yet written.
	BufferedAmount() int

	// Protocol is the sub-protocol selected by the server, if any.
	Protocol() string

	// Extensions are the extensions negotiated with the server, if any.
	Extensions() string

	// URL is the URL the connection was dialed with.
	URL() string
}

// Handler receives connection lifecycle callbacks.
type Handler interface {
	OnOpen()
	OnMessage(msg Message)
	OnError(err error)
	OnClose(code int, reason string)
}

// PongHandler is implemented by handlers that want to observe protocol-level
// pong frames.
type PongHandler interface {
	OnPong()
}

// Pinger is implemented by connections that can send protocol-level ping
// frames.
type Pinger interface {
	Ping(payload []byte) error
}

// Dialer creates connections.
type Dialer interface {
	Dial(url string, protocols []string, h Handler) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(url string, protocols []string, h Handler) (Conn, error)

func (f DialerFunc) Dial(url string, protocols []string, h Handler) (Conn, error) {
	return f(url, protocols, h)
}

// State is an atomically updated ReadyState, shared by the implementations.
type State struct {
	v atomic.Int32
}

func (s *State) Load() ReadyState {
	return ReadyState(s.v.Load())
}

func (s *State) Store(state ReadyState) {
	s.v.Store(int32(state))
}

// CompareAndSwap moves the state from old to new if it is currently old.
func (s *State) CompareAndSwap(old, new ReadyState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// Emitter forwards callbacks to a Handler, serializing them and enforcing the
// ordering guarantees documented on the package.
type Emitter struct {
	mu     sync.Mutex
	h      Handler
	opened bool
	failed bool
	closed bool
}

func NewEmitter(h Handler) *Emitter {
	return &Emitter{h: h}
}

func (e *Emitter) Open() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opened || e.failed || e.closed {
		return
	}
	e.opened = true
	e.h.OnOpen()
}

func (e *Emitter) Message(msg Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened || e.closed {
		return
	}
	e.h.OnMessage(msg)
}

// Error reports a failure. Only the first error is delivered.
func (e *Emitter) Error(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failed || e.closed {
		return
	}
	e.failed = true
	e.h.OnError(err)
}

func (e *Emitter) Pong() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if ph, ok := e.h.(PongHandler); ok {
		ph.OnPong()
	}
}

// Close reports the end of the connection. Subsequent calls are ignored.
func (e *Emitter) Close(code int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.h.OnClose(code, reason)
}
