package livews

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livews/livews.go/internal/eventloop"
	"github.com/livews/livews.go/internal/heartbeat"
	"github.com/livews/livews.go/internal/queue"
	"github.com/livews/livews.go/pkg/backoff"
	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/transport"
)

type ReadyState = transport.ReadyState

const (
	Connecting = transport.Connecting
	Open       = transport.Open
	Closing    = transport.Closing
	Closed     = transport.Closed
)

// Close codes used by the socket itself.
const (
	CloseNormal      = transport.CloseNormalClosure
	ClosePongTimeout = 3001
	ClosePageHidden  = 3002
)

// Socket is a WebSocket client that reconnects on its own.
//
// It connects as soon as it is created, unless StartClosed is set, and keeps
// reconnecting with exponential backoff whenever the connection fails or is
// closed by the peer, until Close is called or MaxRetries is exhausted.
// Messages sent while disconnected are queued and flushed on the next open.
//
// All methods are safe for concurrent use and never block on the network.
// Listeners and hooks run on the socket's own goroutine, one at a time, and
// may call any method of the socket.
type Socket struct {
	url       URLProvider
	protocols []string
	opts      Options
	backoff   backoff.Policy
	log       logger.Logger
	observer  Observer

	loop      *eventloop.Loop
	ctx       context.Context
	cancel    context.CancelFunc
	listeners ListenerRegistry
	queue     *queue.Queue
	heartbeat *heartbeat.Monitor

	// Owned by the loop.
	current         *attachment
	attempt         uint64
	shouldReconnect bool
	closeCalled     bool
	connectLock     bool
	hiddenSince     time.Time
	connectTimeout  *eventloop.Timer
	uptimeTimeout   *eventloop.Timer
	unsubscribe     func()

	// retry is written by the loop only.
	retry atomic.Int64

	mu         sync.Mutex
	conn       transport.Conn
	binaryType BinaryType
}

// New creates a socket for url and, unless StartClosed is set, starts
// connecting. Only invalid arguments make it fail, with a
// *ConfigurationError.
func New(url URLProvider, protocols []string, opts ...Option) (*Socket, error) {
	if url == nil {
		return nil, configError("url", ErrInvalidURL, "no URL provider")
	}
	if static, ok := url.(StaticURL); ok {
		if static == "" {
			return nil, configError("url", ErrInvalidURL, "empty URL")
		}
		if err := transport.CheckURL(string(static)); err != nil {
			return nil, configError("url", ErrInvalidURL, "%v", err)
		}
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		url:             url,
		protocols:       append([]string(nil), protocols...),
		opts:            o,
		backoff:         backoff.New(o.MinReconnectionDelay, o.MaxReconnectionDelay, o.ReconnectionDelayGrowFactor),
		log:             o.logger(),
		observer:        o.observer(),
		loop:            eventloop.New(),
		ctx:             ctx,
		cancel:          cancel,
		queue:           queue.New(o.MaxEnqueuedMessages),
		shouldReconnect: !o.StartClosed,
		binaryType:      BinaryTypeBlob,
	}
	s.retry.Store(-1)
	s.heartbeat = heartbeat.New(s.loop, heartbeat.Config{
		Interval:    o.HeartbeatInterval,
		PongTimeout: o.PongTimeoutInterval,
		Ping:        s.pingFunc(),
		OnTimeout:   s.handlePongTimeout,
	})

	s.loop.Post(func() {
		s.connect(true)
		s.subscribeSignal()
	})

	return s, nil
}

// ReadyState is the state of the current transport. Before the first
// transport exists it is Closed with StartClosed and Connecting otherwise.
func (s *Socket) ReadyState() ReadyState {
	if conn := s.transport(); conn != nil {
		return conn.ReadyState()
	}
	if s.opts.StartClosed {
		return Closed
	}
	return Connecting
}

// BufferedAmount is the size of the queued messages plus whatever the
// transport reports as not yet written. Text counts characters, binary
// counts bytes.
func (s *Socket) BufferedAmount() int {
	n := s.queue.BufferedBytes()
	if conn := s.transport(); conn != nil {
		n += conn.BufferedAmount()
	}
	return n
}

func (s *Socket) Protocol() string {
	if conn := s.transport(); conn != nil {
		return conn.Protocol()
	}
	return ""
}

func (s *Socket) Extensions() string {
	if conn := s.transport(); conn != nil {
		return conn.Extensions()
	}
	return ""
}

// URL is the URL the current transport was dialed with.
func (s *Socket) URL() string {
	if conn := s.transport(); conn != nil {
		return conn.URL()
	}
	return ""
}

func (s *Socket) BinaryType() BinaryType {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.binaryType
}

func (s *Socket) SetBinaryType(t BinaryType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.binaryType = t
}

// RetryCount is the number of attempts since the last stable connection.
func (s *Socket) RetryCount() int {
	return int(max(s.retry.Load(), 0))
}

// Close closes the connection or connection attempt, if any, and stops
// reconnecting. A code of 0 means CloseNormal.
func (s *Socket) Close(code int, reason string) {
	s.loop.Post(func() {
		s.finish(closeCode(code), reason)
		s.unsubscribeSignal()
	})
}

// Reconnect closes the current connection, if any, and connects again
// immediately with a fresh retry count. It also undoes Close.
// A code of 0 means CloseNormal.
func (s *Socket) Reconnect(code int, reason string) {
	s.loop.Post(func() {
		s.reconnect(closeCode(code), reason)
	})
}

// Send transmits msg if the socket is open and queues it otherwise. Messages
// beyond MaxEnqueuedMessages are dropped without notice.
func (s *Socket) Send(msg transport.Message) error {
	if !s.loop.Post(func() { s.send(msg) }) {
		return ErrDisposed
	}
	return nil
}

func (s *Socket) SendText(text string) error {
	return s.Send(transport.Text(text))
}

func (s *Socket) SendBinary(data []byte) error {
	return s.Send(transport.Binary(data))
}

// HeartbeatHealth acknowledges the last heartbeat ping, cancelling the pong
// deadline.
func (s *Socket) HeartbeatHealth() {
	s.loop.Post(s.heartbeat.Ack)
}

// AddEventListener registers l for events of type t and returns a func that
// removes this registration.
func (s *Socket) AddEventListener(t EventType, l Listener) (remove func()) {
	return s.listeners.Add(t, l)
}

func (s *Socket) RemoveEventListener(t EventType, l Listener) {
	s.listeners.Remove(t, l)
}

// DispatchEvent calls the listeners registered for e on the caller's
// goroutine. It always returns true.
func (s *Socket) DispatchEvent(e Event) bool {
	return s.listeners.Dispatch(e)
}

// Dispose closes the socket and releases its goroutine. Events caused by the
// final close are not delivered, and further calls have no effect.
func (s *Socket) Dispose() {
	s.loop.Post(func() {
		s.finish(CloseNormal, "")
		s.unsubscribeSignal()
	})
	s.loop.Stop()
	s.cancel()
}

// Done is closed once a disposed socket has released its goroutine.
func (s *Socket) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Socket) transport() transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn
}

func (s *Socket) setTransport(conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn = conn
}

func closeCode(code int) int {
	if code == 0 {
		return CloseNormal
	}
	return code
}
