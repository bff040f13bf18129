// Package mock provides a scriptable in-memory transport for tests.
package mock

import (
	"sync"
	"sync/atomic"

	"github.com/livews/livews.go/pkg/transport"
)

type CloseCall struct {
	Code   int
	Reason string
}

// Conn is a transport.Conn whose lifecycle is driven by the test.
type Conn struct {
	url       string
	protocols []string
	emitter   *transport.Emitter
	state     transport.State

	autoPong  bool
	syncClose bool
	pings     atomic.Int32

	mu     sync.Mutex
	sent   []transport.Message
	closes []CloseCall
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Pinger = (*Conn)(nil)
)

func (c *Conn) Send(msg transport.Message) error {
	if c.state.Load() != transport.Open {
		return transport.ErrNotOpen
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

// Close records the call and completes the closing handshake in the
// background, like a real connection would. With Dialer.SyncClose the close
// is reported before Close returns.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closes = append(c.closes, CloseCall{Code: code, Reason: reason})
	c.mu.Unlock()

	switch c.state.Load() {
	case transport.Closed:
		return transport.ErrClosed
	case transport.Closing:
		return nil
	}
	c.state.Store(transport.Closing)

	if c.syncClose {
		c.state.Store(transport.Closed)
		c.emitter.Close(code, reason)
		return nil
	}
	go func() {
		c.state.Store(transport.Closed)
		c.emitter.Close(code, reason)
	}()
	return nil
}

func (c *Conn) Ping([]byte) error {
	if c.state.Load() != transport.Open {
		return transport.ErrNotOpen
	}
	c.pings.Add(1)
	if c.autoPong {
		c.emitter.Pong()
	}
	return nil
}

func (c *Conn) ReadyState() transport.ReadyState {
	return c.state.Load()
}

func (c *Conn) BufferedAmount() int {
	return 0
}

func (c *Conn) Protocol() string {
	if len(c.protocols) == 0 || c.state.Load() == transport.Connecting {
		return ""
	}
	return c.protocols[0]
}

func (c *Conn) Extensions() string {
	return ""
}

func (c *Conn) URL() string {
	return c.url
}

// Open completes the handshake.
func (c *Conn) Open() {
	if c.state.CompareAndSwap(transport.Connecting, transport.Open) {
		c.emitter.Open()
	}
}

// Receive delivers msg as if it came from the peer.
func (c *Conn) Receive(msg transport.Message) {
	c.emitter.Message(msg)
}

// Fail reports a transport error. Like a browser WebSocket, a failed
// connection is closed right after.
func (c *Conn) Fail(err error) {
	c.emitter.Error(err)
	c.Drop(transport.CloseAbnormalClosure, "")
}

// Drop ends the connection from the peer's side.
func (c *Conn) Drop(code int, reason string) {
	c.state.Store(transport.Closed)
	c.emitter.Close(code, reason)
}

func (c *Conn) Pong() {
	c.emitter.Pong()
}

func (c *Conn) Pings() int {
	return int(c.pings.Load())
}

func (c *Conn) Sent() []transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]transport.Message(nil), c.sent...)
}

func (c *Conn) SentText() []string {
	var texts []string
	for _, msg := range c.Sent() {
		texts = append(texts, string(msg.Data))
	}
	return texts
}

func (c *Conn) Closes() []CloseCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]CloseCall(nil), c.closes...)
}

// Dialer creates Conns and keeps every one of them.
type Dialer struct {
	// OnDial, if set, is called with each new Conn before Dial returns,
	// e.g. to open it right away.
	OnDial func(c *Conn)

	// AutoPong makes connections answer every ping with a pong.
	AutoPong bool

	// SyncClose makes Conn.Close report the close on the caller's goroutine.
	SyncClose bool

	mu    sync.Mutex
	conns []*Conn
	err   error
}

var _ transport.Dialer = (*Dialer)(nil)

// OpenOnDial is an OnDial func that opens every connection.
func OpenOnDial(c *Conn) {
	c.Open()
}

// FailOnDial returns an OnDial func that fails every connection with err.
func FailOnDial(err error) func(c *Conn) {
	return func(c *Conn) {
		c.Fail(err)
	}
}

func (d *Dialer) Dial(url string, protocols []string, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return nil, err
	}
	c := &Conn{
		url:       url,
		protocols: protocols,
		emitter:   transport.NewEmitter(h),
		autoPong:  d.AutoPong,
		syncClose: d.SyncClose,
	}
	d.conns = append(d.conns, c)
	onDial := d.OnDial
	d.mu.Unlock()

	if onDial != nil {
		onDial(c)
	}
	return c, nil
}

// SetError makes subsequent dials fail synchronously with err.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.err = err
}

func (d *Dialer) SetOnDial(fn func(c *Conn)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.OnDial = fn
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.conns)
}

// Conn returns the i-th dialed connection.
func (d *Dialer) Conn(i int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.conns[i]
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
