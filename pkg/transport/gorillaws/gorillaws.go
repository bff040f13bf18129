// Package gorillaws implements transport.Dialer on top of gorilla/websocket.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/transport"
)

// DefaultDialer is the gorilla dialer used unless WithDialer is given.
//
// It is the default gorilla dialer as of gorilla/websocket v1.5.0 with
// EnableCompression set to true.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultCloseTimeout = 5 * time.Second
)

type Option func(d *Dialer)

// Dialer opens gorilla connections. The zero value is not usable; use
// NewDialer.
type Dialer struct {
	dialer       *gorilla.Dialer
	header       http.Header
	writeTimeout time.Duration
	closeTimeout time.Duration
	readLimit    int64
	logger       logger.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		dialer:       DefaultDialer,
		writeTimeout: DefaultWriteTimeout,
		closeTimeout: DefaultCloseTimeout,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithDialer replaces DefaultDialer. Its Subprotocols are overridden by the
// protocols passed to Dial.
func WithDialer(dialer *gorilla.Dialer) Option {
	return func(d *Dialer) {
		d.dialer = dialer
	}
}

// WithHeader sets extra headers sent with the opening handshake.
func WithHeader(h http.Header) Option {
	return func(d *Dialer) {
		d.header = h.Clone()
	}
}

// WithWriteTimeout bounds every message write. Zero disables it.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.writeTimeout = timeout
	}
}

// WithCloseTimeout bounds how long Close waits for the peer to answer the
// closing handshake before dropping the connection.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.closeTimeout = timeout
	}
}

func WithReadLimit(limit int64) Option {
	return func(d *Dialer) {
		d.readLimit = limit
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Dialer) {
		d.logger = l
	}
}

func (d *Dialer) Dial(url string, protocols []string, h transport.Handler) (transport.Conn, error) {
	if err := transport.CheckURL(url); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		d:       d,
		url:     url,
		emitter: transport.NewEmitter(h),
		cancel:  cancel,
	}
	c.state.Store(transport.Connecting)

	dialer := *d.dialer
	dialer.Subprotocols = append([]string(nil), protocols...)
	go c.run(ctx, &dialer)

	return c, nil
}

// Conn is a transport.Conn backed by a *gorilla.Conn.
type Conn struct {
	d       *Dialer
	url     string
	emitter *transport.Emitter
	state   transport.State
	cancel  context.CancelFunc

	buffered atomic.Int64

	// writeLock serializes data frames; gorilla allows one concurrent writer.
	writeLock sync.Mutex

	// mu guards everything below.
	mu          sync.Mutex
	ws          *gorilla.Conn
	protocol    string
	extensions  string
	closeSent   bool
	closeCode   int
	closeReason string
	closeTimer  *time.Timer
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Pinger = (*Conn)(nil)
)

func (c *Conn) run(ctx context.Context, dialer *gorilla.Dialer) {
	defer c.cancel()

	ws, res, err := dialer.DialContext(ctx, c.url, c.d.header)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	c.mu.Lock()
	if err != nil {
		requested, code, reason := c.closeSent, c.closeCode, c.closeReason
		c.mu.Unlock()

		c.state.Store(transport.Closed)
		if requested {
			c.emitter.Close(code, reason)
			return
		}
		c.d.logger.Debug("gorillaws handshake failed", "url", c.url, "error", err)
		c.emitter.Error(fmt.Errorf("gorillaws: dial %s: %w", c.url, err))
		c.emitter.Close(transport.CloseAbnormalClosure, "")
		return
	}
	if c.closeSent {
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()

		ws.Close()
		c.state.Store(transport.Closed)
		c.emitter.Close(code, reason)
		return
	}

	c.ws = ws
	c.protocol = ws.Subprotocol()
	if res != nil {
		c.extensions = res.Header.Get("Sec-WebSocket-Extensions")
	}
	c.state.Store(transport.Open)
	c.mu.Unlock()

	if c.d.readLimit > 0 {
		ws.SetReadLimit(c.d.readLimit)
	}
	ws.SetPongHandler(func(string) error {
		c.emitter.Pong()
		return nil
	})

	c.emitter.Open()
	c.readLoop(ws)
}

func (c *Conn) readLoop(ws *gorilla.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			c.handleError(ws, err)
			return
		}

		switch mt {
		case gorilla.TextMessage:
			c.emitter.Message(transport.Message{Type: transport.TextMessage, Data: data})
		case gorilla.BinaryMessage:
			c.emitter.Message(transport.Binary(data))
		}
	}
}

func (c *Conn) handleError(ws *gorilla.Conn, err error) {
	c.mu.Lock()
	requested, code, reason := c.closeSent, c.closeCode, c.closeReason
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	c.mu.Unlock()

	var closeErr *gorilla.CloseError
	switch {
	case requested:
	case errors.As(err, &closeErr) && closeErr.Code != gorilla.CloseAbnormalClosure:
		code, reason = closeErr.Code, closeErr.Text
	default:
		c.d.logger.Debug("gorillaws read failed", "url", c.url, "error", err)
		c.emitter.Error(fmt.Errorf("gorillaws: read: %w", err))
		code, reason = transport.CloseAbnormalClosure, ""
	}

	if err := ws.Close(); err != nil {
		c.d.logger.Debug("gorillaws close failed", "url", c.url, "error", err)
	}
	c.state.Store(transport.Closed)
	c.emitter.Close(code, reason)
}

func (c *Conn) Send(msg transport.Message) error {
	if c.state.Load() != transport.Open {
		return transport.ErrNotOpen
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	n := int64(len(msg.Data))
	c.buffered.Add(n)
	defer c.buffered.Add(-n)

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if c.d.writeTimeout > 0 {
		if err := ws.SetWriteDeadline(time.Now().Add(c.d.writeTimeout)); err != nil {
			return fmt.Errorf("gorillaws: set write deadline: %w", err)
		}
	}

	mt := gorilla.BinaryMessage
	if msg.IsText() {
		mt = gorilla.TextMessage
	}
	if err := ws.WriteMessage(mt, msg.Data); err != nil {
		return fmt.Errorf("gorillaws: write: %w", err)
	}
	return nil
}

// Close sends a close frame and waits up to the close timeout, in the
// background, for the peer to answer. Closing while connecting aborts the
// handshake.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	switch c.state.Load() {
	case transport.Closed:
		c.mu.Unlock()
		return transport.ErrClosed
	case transport.Closing:
		c.mu.Unlock()
		return nil
	}

	c.closeSent = true
	c.closeCode, c.closeReason = code, reason
	c.state.Store(transport.Closing)
	ws := c.ws
	if ws != nil {
		c.closeTimer = time.AfterFunc(c.d.closeTimeout, func() {
			ws.Close()
		})
	}
	c.mu.Unlock()

	if ws == nil {
		c.cancel()
		return nil
	}

	// WriteControl may run concurrently with WriteMessage.
	deadline := time.Now().Add(c.d.closeTimeout)
	if err := ws.WriteControl(gorilla.CloseMessage, gorilla.FormatCloseMessage(code, reason), deadline); err != nil {
		c.d.logger.Debug("gorillaws failed to write close message", "url", c.url, "error", err)
		ws.Close()
	}
	return nil
}

// Ping writes a ping control frame.
func (c *Conn) Ping(payload []byte) error {
	if c.state.Load() != transport.Open {
		return transport.ErrNotOpen
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	return ws.WriteControl(gorilla.PingMessage, payload, time.Now().Add(c.d.closeTimeout))
}

func (c *Conn) ReadyState() transport.ReadyState {
	return c.state.Load()
}

func (c *Conn) BufferedAmount() int {
	return int(c.buffered.Load())
}

func (c *Conn) Protocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.protocol
}

func (c *Conn) Extensions() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.extensions
}

func (c *Conn) URL() string {
	return c.url
}
