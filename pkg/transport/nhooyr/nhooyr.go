// Package nhooyr implements transport.Dialer on top of nhooyr.io/websocket.
package nhooyr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/transport"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingTimeout  = 10 * time.Second
)

type Option func(d *Dialer)

type Dialer struct {
	header       http.Header
	client       *http.Client
	compression  websocket.CompressionMode
	writeTimeout time.Duration
	pingTimeout  time.Duration
	readLimit    int64
	logger       logger.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		compression:  websocket.CompressionNoContextTakeover,
		writeTimeout: DefaultWriteTimeout,
		pingTimeout:  DefaultPingTimeout,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func WithHeader(h http.Header) Option {
	return func(d *Dialer) {
		d.header = h.Clone()
	}
}

// WithHTTPClient sets the client used for the opening handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) {
		d.client = c
	}
}

func WithCompression(mode websocket.CompressionMode) Option {
	return func(d *Dialer) {
		d.compression = mode
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.writeTimeout = timeout
	}
}

// WithPingTimeout bounds how long a ping waits for its pong.
func WithPingTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.pingTimeout = timeout
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
		ctx:     ctx,
		cancel:  cancel,
	}
	c.state.Store(transport.Connecting)

	go c.run(&websocket.DialOptions{
		HTTPClient:      d.client,
		HTTPHeader:      d.header,
		Subprotocols:    append([]string(nil), protocols...),
		CompressionMode: d.compression,
	})

	return c, nil
}

// Conn is a transport.Conn backed by a *websocket.Conn.
type Conn struct {
	d        *Dialer
	url      string
	emitter  *transport.Emitter
	state    transport.State
	buffered atomic.Int64

	// ctx lives as long as the connection.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards everything below.
	mu          sync.Mutex
	ws          *websocket.Conn
	protocol    string
	extensions  string
	closeSent   bool
	closeCode   int
	closeReason string
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Pinger = (*Conn)(nil)
)

func (c *Conn) run(opts *websocket.DialOptions) {
	defer c.cancel()

	ws, res, err := websocket.Dial(c.ctx, c.url, opts)

	c.mu.Lock()
	if err != nil {
		requested, code, reason := c.closeSent, c.closeCode, c.closeReason
		c.mu.Unlock()

		c.state.Store(transport.Closed)
		if requested {
			c.emitter.Close(code, reason)
			return
		}
		c.d.logger.Debug("nhooyr handshake failed", "url", c.url, "error", err)
		c.emitter.Error(fmt.Errorf("nhooyr: dial %s: %w", c.url, err))
		c.emitter.Close(transport.CloseAbnormalClosure, "")
		return
	}
	if c.closeSent {
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()

		ws.CloseNow()
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

	c.emitter.Open()
	c.readLoop(ws)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		typ, data, err := ws.Read(c.ctx)
		if err != nil {
			c.handleError(ws, err)
			return
		}

		if typ == websocket.MessageText {
			c.emitter.Message(transport.Message{Type: transport.TextMessage, Data: data})
			continue
		}
		c.emitter.Message(transport.Binary(data))
	}
}

func (c *Conn) handleError(ws *websocket.Conn, err error) {
	c.mu.Lock()
	requested, code, reason := c.closeSent, c.closeCode, c.closeReason
	c.mu.Unlock()

	var closeErr websocket.CloseError
	switch {
	case requested:
	case errors.As(err, &closeErr) && closeErr.Code != websocket.StatusAbnormalClosure:
		code, reason = int(closeErr.Code), closeErr.Reason
	default:
		c.d.logger.Debug("nhooyr read failed", "url", c.url, "error", err)
		c.emitter.Error(fmt.Errorf("nhooyr: read: %w", err))
		code, reason = transport.CloseAbnormalClosure, ""
		ws.CloseNow()
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

	ctx := c.ctx
	if c.d.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.d.writeTimeout)
		defer cancel()
	}

	typ := websocket.MessageBinary
	if msg.IsText() {
		typ = websocket.MessageText
	}
	if err := ws.Write(ctx, typ, msg.Data); err != nil {
		return fmt.Errorf("nhooyr: write: %w", err)
	}
	return nil
}

// Close runs the closing handshake in the background. Closing while
// connecting aborts the handshake.
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
	c.mu.Unlock()

	if ws == nil {
		c.cancel()
		return nil
	}

	go func() {
		// Close waits for the peer's close frame, up to its own timeout.
		if err := ws.Close(websocket.StatusCode(code), reason); err != nil {
			c.d.logger.Debug("nhooyr close failed", "url", c.url, "error", err)
			ws.CloseNow()
		}
	}()
	return nil
}

// Ping sends a ping and reports the pong to the handler when it arrives.
func (c *Conn) Ping(_ []byte) error {
	if c.state.Load() != transport.Open {
		return transport.ErrNotOpen
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.d.pingTimeout)
		defer cancel()

		if err := ws.Ping(ctx); err != nil {
			c.d.logger.Debug("nhooyr ping failed", "url", c.url, "error", err)
			return
		}
		c.emitter.Pong()
	}()
	return nil
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
