// Package gws implements transport.Dialer on top of lxzan/gws.
package gws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lxzan/gws"

	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/transport"
)

const DefaultCloseTimeout = 5 * time.Second

type Option func(d *Dialer)

type Dialer struct {
	header           http.Header
	compression      bool
	handshakeTimeout time.Duration
	closeTimeout     time.Duration
	logger           logger.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		compression:  true,
		closeTimeout: DefaultCloseTimeout,
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

// WithCompression toggles permessage-deflate, which is on by default.
func WithCompression(enabled bool) Option {
	return func(d *Dialer) {
		d.compression = enabled
	}
}

func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.handshakeTimeout = timeout
	}
}

func WithCloseTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.closeTimeout = timeout
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

	header := d.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if len(protocols) > 0 {
		header.Set("Sec-WebSocket-Protocol", strings.Join(protocols, ", "))
	}

	c := &Conn{
		d:       d,
		url:     url,
		emitter: transport.NewEmitter(h),
	}
	c.state.Store(transport.Connecting)

	option := &gws.ClientOption{
		Addr:             url,
		RequestHeader:    header,
		HandshakeTimeout: d.handshakeTimeout,
		PermessageDeflate: gws.PermessageDeflate{
			Enabled: d.compression,
		},
	}
	go c.run(option)

	return c, nil
}

// Conn is a transport.Conn backed by a *gws.Conn.
type Conn struct {
	d        *Dialer
	url      string
	emitter  *transport.Emitter
	state    transport.State
	buffered atomic.Int64

	// mu guards everything below.
	mu          sync.Mutex
	ws          *gws.Conn
	protocol    string
	extensions  string
	closeSent   bool
	closeCode   int
	closeReason string
	closeTimer  *time.Timer

	// Set by OnClose, reported once ReadLoop has returned.
	endCode   int
	endReason string
	lost      error
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Pinger = (*Conn)(nil)
	_ gws.Event        = (*handler)(nil)
)

func (c *Conn) run(option *gws.ClientOption) {
	ws, res, err := gws.NewClient(&handler{c: c}, option)

	c.mu.Lock()
	if err != nil {
		requested := c.closeSent
		c.mu.Unlock()

		c.state.Store(transport.Closed)
		if requested {
			// Close already reported the end of the connection.
			return
		}
		c.d.logger.Debug("gws handshake failed", "url", c.url, "error", err)
		c.emitter.Error(fmt.Errorf("gws: dial %s: %w", c.url, err))
		c.emitter.Close(transport.CloseAbnormalClosure, "")
		return
	}
	if c.closeSent {
		c.mu.Unlock()
		ws.NetConn().Close()
		return
	}

	c.ws = ws
	c.protocol = ws.SubProtocol()
	if res != nil {
		c.extensions = res.Header.Get("Sec-WebSocket-Extensions")
	}
	c.state.Store(transport.Open)
	c.mu.Unlock()

	// ReadLoop reports OnOpen first and OnClose last. gws may run OnClose
	// on the goroutine calling WriteClose, so the close is only reported
	// here and the connection stays Closing until then.
	ws.ReadLoop()

	c.mu.Lock()
	code, reason, lost := c.endCode, c.endReason, c.lost
	c.mu.Unlock()

	if lost != nil {
		c.emitter.Error(lost)
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

	opcode := gws.OpcodeBinary
	if msg.IsText() {
		opcode = gws.OpcodeText
	}
	if err := ws.WriteMessage(opcode, msg.Data); err != nil {
		return fmt.Errorf("gws: write: %w", err)
	}
	return nil
}

// Close sends a close frame and drops the connection if the peer does not
// finish the closing handshake within the close timeout. Closing while
// connecting reports the close at once and discards the connection if the
// handshake still completes.
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
			ws.NetConn().Close()
		})
	}
	c.mu.Unlock()

	if ws == nil {
		c.state.Store(transport.Closed)
		c.emitter.Close(code, reason)
		return nil
	}

	ws.WriteClose(uint16(code), []byte(reason))
	return nil
}

func (c *Conn) Ping(payload []byte) error {
	if c.state.Load() != transport.Open {
		return transport.ErrNotOpen
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	return ws.WritePing(payload)
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

// handler adapts gws callbacks to the transport emitter.
type handler struct {
	c *Conn
}

func (h *handler) OnOpen(socket *gws.Conn) {
	h.c.emitter.Open()
}

func (h *handler) OnClose(socket *gws.Conn, err error) {
	c := h.c

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}

	var closeErr *gws.CloseError
	switch {
	case c.closeSent:
		c.endCode, c.endReason = c.closeCode, c.closeReason
	case errors.As(err, &closeErr) && closeErr.Code != transport.CloseAbnormalClosure:
		c.endCode, c.endReason = int(closeErr.Code), string(closeErr.Reason)
		if c.endCode == 0 {
			c.endCode = transport.CloseNoStatus
		}
	default:
		c.d.logger.Debug("gws connection lost", "url", c.url, "error", err)
		c.lost = fmt.Errorf("gws: read: %w", err)
		c.endCode, c.endReason = transport.CloseAbnormalClosure, ""
	}
}

func (h *handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		h.c.d.logger.Debug("gws failed to write pong", "url", h.c.url, "error", err)
	}
}

func (h *handler) OnPong(socket *gws.Conn, payload []byte) {
	h.c.emitter.Pong()
}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	data := append([]byte(nil), message.Bytes()...)
	if message.Opcode == gws.OpcodeText {
		h.c.emitter.Message(transport.Message{Type: transport.TextMessage, Data: data})
		return
	}
	h.c.emitter.Message(transport.Binary(data))
}
