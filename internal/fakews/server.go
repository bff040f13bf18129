// Package fakews is an in-process WebSocket echo server with failure
// injection, used to test the transports and the socket end to end.
package fakews

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lxzan/gws"

	"github.com/livews/livews.go/pkg/transport"
)

func cryptoRandFloat64() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<53))
	return float64(n.Int64()) / float64(1<<53)
}

// FailureType represents different types of failures that can be injected
type FailureType string

const (
	FailureNone FailureType = "none"
	// FailureDropConnection closes the TCP connection without a close frame
	FailureDropConnection FailureType = "drop_connection"
	// FailureWebSocketClose sends a close frame
	FailureWebSocketClose FailureType = "websocket_close"
	// FailureSilent swallows messages and pings
	FailureSilent FailureType = "silent"
	// FailureRejectHandshake refuses the opening handshake
	FailureRejectHandshake FailureType = "reject_handshake"
)

// FailureConfig configures failure injection
type FailureConfig struct {
	Type FailureType
	// Probability of the failure occurring, 0 means always
	Probability float64
	// CloseCode for FailureWebSocketClose
	CloseCode uint16
	// CloseReason for FailureWebSocketClose
	CloseReason string
}

func (f FailureConfig) triggered() bool {
	if f.Type == FailureNone || f.Type == "" {
		return false
	}
	return f.Probability <= 0 || cryptoRandFloat64() < f.Probability
}

// Server is a fake WebSocket server that echoes every message back.
type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server

	mu          sync.RWMutex
	failure     FailureConfig
	echoDelay   time.Duration
	connections map[*gws.Conn]bool
	accepted    int
	rejected    int
	received    []transport.Message
	pings       int
}

// Handler implements the gws.Event interface for WebSocket connections
type Handler struct {
	server *Server
}

// NewServer creates a new fake server.
// Use "127.0.0.1:0" to bind to a random available port.
// The first of protocols requested by a client is selected.
func NewServer(addr string, protocols ...string) *Server {
	s := &Server{
		addr:        addr,
		connections: make(map[*gws.Conn]bool),
	}

	handler := &Handler{server: s}
	s.server = gws.NewServer(handler, &gws.ServerOption{
		SubProtocols: protocols,
		PermessageDeflate: gws.PermessageDeflate{
			Enabled: true,
		},
	})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
			log.Printf("fakews: server error: %v", err)
		}
	}

	return s
}

// SetFailure sets the failure applied to handshakes and incoming messages.
func (s *Server) SetFailure(failure FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = failure
}

// SetEchoDelay delays every echo by d.
func (s *Server) SetEchoDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echoDelay = d
}

// Start starts the server and begins accepting WebSocket connections.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(&rejectingListener{Listener: listener, server: s}); err != nil {
			if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
				log.Printf("fakews: server error: %v", err)
			}
		}
	}()

	return nil
}

// Stop closes the listener and drops every open connection.
func (s *Server) Stop() error {
	s.DropAll()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Address returns the actual address the server is listening on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// URL of the server.
func (s *Server) URL() string {
	return "ws://" + s.Address()
}

// Accepted is the number of completed handshakes.
func (s *Server) Accepted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accepted
}

// Rejected is the number of refused handshakes.
func (s *Server) Rejected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// Connections is the number of currently open connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Received returns a copy of every message received so far.
func (s *Server) Received() []transport.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]transport.Message(nil), s.received...)
}

// Pings is the number of ping frames received.
func (s *Server) Pings() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pings
}

// Broadcast writes msg to every open connection.
func (s *Server) Broadcast(msg transport.Message) {
	opcode := gws.OpcodeBinary
	if msg.IsText() {
		opcode = gws.OpcodeText
	}
	for _, socket := range s.sockets() {
		if err := socket.WriteMessage(opcode, msg.Data); err != nil {
			log.Printf("fakews: error writing broadcast: %v", err)
		}
	}
}

// CloseAll sends a close frame to every open connection.
func (s *Server) CloseAll(code uint16, reason string) {
	for _, socket := range s.sockets() {
		socket.WriteClose(code, []byte(reason))
	}
}

// DropAll closes every open connection without a close frame.
func (s *Server) DropAll() {
	for _, socket := range s.sockets() {
		socket.NetConn().Close()
	}
}

func (s *Server) sockets() []*gws.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sockets := make([]*gws.Conn, 0, len(s.connections))
	for socket := range s.connections {
		sockets = append(sockets, socket)
	}
	return sockets
}

func (s *Server) currentFailure() FailureConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

func (s *Server) reject() bool {
	failure := s.currentFailure()
	if failure.Type != FailureRejectHandshake || !failure.triggered() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
	return true
}

// rejectingListener hangs up on new connections before the opening
// handshake while FailureRejectHandshake is set.
type rejectingListener struct {
	net.Listener
	server *Server
}

func (l *rejectingListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if !l.server.reject() {
			return conn, nil
		}
		conn.Close()
	}
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	h.server.mu.Lock()
	h.server.connections[socket] = true
	h.server.accepted++
	h.server.mu.Unlock()
}

func (h *Handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.connections, socket)
	h.server.mu.Unlock()
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	h.server.mu.Lock()
	h.server.pings++
	h.server.mu.Unlock()

	if h.server.currentFailure().Type == FailureSilent {
		return
	}
	if err := socket.WritePong(payload); err != nil {
		log.Printf("fakews: error writing pong: %v", err)
	}
}

func (h *Handler) OnPong(socket *gws.Conn, payload []byte) {
}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	msg := transport.Binary(append([]byte(nil), message.Bytes()...))
	if message.Opcode == gws.OpcodeText {
		msg.Type = transport.TextMessage
	}

	h.server.mu.Lock()
	h.server.received = append(h.server.received, msg)
	delay := h.server.echoDelay
	h.server.mu.Unlock()

	failure := h.server.currentFailure()
	if failure.triggered() {
		switch failure.Type {
		case FailureDropConnection:
			socket.NetConn().Close()
			return
		case FailureWebSocketClose:
			code := failure.CloseCode
			if code == 0 {
				code = 1001
			}
			reason := failure.CloseReason
			if reason == "" {
				reason = "failure injection"
			}
			socket.WriteClose(code, []byte(reason))
			return
		case FailureSilent:
			return
		}
	}

	time.Sleep(delay)
	if err := socket.WriteMessage(message.Opcode, msg.Data); err != nil {
		log.Printf("fakews: error writing echo: %v", err)
	}
}

// isUseOfClosedNetworkError checks if the error is a "use of closed network connection" error
func isUseOfClosedNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasSuffix(err.Error(), "use of closed network connection")
}
