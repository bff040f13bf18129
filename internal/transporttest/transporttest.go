// Package transporttest checks transport.Dialer implementations against a
// real WebSocket server.
package transporttest

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livews/livews.go/internal/fakews"
	"github.com/livews/livews.go/pkg/transport"
)

const wait = 2 * time.Second

// Handler records transport callbacks in order.
type Handler struct {
	events chan string
	msgs   chan transport.Message
}

func NewHandler() *Handler {
	return &Handler{
		events: make(chan string, 64),
		msgs:   make(chan transport.Message, 64),
	}
}

func (h *Handler) OnOpen()                         { h.events <- "open" }
func (h *Handler) OnError(err error)               { h.events <- "error" }
func (h *Handler) OnPong()                         { h.events <- "pong" }
func (h *Handler) OnClose(code int, reason string) { h.events <- fmt.Sprintf("close %d %s", code, reason) }
func (h *Handler) OnMessage(msg transport.Message) {
	h.events <- "message"
	h.msgs <- msg
}

// Next returns the next callback, failing the test after a timeout.
func (h *Handler) Next(t *testing.T) string {
	t.Helper()

	select {
	case e := <-h.events:
		return e
	case <-time.After(wait):
		t.Fatal("timed out waiting for a transport callback")
		return ""
	}
}

func (h *Handler) Message(t *testing.T) transport.Message {
	t.Helper()

	require.Equal(t, "message", h.Next(t))
	return <-h.msgs
}

func startServer(t *testing.T, protocols ...string) *fakews.Server {
	t.Helper()

	server := fakews.NewServer("127.0.0.1:0", protocols...)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// stallingListener accepts connections and never answers the handshake.
func stallingListener(t *testing.T) string {
	t.Helper()

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			c, err := listener.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	return "ws://" + listener.Addr().String()
}

// Run exercises d against a fake server.
func Run(t *testing.T, d transport.Dialer) {
	t.Run("rejects invalid URL", func(t *testing.T) {
		_, err := d.Dial("http://localhost:1", nil, NewHandler())
		assert.ErrorIs(t, err, transport.ErrUnsupportedScheme)
	})

	t.Run("echo and client close", func(t *testing.T) {
		server := startServer(t, "chat")
		h := NewHandler()

		conn, err := d.Dial(server.URL(), []string{"chat"}, h)
		require.NoError(t, err)
		assert.Equal(t, server.URL(), conn.URL())
		assert.ErrorIs(t, conn.Send(transport.Text("early")), transport.ErrNotOpen)

		require.Equal(t, "open", h.Next(t))
		assert.Equal(t, transport.Open, conn.ReadyState())
		assert.Equal(t, "chat", conn.Protocol())

		require.NoError(t, conn.Send(transport.Text("héllo")))
		msg := h.Message(t)
		assert.True(t, msg.IsText())
		assert.Equal(t, "héllo", string(msg.Data))

		require.NoError(t, conn.Send(transport.Binary([]byte{0, 1, 2})))
		msg = h.Message(t)
		assert.False(t, msg.IsText())
		assert.Equal(t, []byte{0, 1, 2}, msg.Data)
		assert.Equal(t, 0, conn.BufferedAmount())

		require.NoError(t, conn.Close(transport.CloseNormalClosure, "bye"))
		assert.Contains(t, []transport.ReadyState{transport.Closing, transport.Closed}, conn.ReadyState())
		assert.Equal(t, "close 1000 bye", h.Next(t))
		assert.Eventually(t, func() bool { return conn.ReadyState() == transport.Closed }, wait, 5*time.Millisecond)
		assert.ErrorIs(t, conn.Close(transport.CloseNormalClosure, ""), transport.ErrClosed)
		assert.ErrorIs(t, conn.Send(transport.Text("late")), transport.ErrNotOpen)
	})

	t.Run("server close", func(t *testing.T) {
		server := startServer(t)
		server.SetFailure(fakews.FailureConfig{Type: fakews.FailureWebSocketClose, CloseCode: 4000, CloseReason: "go away"})
		h := NewHandler()

		conn, err := d.Dial(server.URL(), nil, h)
		require.NoError(t, err)
		require.Equal(t, "open", h.Next(t))

		require.NoError(t, conn.Send(transport.Text("x")))
		assert.Equal(t, "close 4000 go away", h.Next(t))
		assert.Eventually(t, func() bool { return conn.ReadyState() == transport.Closed }, wait, 5*time.Millisecond)
	})

	t.Run("dropped connection", func(t *testing.T) {
		server := startServer(t)
		server.SetFailure(fakews.FailureConfig{Type: fakews.FailureDropConnection})
		h := NewHandler()

		conn, err := d.Dial(server.URL(), nil, h)
		require.NoError(t, err)
		require.Equal(t, "open", h.Next(t))

		require.NoError(t, conn.Send(transport.Text("x")))
		assert.Equal(t, "error", h.Next(t), "a lost connection is reported as an error")
		assert.Equal(t, "close 1006 ", h.Next(t))
		assert.Equal(t, transport.Closed, conn.ReadyState())
	})

	t.Run("rejected handshake", func(t *testing.T) {
		server := startServer(t)
		server.SetFailure(fakews.FailureConfig{Type: fakews.FailureRejectHandshake})
		h := NewHandler()

		conn, err := d.Dial(server.URL(), nil, h)
		require.NoError(t, err)
		assert.Equal(t, "error", h.Next(t))
		assert.Equal(t, "close 1006 ", h.Next(t))
		assert.Equal(t, transport.Closed, conn.ReadyState())
	})

	t.Run("close while connecting", func(t *testing.T) {
		url := stallingListener(t)
		h := NewHandler()

		conn, err := d.Dial(url, nil, h)
		require.NoError(t, err)
		assert.Equal(t, transport.Connecting, conn.ReadyState())

		require.NoError(t, conn.Close(3000, "abort"))
		assert.Equal(t, "close 3000 abort", h.Next(t))
	})

	t.Run("ping", func(t *testing.T) {
		server := startServer(t)
		h := NewHandler()

		conn, err := d.Dial(server.URL(), nil, h)
		require.NoError(t, err)
		require.Equal(t, "open", h.Next(t))

		pinger, ok := conn.(transport.Pinger)
		require.True(t, ok)
		require.NoError(t, pinger.Ping(nil))
		assert.Equal(t, "pong", h.Next(t))
		assert.Equal(t, 1, server.Pings())

		require.NoError(t, conn.Close(transport.CloseNormalClosure, ""))
	})
}
