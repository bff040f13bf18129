package mock

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livews/livews.go/pkg/transport"
)

type handler struct {
	events chan string
}

func newHandler() *handler {
	return &handler{events: make(chan string, 16)}
}

func (h *handler) OnOpen() { h.events <- "open" }
func (h *handler) OnMessage(msg transport.Message) { h.events <- "message " + msg.String() }
func (h *handler) OnError(err error) { h.events <- "error " + err.Error() }
func (h *handler) OnClose(code int, reason string) { h.events <- fmt.Sprintf("close %d %s", code, reason) }
func (h *handler) OnPong() { h.events <- "pong" }

func (h *handler) next(t *testing.T) string {
	t.Helper()

	select {
	case e := <-h.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an event")
		return ""
	}
}

func TestConnLifecycle(t *testing.T) {
	d := &Dialer{AutoPong: true}
	h := newHandler()

	conn, err := d.Dial("ws://test", []string{"chat"}, h)
	require.NoError(t, err)
	c := d.Last()
	assert.Same(t, c, conn)
	assert.Equal(t, 1, d.Dials())
	assert.Equal(t, "ws://test", c.URL())
	assert.Equal(t, transport.Connecting, c.ReadyState())
	assert.Empty(t, c.Protocol())
	assert.ErrorIs(t, c.Send(transport.Text("early")), transport.ErrNotOpen)

	c.Open()
	assert.Equal(t, "open", h.next(t))
	assert.Equal(t, "chat", c.Protocol())

	require.NoError(t, c.Send(transport.Text("hi")))
	assert.Equal(t, []string{"hi"}, c.SentText())

	c.Receive(transport.Text("back"))
	assert.Equal(t, "message back", h.next(t))

	require.NoError(t, c.Ping(nil))
	assert.Equal(t, "pong", h.next(t))
	assert.Equal(t, 1, c.Pings())

	require.NoError(t, c.Close(1000, "bye"))
	assert.Equal(t, "close 1000 bye", h.next(t))
	assert.Equal(t, transport.Closed, c.ReadyState())
	assert.ErrorIs(t, c.Close(1000, ""), transport.ErrClosed)
	assert.Equal(t, []CloseCall{{1000, "bye"}, {1000, ""}}, c.Closes())
}

func TestConnFail(t *testing.T) {
	d := &Dialer{OnDial: FailOnDial(errors.New("refused"))}
	h := newHandler()

	_, err := d.Dial("ws://test", nil, h)
	require.NoError(t, err)
	assert.Equal(t, "error refused", h.next(t))
	assert.Equal(t, "close 1006 ", h.next(t))
	assert.Equal(t, transport.Closed, d.Conn(0).ReadyState())
}

func TestDialerSetError(t *testing.T) {
	d := &Dialer{}
	d.SetOnDial(OpenOnDial)
	h := newHandler()

	_, err := d.Dial("ws://test", nil, h)
	require.NoError(t, err)
	assert.Equal(t, "open", h.next(t))

	boom := errors.New("boom")
	d.SetError(boom)
	_, err = d.Dial("ws://test", nil, h)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, d.Dials())
}
