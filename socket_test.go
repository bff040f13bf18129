package livews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livews/livews.go/internal/mock"
	"github.com/livews/livews.go/internal/testenv"
	"github.com/livews/livews.go/pkg/lifecycle"
	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/transport"
)

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)

var errBoom = errors.New("boom")

// recorder collects every event dispatched to it.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

func (r *recorder) listen(s *Socket) *recorder {
	for _, t := range []EventType{EventOpen, EventMessage, EventClose, EventError} {
		s.AddEventListener(t, r)
	}
	return r
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

func (r *recorder) closes() []*CloseEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var closes []*CloseEvent
	for _, e := range r.events {
		if c, ok := e.(*CloseEvent); ok {
			closes = append(closes, c)
		}
	}
	return closes
}

func (r *recorder) errors() []*ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []*ErrorEvent
	for _, e := range r.events {
		if c, ok := e.(*ErrorEvent); ok {
			errs = append(errs, c)
		}
	}
	return errs
}

type attemptObserver struct {
	NopObserver

	mu       sync.Mutex
	attempts []attemptRecord
}

type attemptRecord struct {
	retry int
	delay time.Duration
}

func (o *attemptObserver) ConnectAttempt(retry int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.attempts = append(o.attempts, attemptRecord{retry: retry, delay: delay})
}

func (o *attemptObserver) last() attemptRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.attempts[len(o.attempts)-1]
}

func newTestSocketURL(t *testing.T, url URLProvider, d *mock.Dialer, opts ...Option) (*Socket, *recorder) {
	t.Helper()

	base := []Option{
		WithDialer(d),
		WithMinReconnectionDelay(time.Millisecond),
		WithMaxReconnectionDelay(5 * time.Millisecond),
		WithLogger(logger.New(testenv.NewLogRecorder())),
	}
	// hold the first attempt until the recorder listens
	ready := make(chan struct{})
	gated := URLFunc(func(ctx context.Context) (string, error) {
		<-ready
		return url.ResolveURL(ctx)
	})

	s, err := New(gated, []string{"chat"}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)

	rec := new(recorder).listen(s)
	close(ready)
	return s, rec
}

func newTestSocket(t *testing.T, d *mock.Dialer, opts ...Option) (*Socket, *recorder) {
	t.Helper()
	return newTestSocketURL(t, StaticURL("ws://test"), d, opts...)
}

// settle waits for every task posted so far to run.
func settle(s *Socket) {
	s.loop.Do(func() {})
}

func TestSocketOpensAndFlushesQueue(t *testing.T) {
	d := &mock.Dialer{}
	s, rec := newTestSocket(t, d)

	require.NoError(t, s.SendText("a"))
	require.NoError(t, s.SendBinary([]byte{1, 2, 3}))
	require.Eventually(t, func() bool { return d.Dials() == 1 }, waitFor, tick)
	settle(s)

	assert.Equal(t, Connecting, s.ReadyState())
	assert.Equal(t, 4, s.BufferedAmount())
	assert.Equal(t, "ws://test", s.URL())

	conn := d.Last()
	conn.Open()
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)

	require.NoError(t, s.SendText("c"))
	settle(s)

	sent := conn.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, transport.Text("a"), sent[0])
	assert.Equal(t, transport.Binary([]byte{1, 2, 3}), sent[1])
	assert.Equal(t, transport.Text("c"), sent[2])

	assert.Equal(t, Open, s.ReadyState())
	assert.Zero(t, s.BufferedAmount())
	assert.Equal(t, "chat", s.Protocol())
	assert.Equal(t, "", s.Extensions())
}

func TestSocketQueueCapacity(t *testing.T) {
	for _, capacity := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			d := &mock.Dialer{OnDial: mock.OpenOnDial}
			s, rec := newTestSocket(t, d, WithStartClosed(true), WithMaxEnqueuedMessages(capacity))

			var want []string
			for i := 0; i <= capacity; i++ {
				msg := string(rune('a' + i))
				require.NoError(t, s.SendText(msg))
				if i < capacity {
					want = append(want, msg)
				}
			}
			settle(s)
			assert.Equal(t, capacity, s.queue.Len())

			s.Reconnect(0, "")
			require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
			settle(s)

			assert.Equal(t, want, d.Last().SentText())
			assert.Zero(t, s.queue.Len())
		})
	}
}

func TestSocketStartClosed(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocket(t, d, WithStartClosed(true))

	time.Sleep(20 * time.Millisecond)
	settle(s)
	assert.Zero(t, d.Dials())
	assert.Equal(t, Closed, s.ReadyState())

	s.Reconnect(0, "")
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	assert.Equal(t, 1, d.Dials())
}

func TestSocketCloseDuringURLResolution(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	url := URLFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "ws://test", nil
	})

	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, _ := newTestSocketURL(t, url, d)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	s.Close(0, "")
	settle(s)
	close(release)

	time.Sleep(20 * time.Millisecond)
	settle(s)
	assert.Zero(t, d.Dials(), "no transport may be created after Close")
}

func TestSocketCloseDuringBackoff(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.FailOnDial(errBoom)}
	s, rec := newTestSocket(t, d,
		WithMinReconnectionDelay(100*time.Millisecond),
		WithMaxReconnectionDelay(time.Second),
	)

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, waitFor, tick)
	s.Close(0, "")

	time.Sleep(200 * time.Millisecond)
	settle(s)
	assert.Equal(t, 1, d.Dials())
	assert.Equal(t, Closed, s.ReadyState())
}

func TestSocketHeartbeatHealthPreventsPongTimeout(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocket(t, d,
		WithHeartbeatInterval(20*time.Millisecond),
		WithPongTimeoutInterval(10*time.Millisecond),
		WithHooks(Hooks{
			OnBeforePing: func(s *Socket) {
				_ = s.SendText("ping")
				s.HeartbeatHealth()
			},
		}),
	)

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	time.Sleep(150 * time.Millisecond)
	settle(s)

	assert.Equal(t, 1, d.Dials())
	assert.Empty(t, rec.closes())
	assert.GreaterOrEqual(t, len(d.Last().SentText()), 3)
}

func TestSocketPongTimeoutReconnects(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	var pings atomic.Int32
	s, rec := newTestSocket(t, d,
		WithHeartbeatInterval(20*time.Millisecond),
		WithPongTimeoutInterval(10*time.Millisecond),
		WithHooks(Hooks{
			OnBeforePing: func(*Socket) { pings.Add(1) },
		}),
	)

	require.Eventually(t, func() bool { return d.Dials() >= 2 }, waitFor, tick)
	s.Close(0, "")
	settle(s)

	assert.GreaterOrEqual(t, pings.Load(), int32(1))
	require.NotEmpty(t, rec.closes())
	first := rec.closes()[0]
	assert.Equal(t, ClosePongTimeout, first.Code)
	assert.Equal(t, "pong timeout", first.Reason)
	assert.True(t, first.WasClean)
	assert.Contains(t, d.Conn(0).Closes(), mock.CloseCall{Code: ClosePongTimeout, Reason: "pong timeout"})
}

func TestSocketPongTimeoutWithSynchronousClose(t *testing.T) {
	var dials atomic.Int32
	d := &mock.Dialer{
		SyncClose: true,
		OnDial: func(c *mock.Conn) {
			if dials.Add(1) == 1 {
				c.Open()
			}
		},
	}
	s, rec := newTestSocket(t, d,
		WithControlPing(true),
		WithHeartbeatInterval(20*time.Millisecond),
		WithPongTimeoutInterval(10*time.Millisecond),
	)

	require.Eventually(t, func() bool { return d.Dials() >= 2 }, waitFor, tick)
	settle(s)

	closes := rec.closes()
	require.Len(t, closes, 1, "the timed out transport reports exactly one close")
	assert.Equal(t, ClosePongTimeout, closes[0].Code)
	assert.Equal(t, "pong timeout", closes[0].Reason)
	assert.Contains(t, d.Conn(0).Closes(), mock.CloseCall{Code: ClosePongTimeout, Reason: "pong timeout"})
	assert.Equal(t, transport.Connecting, d.Conn(1).ReadyState())
}

func TestSocketControlPing(t *testing.T) {
	t.Run("pong frames acknowledge", func(t *testing.T) {
		d := &mock.Dialer{OnDial: mock.OpenOnDial, AutoPong: true}
		s, rec := newTestSocket(t, d,
			WithControlPing(true),
			WithHeartbeatInterval(20*time.Millisecond),
			WithPongTimeoutInterval(10*time.Millisecond),
		)

		require.Eventually(t, func() bool { return d.Dials() == 1 && d.Last().Pings() >= 3 }, waitFor, tick)
		settle(s)
		assert.Empty(t, rec.closes())
	})

	t.Run("missing pongs time out", func(t *testing.T) {
		d := &mock.Dialer{OnDial: mock.OpenOnDial}
		_, rec := newTestSocket(t, d,
			WithControlPing(true),
			WithHeartbeatInterval(20*time.Millisecond),
			WithPongTimeoutInterval(10*time.Millisecond),
		)

		require.Eventually(t, func() bool { return d.Dials() >= 2 }, waitFor, tick)
		assert.Equal(t, ClosePongTimeout, rec.closes()[0].Code)
	})
}

func TestSocketMaxRetries(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.FailOnDial(errBoom)}
	logs := testenv.NewLogRecorder()
	s, rec := newTestSocket(t, d, WithMaxRetries(2), WithLogger(logger.New(logs)))

	require.Eventually(t, func() bool { return d.Dials() == 3 }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)
	settle(s)

	assert.Equal(t, 3, d.Dials())
	assert.Equal(t, 2, s.RetryCount())
	assert.Equal(t, Closed, s.ReadyState())
	assert.Positive(t, logs.Count("livews.Socket max retries reached"))
	for _, e := range rec.errors() {
		assert.ErrorIs(t, e.Err, errBoom)
	}

	d.SetOnDial(mock.OpenOnDial)
	s.Reconnect(0, "")
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	assert.Equal(t, 4, d.Dials())
}

func TestSocketConnectLockCollapsesTriggers(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	url := URLFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "ws://test", nil
	})

	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocketURL(t, url, d)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	s.Reconnect(0, "")
	s.Reconnect(0, "")
	settle(s)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.Dials())
}

func TestSocketMinUptimeResetsRetryCount(t *testing.T) {
	var dials atomic.Int32
	d := &mock.Dialer{OnDial: func(c *mock.Conn) {
		if dials.Add(1) <= 2 {
			c.Fail(errBoom)
			return
		}
		c.Open()
	}}
	obs := &attemptObserver{}
	s, rec := newTestSocket(t, d,
		WithMinUptime(100*time.Millisecond),
		WithMinReconnectionDelay(2*time.Millisecond),
		WithObserver(obs),
	)

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	assert.Equal(t, 2, s.RetryCount())

	require.Eventually(t, func() bool { return s.RetryCount() == 0 }, waitFor, tick)

	d.Last().Drop(transport.CloseAbnormalClosure, "")
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 2 }, waitFor, tick)

	last := obs.last()
	assert.Equal(t, 1, last.retry)
	assert.Equal(t, 2*time.Millisecond, last.delay)
}

func TestSocketVisibility(t *testing.T) {
	t.Run("reconnects when shown while closed", func(t *testing.T) {
		sig := lifecycle.NewManual(false)
		d := &mock.Dialer{OnDial: mock.OpenOnDial}
		obs := &attemptObserver{}
		s, rec := newTestSocket(t, d, WithSignal(sig), WithObserver(obs))

		require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)

		sig.Hide()
		settle(s)
		d.Last().Drop(transport.CloseAbnormalClosure, "")
		require.Eventually(t, func() bool { return len(rec.closes()) == 1 }, waitFor, tick)

		time.Sleep(20 * time.Millisecond)
		settle(s)
		assert.Equal(t, 1, d.Dials(), "no reconnection while hidden")
		assert.Equal(t, Closed, s.ReadyState())

		sig.Show()
		require.Eventually(t, func() bool { return rec.count(EventOpen) == 2 }, waitFor, tick)
		assert.Equal(t, attemptRecord{retry: 0, delay: 0}, obs.last())
	})

	t.Run("starts connecting once shown", func(t *testing.T) {
		sig := lifecycle.NewManual(true)
		d := &mock.Dialer{OnDial: mock.OpenOnDial}
		s, rec := newTestSocket(t, d, WithSignal(sig))

		time.Sleep(20 * time.Millisecond)
		settle(s)
		assert.Zero(t, d.Dials())

		sig.Show()
		require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	})

	t.Run("connects when shown while start closed", func(t *testing.T) {
		sig := lifecycle.NewManual(false)
		d := &mock.Dialer{OnDial: mock.OpenOnDial}
		s, rec := newTestSocket(t, d, WithSignal(sig), WithStartClosed(true))

		sig.Hide()
		settle(s)
		assert.Zero(t, d.Dials())

		sig.Show()
		require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
		assert.Equal(t, 1, d.Dials())
	})

	t.Run("close unsubscribes", func(t *testing.T) {
		sig := lifecycle.NewManual(false)
		d := &mock.Dialer{OnDial: mock.OpenOnDial}
		s, rec := newTestSocket(t, d, WithSignal(sig))

		require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
		assert.Equal(t, 1, sig.Subscribers())

		s.Close(0, "")
		settle(s)
		assert.Zero(t, sig.Subscribers())

		s.Reconnect(0, "")
		settle(s)
		assert.Equal(t, 1, sig.Subscribers())
	})

	t.Run("disabled", func(t *testing.T) {
		sig := lifecycle.NewManual(false)
		d := &mock.Dialer{OnDial: mock.OpenOnDial}
		s, _ := newTestSocket(t, d, WithSignal(sig), WithReconnectOnVisibility(false))

		settle(s)
		assert.Zero(t, sig.Subscribers())
	})
}

func TestSocketPageHiddenClose(t *testing.T) {
	sig := lifecycle.NewManual(false)
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocket(t, d, WithSignal(sig), WithPageHiddenCloseTime(10*time.Millisecond))

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	sig.Hide()
	settle(s)

	conn := d.Last()
	conn.Receive(transport.Text("early"))
	settle(s)
	assert.Empty(t, conn.Closes())

	time.Sleep(20 * time.Millisecond)
	conn.Receive(transport.Text("late"))
	require.Eventually(t, func() bool { return len(rec.closes()) == 1 }, waitFor, tick)

	assert.Equal(t, []mock.CloseCall{{Code: ClosePageHidden, Reason: "page hidden"}}, conn.Closes())
	assert.Equal(t, 2, rec.count(EventMessage))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.Dials())

	sig.Show()
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 2 }, waitFor, tick)
}

func TestSocketConnectTimeout(t *testing.T) {
	d := &mock.Dialer{}
	s, rec := newTestSocket(t, d, WithConnectionTimeout(20*time.Millisecond))

	require.Eventually(t, func() bool { return d.Dials() >= 2 }, waitFor, tick)
	s.Close(0, "")
	settle(s)

	errs := rec.errors()
	require.NotEmpty(t, errs)
	assert.Equal(t, "TIMEOUT", errs[0].Message)
	assert.ErrorIs(t, errs[0].Err, ErrConnectTimeout)

	closes := rec.closes()
	require.NotEmpty(t, closes)
	assert.Equal(t, CloseNormal, closes[0].Code)
	assert.Equal(t, "timeout", closes[0].Reason)
	assert.Equal(t, []mock.CloseCall{{Code: CloseNormal, Reason: "timeout"}}, d.Conn(0).Closes())
}

func TestSocketCloseStopsReconnecting(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocket(t, d)

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	s.Close(4000, "bye")
	require.Eventually(t, func() bool { return len(rec.closes()) == 1 }, waitFor, tick)

	assert.Equal(t, 4000, rec.closes()[0].Code)
	assert.Equal(t, "bye", rec.closes()[0].Reason)

	s.Close(0, "")
	time.Sleep(20 * time.Millisecond)
	settle(s)
	assert.Equal(t, 1, d.Dials())
	assert.Equal(t, Closed, s.ReadyState())
	assert.Len(t, d.Last().Closes(), 1)
}

func TestSocketReconnectReplacesTransport(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	var reconnects atomic.Int32
	s, rec := newTestSocket(t, d, WithHooks(Hooks{
		OnReconnect: func(*Socket) { reconnects.Add(1) },
	}))

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	assert.Zero(t, reconnects.Load())

	s.Reconnect(4001, "again")
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 2 }, waitFor, tick)

	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, int32(1), reconnects.Load())
	assert.Equal(t, []mock.CloseCall{{Code: 4001, Reason: "again"}}, d.Conn(0).Closes())
	require.Len(t, rec.closes(), 1)
	assert.Equal(t, 4001, rec.closes()[0].Code)
	assert.Zero(t, s.RetryCount())
}

func TestSocketDialErrorRetries(t *testing.T) {
	d := &mock.Dialer{}
	d.SetError(errBoom)
	s, rec := newTestSocket(t, d)

	require.Eventually(t, func() bool { return len(rec.errors()) >= 2 }, waitFor, tick)
	assert.ErrorIs(t, rec.errors()[0].Err, errBoom)
	assert.Empty(t, rec.closes())

	d.SetOnDial(mock.OpenOnDial)
	d.SetError(nil)
	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	settle(s)
}

func TestSocketURLResolutionError(t *testing.T) {
	var calls atomic.Int32
	url := URLFunc(func(context.Context) (string, error) {
		calls.Add(1)
		return "", errBoom
	})

	d := &mock.Dialer{}
	s, rec := newTestSocketURL(t, url, d, WithMaxRetries(1))

	require.Eventually(t, func() bool { return len(rec.errors()) == 2 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	settle(s)

	assert.Equal(t, int32(2), calls.Load())
	assert.ErrorIs(t, rec.errors()[0].Err, ErrInvalidURL)
	assert.ErrorIs(t, rec.errors()[0].Err, errBoom)
	assert.Zero(t, d.Dials())
}

func TestSocketHooksRunBeforeListeners(t *testing.T) {
	var mu sync.Mutex
	var order []string
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocket(t, d, WithStartClosed(true), WithHooks(Hooks{
		OnOpen:    func(*OpenEvent) { note("onopen") },
		OnMessage: func(e *MessageEvent) { note("onmessage " + e.Data.String()) },
		OnClose:   func(*CloseEvent) { note("onclose") },
	}))
	s.AddEventListener(EventOpen, ListenerFunc(func(Event) { note("open") }))
	s.AddEventListener(EventMessage, ListenerFunc(func(Event) { note("message") }))
	s.AddEventListener(EventClose, ListenerFunc(func(Event) { note("close") }))
	s.Reconnect(0, "")

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	d.Last().Receive(transport.Text("hi"))
	s.Close(0, "")
	require.Eventually(t, func() bool { return len(rec.closes()) == 1 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"onopen", "open", "onmessage hi", "message", "onclose", "close"}, order)
}

func TestSocketDetachedTransportIsIgnored(t *testing.T) {
	d := &mock.Dialer{}
	s, rec := newTestSocket(t, d, WithConnectionTimeout(20*time.Millisecond), WithMaxRetries(0))

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, waitFor, tick)

	// the aborted handshake reports its own close once it completes
	require.Eventually(t, func() bool { return d.Conn(0).ReadyState() == Closed }, waitFor, tick)
	time.Sleep(10 * time.Millisecond)
	settle(s)

	require.Len(t, rec.closes(), 1, "only the synthesized close is delivered")
	assert.Equal(t, "timeout", rec.closes()[0].Reason)
	assert.Zero(t, rec.count(EventOpen))
	assert.Equal(t, 1, d.Dials())
}

func TestSocketBinaryType(t *testing.T) {
	s, _ := newTestSocket(t, &mock.Dialer{}, WithStartClosed(true))

	assert.Equal(t, BinaryTypeBlob, s.BinaryType())
	s.SetBinaryType(BinaryTypeArrayBuffer)
	assert.Equal(t, BinaryTypeArrayBuffer, s.BinaryType())
}

func TestSocketDispose(t *testing.T) {
	d := &mock.Dialer{OnDial: mock.OpenOnDial}
	s, rec := newTestSocket(t, d)

	require.Eventually(t, func() bool { return rec.count(EventOpen) == 1 }, waitFor, tick)
	s.Dispose()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("socket goroutine did not exit")
	}

	assert.ErrorIs(t, s.SendText("late"), ErrDisposed)
	require.Eventually(t, func() bool { return s.ReadyState() == Closed }, waitFor, tick)
	assert.Equal(t, []mock.CloseCall{{Code: CloseNormal}}, d.Last().Closes())
}

func TestNewValidation(t *testing.T) {
	d := &mock.Dialer{}
	tests := []struct {
		name  string
		url   URLProvider
		opts  []Option
		field string
		err   error
	}{
		{"nil url", nil, nil, "url", ErrInvalidURL},
		{"empty url", StaticURL(""), nil, "url", ErrInvalidURL},
		{"http url", StaticURL("http://example.com"), nil, "url", ErrInvalidURL},
		{"url without scheme", StaticURL("localhost:8000"), nil, "url", ErrInvalidURL},
		{"url without host", StaticURL("ws://"), nil, "url", ErrInvalidURL},
		{"nil dialer", StaticURL("ws://x"), []Option{WithDialer(nil)}, "Dialer", ErrInvalidTransport},
		{"negative delay", StaticURL("ws://x"), []Option{WithMinReconnectionDelay(-time.Second)}, "MinReconnectionDelay", ErrInvalidOptions},
		{"zero connection timeout", StaticURL("ws://x"), []Option{WithConnectionTimeout(0)}, "ConnectionTimeout", ErrInvalidOptions},
		{"shrinking backoff", StaticURL("ws://x"), []Option{WithReconnectionDelayGrowFactor(0.5)}, "ReconnectionDelayGrowFactor", ErrInvalidOptions},
		{"max retries", StaticURL("ws://x"), []Option{WithMaxRetries(-2)}, "MaxRetries", ErrInvalidOptions},
		{"queue capacity", StaticURL("ws://x"), []Option{WithMaxEnqueuedMessages(-5)}, "MaxEnqueuedMessages", ErrInvalidOptions},
		{
			"heartbeat without interval", StaticURL("ws://x"),
			[]Option{WithDialer(d), WithControlPing(true), WithHeartbeatInterval(0)},
			"HeartbeatInterval", ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.url, nil, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.err)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()

	assert.GreaterOrEqual(t, o.MinReconnectionDelay, DefaultMinReconnectionDelay)
	assert.Less(t, o.MinReconnectionDelay, DefaultMinReconnectionDelay+DefaultReconnectionJitter)
	assert.Equal(t, DefaultMaxReconnectionDelay, o.MaxReconnectionDelay)
	assert.InDelta(t, 1.3, o.ReconnectionDelayGrowFactor, 1e-9)
	assert.Equal(t, Unbounded, o.MaxRetries)
	assert.Equal(t, Unbounded, o.MaxEnqueuedMessages)
	assert.True(t, o.ReconnectOnVisibility)
	assert.Equal(t, 5*time.Minute, o.PageHiddenCloseTime)
	assert.NotNil(t, o.Dialer)
	assert.NoError(t, o.Validate())
}
