package livews

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/livews/livews.go/pkg/transport"
)

// Everything in this file runs on the socket's event loop.

// attachment ties one transport handle to the socket. Once detached, events
// still arriving from the handle are dropped.
type attachment struct {
	s        *Socket
	id       uuid.UUID
	conn     transport.Conn
	opened   bool
	detached bool
}

var (
	_ transport.Handler     = (*attachment)(nil)
	_ transport.PongHandler = (*attachment)(nil)
)

func (a *attachment) post(fn func()) {
	a.s.loop.Post(func() {
		if a.detached {
			return
		}
		fn()
	})
}

func (a *attachment) OnOpen() {
	a.post(func() { a.s.handleOpen(a) })
}

func (a *attachment) OnMessage(msg transport.Message) {
	a.post(func() { a.s.handleMessage(a, msg) })
}

func (a *attachment) OnError(err error) {
	a.post(func() {
		a.s.log.Debug("livews.Socket transport error", "conn_id", a.id, "error", err)
		a.s.handleError(newErrorEvent(a.s, err))
	})
}

func (a *attachment) OnClose(code int, reason string) {
	a.post(func() {
		a.s.log.Debug("livews.Socket transport closed", "conn_id", a.id, "code", code, "reason", reason)
		a.s.detach()
		a.s.handleClose(&CloseEvent{Target: a.s, Code: code, Reason: reason, WasClean: true})
	})
}

func (a *attachment) OnPong() {
	if !a.s.opts.ControlPing {
		return
	}
	a.post(a.s.heartbeat.Ack)
}

// connect starts a connection attempt unless one is in flight, reconnection
// is disabled, the application is hidden or the retries are exhausted.
func (s *Socket) connect(initial bool) {
	s.log.Debug("livews.Socket connect call", "lock", s.connectLock, "should_reconnect", s.shouldReconnect)
	if s.connectLock || !s.shouldReconnect {
		return
	}
	if s.opts.Signal != nil && s.opts.Signal.Hidden() {
		s.log.Debug("livews.Socket connect skipped while hidden")
		return
	}

	retry := s.retry.Load()
	if s.opts.MaxRetries != Unbounded && retry >= int64(s.opts.MaxRetries) {
		s.log.Debug("livews.Socket max retries reached", "retry", retry, "max_retries", s.opts.MaxRetries)
		return
	}
	s.connectLock = true
	retry = s.retry.Add(1)
	s.detach()

	s.attempt++
	attempt := s.attempt
	delay := s.backoff.Delay(int(retry))
	s.log.Debug("livews.Socket connect", "retry", retry, "delay", delay)
	s.observer.ConnectAttempt(int(retry), delay)

	go func() {
		url, err := s.resolve(delay)
		s.loop.Post(func() {
			s.dial(attempt, initial, url, err)
		})
	}()
}

// resolve waits out the backoff delay and resolves the URL. It runs off the
// loop; these are the only points where other tasks interleave with an
// attempt.
func (s *Socket) resolve(delay time.Duration) (string, error) {
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			return "", s.ctx.Err()
		}
	}
	return s.url.ResolveURL(s.ctx)
}

func (s *Socket) dial(attempt uint64, initial bool, url string, err error) {
	// Close may have been called while waiting.
	if s.closeCalled || attempt != s.attempt {
		s.log.Debug("livews.Socket connect attempt abandoned", "attempt", attempt)
		return
	}
	if err != nil {
		s.failAttempt(fmt.Errorf("%w: %w", ErrInvalidURL, err))
		return
	}

	a := &attachment{s: s, id: uuid.Must(uuid.NewV4())}
	s.log.Debug("livews.Socket dial", "conn_id", a.id, "url", url, "protocols", s.protocols)

	conn, err := s.opts.Dialer.Dial(url, s.protocols, a)
	if err != nil {
		s.failAttempt(err)
		return
	}
	a.conn = conn
	s.current = a
	s.setTransport(conn)
	s.connectLock = false

	if !initial {
		s.observer.Reconnected()
		if s.opts.Hooks.OnReconnect != nil {
			s.opts.Hooks.OnReconnect(s)
		}
	}

	s.connectTimeout = s.loop.AfterFunc(s.opts.ConnectionTimeout, s.handleTimeout)
}

// failAttempt reports an attempt that never produced a transport.
func (s *Socket) failAttempt(err error) {
	s.log.Debug("livews.Socket connect attempt failed", "error", err)
	s.connectLock = false
	s.emitError(newErrorEvent(s, err))
	s.connect(false)
}

func (s *Socket) handleTimeout() {
	s.log.Debug("livews.Socket connect timeout")
	s.handleError(&ErrorEvent{
		Target:  s,
		Message: timeoutMessage,
		Err:     fmt.Errorf("%w after %s", ErrConnectTimeout, s.opts.ConnectionTimeout),
	})
}

func (s *Socket) handleOpen(a *attachment) {
	s.log.Debug("livews.Socket open", "conn_id", a.id, "protocol", a.conn.Protocol())
	a.opened = true

	s.connectTimeout.Stop()
	s.uptimeTimeout = s.loop.AfterFunc(s.opts.MinUptime, s.acceptOpen)
	s.observer.Opened()

	if n := s.queue.Len(); n > 0 {
		s.log.Debug("livews.Socket send enqueued messages", "conn_id", a.id, "count", n)
		for _, err := range s.queue.Flush(a.conn.Send) {
			s.log.Warn("livews.Socket failed to send enqueued message", "conn_id", a.id, "error", err)
		}
		s.observer.QueueFlushed(n)
	}

	s.heartbeat.Start()

	e := &OpenEvent{Target: s}
	if s.opts.Hooks.OnOpen != nil {
		s.opts.Hooks.OnOpen(e)
	}
	s.listeners.Dispatch(e)
}

func (s *Socket) acceptOpen() {
	s.log.Debug("livews.Socket accept open")
	s.retry.Store(0)
}

func (s *Socket) handleMessage(a *attachment, msg transport.Message) {
	e := &MessageEvent{Target: s, Data: msg}
	if s.opts.Hooks.OnMessage != nil {
		s.opts.Hooks.OnMessage(e)
	}

	s.checkPageHidden()

	s.listeners.Dispatch(e)
}

func (s *Socket) handleError(e *ErrorEvent) {
	s.connectLock = false

	reason := ""
	if e.timedOut() {
		reason = "timeout"
	}
	s.disconnect(CloseNormal, reason)

	s.emitError(e)
	s.connect(false)
}

func (s *Socket) emitError(e *ErrorEvent) {
	s.observer.Failed(e.Err)
	if s.opts.Hooks.OnError != nil {
		s.opts.Hooks.OnError(e)
	}
	s.listeners.Dispatch(e)
}

func (s *Socket) handleClose(e *CloseEvent) {
	s.clearTimers()
	s.connectLock = false
	s.observer.Closed(e.Code)

	if s.shouldReconnect {
		s.connect(false)
	}

	if s.opts.Hooks.OnClose != nil {
		s.opts.Hooks.OnClose(e)
	}
	s.listeners.Dispatch(e)
}

// disconnect drops the current transport and reports it closed without
// waiting for the closing handshake.
func (s *Socket) disconnect(code int, reason string) {
	s.clearTimers()
	if !s.live() {
		return
	}

	a := s.current
	s.detach()
	if err := a.conn.Close(code, reason); err != nil {
		s.log.Debug("livews.Socket ignoring close error", "conn_id", a.id, "error", err)
	}
	s.handleClose(&CloseEvent{Target: s, Code: code, Reason: reason, WasClean: true})
}

// finish closes the current transport and disables reconnection. The
// transport's own close event is still delivered.
func (s *Socket) finish(code int, reason string) {
	s.closeCalled = true
	s.shouldReconnect = false
	s.connectLock = false
	s.clearTimers()

	if s.current == nil {
		s.log.Debug("livews.Socket close enqueued: no transport")
		return
	}
	if s.current.conn.ReadyState() == Closed {
		s.log.Debug("livews.Socket close: already closed", "conn_id", s.current.id)
		return
	}
	if err := s.current.conn.Close(code, reason); err != nil {
		s.log.Debug("livews.Socket close failed", "conn_id", s.current.id, "error", err)
	}
}

func (s *Socket) reconnect(code int, reason string) {
	s.shouldReconnect = true
	s.closeCalled = false
	s.retry.Store(-1)
	s.subscribeSignal()

	// A transport that already reported closed is detached. Anything still
	// live gets a close event now, even if its own is still queued.
	if !s.live() {
		s.connect(false)
		return
	}
	s.disconnect(code, reason)
	s.connect(false)
}

func (s *Socket) send(msg transport.Message) {
	if a := s.current; s.live() && a.opened && a.conn.ReadyState() == Open {
		s.log.Debug("livews.Socket send", "conn_id", a.id, "type", msg.Type, "size", msg.Size())
		if err := a.conn.Send(msg); err != nil {
			s.log.Warn("livews.Socket send failed", "conn_id", a.id, "error", err)
			return
		}
		s.observer.MessageSent(msg.Size())
		return
	}

	if !s.queue.Enqueue(msg) {
		s.log.Debug("livews.Socket queue full, dropping message", "size", msg.Size())
		s.observer.MessageDropped(msg.Size())
		return
	}
	s.log.Debug("livews.Socket enqueue", "type", msg.Type, "size", msg.Size())
	s.observer.MessageQueued(msg.Size(), s.queue.Len())
}

// live reports whether a transport is attached.
func (s *Socket) live() bool {
	return s.current != nil && !s.current.detached
}

func (s *Socket) detach() {
	if s.current == nil || s.current.detached {
		return
	}
	s.log.Debug("livews.Socket detach", "conn_id", s.current.id)
	s.current.detached = true
}

func (s *Socket) clearTimers() {
	s.connectTimeout.Stop()
	s.uptimeTimeout.Stop()
	s.heartbeat.Stop()
}

func (s *Socket) pingFunc() func() {
	if !s.opts.heartbeatEnabled() {
		return nil
	}
	return func() {
		s.log.Debug("livews.Socket ping")
		if s.opts.Hooks.OnBeforePing != nil {
			s.opts.Hooks.OnBeforePing(s)
		}
		if !s.opts.ControlPing || s.current == nil {
			return
		}
		if p, ok := s.current.conn.(transport.Pinger); ok {
			if err := p.Ping(nil); err != nil {
				s.log.Debug("livews.Socket ping failed", "conn_id", s.current.id, "error", err)
			}
		}
	}
}

func (s *Socket) handlePongTimeout() {
	s.log.Debug("livews.Socket pong timeout")
	s.observer.PongTimeout()
	s.finish(ClosePongTimeout, "pong timeout")
	s.reconnect(ClosePongTimeout, "pong timeout")
}

func (s *Socket) subscribeSignal() {
	if s.opts.Signal == nil || !s.opts.ReconnectOnVisibility {
		return
	}
	s.unsubscribeSignal()
	s.unsubscribe = s.opts.Signal.Subscribe(func(hidden bool) {
		s.loop.Post(func() { s.handleVisibility(hidden) })
	})
}

func (s *Socket) unsubscribeSignal() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Socket) handleVisibility(hidden bool) {
	s.log.Debug("livews.Socket visibility change", "hidden", hidden)
	if hidden {
		s.hiddenSince = time.Now()
		return
	}
	s.hiddenSince = time.Time{}

	if !s.live() || s.current.conn.ReadyState() == Closed {
		s.retry.Store(0)
		s.reconnect(CloseNormal, "")
	}
}

func (s *Socket) checkPageHidden() {
	if !s.opts.ReconnectOnVisibility || s.hiddenSince.IsZero() || s.opts.PageHiddenCloseTime == 0 {
		return
	}
	if time.Since(s.hiddenSince) > s.opts.PageHiddenCloseTime {
		s.log.Debug("livews.Socket page hidden close")
		s.finish(ClosePageHidden, "page hidden")
	}
}
