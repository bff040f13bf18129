// Package heartbeat checks a connection for liveness.
//
// Every interval the monitor sends a ping and arms a pong deadline. An
// acknowledgement before the deadline clears it; otherwise the timeout
// callback runs. All methods must be called from tasks on the monitor's loop.
package heartbeat

import (
	"time"

	"github.com/livews/livews.go/internal/eventloop"
)

type Config struct {
	// Interval between pings.
	Interval time.Duration

	// PongTimeout is how long to wait for an acknowledgement after a ping.
	PongTimeout time.Duration

	// Ping is invoked on every tick. A nil Ping disables the monitor.
	Ping func()

	// OnTimeout is invoked when a pong deadline passes unacknowledged.
	OnTimeout func()
}

type Monitor struct {
	loop *eventloop.Loop
	cfg  Config

	interval *eventloop.Timer
	deadline *eventloop.Timer
}

func New(loop *eventloop.Loop, cfg Config) *Monitor {
	return &Monitor{loop: loop, cfg: cfg}
}

// Enabled reports whether a ping callback is configured.
func (m *Monitor) Enabled() bool {
	return m.cfg.Ping != nil
}

// Start begins pinging. Starting a running monitor restarts its interval.
func (m *Monitor) Start() {
	if !m.Enabled() {
		return
	}
	m.Stop()
	m.interval = m.loop.Every(m.cfg.Interval, m.tick)
}

// Ack records a pong, cancelling the pending deadline.
func (m *Monitor) Ack() {
	m.deadline.Stop()
	m.deadline = nil
}

// Stop cancels both the interval and any pending deadline.
func (m *Monitor) Stop() {
	m.interval.Stop()
	m.interval = nil
	m.Ack()
}

// Running reports whether the ping interval is armed.
func (m *Monitor) Running() bool {
	return m.interval.Active()
}

// Waiting reports whether a pong deadline is armed.
func (m *Monitor) Waiting() bool {
	return m.deadline.Active()
}

func (m *Monitor) tick() {
	m.cfg.Ping()

	m.deadline.Stop()
	m.deadline = m.loop.AfterFunc(m.cfg.PongTimeout, m.expire)
}

func (m *Monitor) expire() {
	m.deadline = nil
	m.Stop()
	if m.cfg.OnTimeout != nil {
		m.cfg.OnTimeout()
	}
}
