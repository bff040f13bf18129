package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/livews/livews.go"
	"github.com/livews/livews.go/pkg/lifecycle"
	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/metrics"
	"github.com/livews/livews.go/pkg/transport"
	"github.com/livews/livews.go/pkg/transport/gorillaws"
	gwstransport "github.com/livews/livews.go/pkg/transport/gws"
	"github.com/livews/livews.go/pkg/transport/nhooyr"
)

const (
	drainTimeout     = 5 * time.Second
	replyIdleTimeout = 500 * time.Millisecond
	closeTimeout     = 2 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func (c *Config) dialer(log logger.Logger) transport.Dialer {
	switch c.Transport {
	case TransportGWS:
		return gwstransport.NewDialer(gwstransport.WithLogger(log))
	case TransportNhooyr:
		return nhooyr.NewDialer(nhooyr.WithLogger(log))
	default:
		return gorillaws.NewDialer(gorillaws.WithLogger(log))
	}
}

// options turns the configuration into socket options.
func (c *Config) options(log logger.Logger, observer livews.Observer, signal lifecycle.Signal) []livews.Option {
	opts := []livews.Option{
		livews.WithMinReconnectionDelay(c.Reconnect.MinDelay),
		livews.WithMaxReconnectionDelay(c.Reconnect.MaxDelay),
		livews.WithReconnectionDelayGrowFactor(c.Reconnect.GrowFactor),
		livews.WithMinUptime(c.Reconnect.MinUptime),
		livews.WithConnectionTimeout(c.Reconnect.ConnectionTimeout),
		livews.WithMaxRetries(c.Reconnect.MaxRetries),
		livews.WithMaxEnqueuedMessages(c.Queue.MaxMessages),
		livews.WithHeartbeatInterval(c.Heartbeat.Interval),
		livews.WithPongTimeoutInterval(c.Heartbeat.PongTimeout),
		livews.WithControlPing(c.Heartbeat.ControlPing),
		livews.WithPageHiddenCloseTime(c.Lifecycle.HiddenCloseAge),
		livews.WithDialer(c.dialer(log)),
		livews.WithLogger(log),
	}
	if observer != nil {
		opts = append(opts, livews.WithObserver(observer))
	}
	if signal != nil {
		opts = append(opts, livews.WithSignal(signal))
	}
	if msg := c.Heartbeat.Message; msg != "" {
		opts = append(opts, livews.WithHooks(livews.Hooks{
			OnBeforePing: func(s *livews.Socket) {
				s.SendText(msg)
			},
			OnMessage: func(e *livews.MessageEvent) {
				e.Target.HeartbeatHealth()
			},
		}))
	}
	return opts
}

// run connects to cfg.URL, sends every line read from in as a text message
// and writes every message received to out, until in is exhausted or ctx is
// cancelled.
func run(ctx context.Context, cfg *Config, in io.Reader, out io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logData, err := logger.NewBuild().FromPath(cfg.Log.File).Level(level).Make()
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer logData.Close()

	var observer livews.Observer
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector, err := metrics.New(reg, "livewscat")
		if err != nil {
			return err
		}
		observer = collector

		server := metrics.NewServer(cfg.Metrics.Addr, reg, logData)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				logData.Warn("Failed to stop metrics server", "error", err)
			}
		}()
	}

	var signal lifecycle.Signal
	if cfg.Lifecycle.Signals {
		sig, stop := notifyLifecycle()
		defer stop()
		signal = sig
	}

	socket, err := livews.New(livews.StaticURL(cfg.URL), cfg.Protocols, cfg.options(logData, observer, signal)...)
	if err != nil {
		return err
	}
	// Registered after the log, so the socket stops logging before the log
	// file is closed.
	defer dispose(socket, logData)

	closed := make(chan struct{}, 1)
	received := make(chan struct{}, 1)
	socket.AddEventListener(livews.EventMessage, livews.ListenerFunc(func(e livews.Event) {
		fmt.Fprintln(out, e.(*livews.MessageEvent).Data.String())
		select {
		case received <- struct{}{}:
		default:
		}
	}))
	socket.AddEventListener(livews.EventOpen, livews.ListenerFunc(func(livews.Event) {
		logData.Info("Connected", "url", socket.URL(), "protocol", socket.Protocol())
	}))
	socket.AddEventListener(livews.EventError, livews.ListenerFunc(func(e livews.Event) {
		logData.Warn("Connection error", "error", e.(*livews.ErrorEvent).Err)
	}))
	socket.AddEventListener(livews.EventClose, livews.ListenerFunc(func(e livews.Event) {
		ce := e.(*livews.CloseEvent)
		logData.Info("Disconnected", "code", ce.Code, "reason", ce.Reason, "retry", socket.RetryCount())
		select {
		case closed <- struct{}{}:
		default:
		}
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pump(gctx, in, socket)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logData.Info("Shutting down", "cause", context.Cause(ctx))
		}
		return nil
	})
	err = g.Wait()
	if errors.Is(err, io.EOF) {
		drain(ctx, socket)
		awaitReplies(ctx, received, replyIdleTimeout)
		err = nil
	}

	select {
	case <-closed:
	default:
	}
	socket.Close(livews.CloseNormal, "")
	select {
	case <-closed:
	case <-time.After(closeTimeout):
	}
	return err
}

// pump sends the lines of in until ctx is done. It returns io.EOF once in
// is exhausted.
func pump(ctx context.Context, in io.Reader, socket *livews.Socket) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return io.EOF
			}
			if err := socket.SendText(line); err != nil {
				return err
			}
		}
	}
}

// drain waits for the socket to be open with nothing left to send, bounded
// by drainTimeout.
func drain(ctx context.Context, socket *livews.Socket) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for socket.ReadyState() != livews.Open || socket.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// awaitReplies returns once no message has been received for idle, bounded
// by drainTimeout.
func awaitReplies(ctx context.Context, received <-chan struct{}, idle time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-received:
			timer.Reset(idle)
		}
	}
}

// dispose releases the socket and waits, bounded by closeTimeout, for its
// event loop to exit.
func dispose(socket *livews.Socket, log logger.Logger) {
	socket.Dispose()
	select {
	case <-socket.Done():
	case <-time.After(closeTimeout):
		log.Warn("Socket did not stop in time", "timeout", closeTimeout)
	}
}
