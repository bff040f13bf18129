package livews

import (
	"log/slog"
	"os"
	"time"

	"github.com/livews/livews.go/internal/queue"
	"github.com/livews/livews.go/internal/rand"
	"github.com/livews/livews.go/pkg/lifecycle"
	"github.com/livews/livews.go/pkg/logger"
	"github.com/livews/livews.go/pkg/transport"
	"github.com/livews/livews.go/pkg/transport/gorillaws"
)

// Unbounded disables the MaxRetries and MaxEnqueuedMessages limits.
const Unbounded = queue.Unbounded

const (
	DefaultMaxReconnectionDelay        = 10 * time.Second
	DefaultMinReconnectionDelay        = time.Second
	DefaultReconnectionJitter          = 4 * time.Second
	DefaultReconnectionDelayGrowFactor = 1.3
	DefaultMinUptime                   = 5 * time.Second
	DefaultConnectionTimeout           = 4 * time.Second
	DefaultPongTimeoutInterval         = 2 * time.Second
	DefaultHeartbeatInterval           = 10 * time.Second
	DefaultPageHiddenCloseTime         = 5 * time.Minute
)

type BinaryType string

const (
	BinaryTypeBlob        BinaryType = "blob"
	BinaryTypeArrayBuffer BinaryType = "arraybuffer"
)

// Hooks are single callbacks invoked before the registered listeners of the
// same event.
type Hooks struct {
	OnOpen    func(e *OpenEvent)
	OnMessage func(e *MessageEvent)
	OnError   func(e *ErrorEvent)
	OnClose   func(e *CloseEvent)

	// OnReconnect runs each time a transport is created after the first one.
	// It is the place to resend subscriptions.
	OnReconnect func(s *Socket)

	// OnBeforePing runs on every heartbeat tick, before the pong deadline is
	// armed. Send the application's ping message from here, and call
	// HeartbeatHealth when the peer answers. Setting it enables the heartbeat.
	OnBeforePing func(s *Socket)
}

type Options struct {
	// MaxReconnectionDelay caps the backoff delay.
	MaxReconnectionDelay time.Duration
	// MinReconnectionDelay is the delay before the first retry.
	MinReconnectionDelay time.Duration
	// ReconnectionDelayGrowFactor multiplies the delay on every further retry.
	ReconnectionDelayGrowFactor float64
	// MinUptime is how long a connection must stay open before the retry
	// count is reset.
	MinUptime time.Duration
	// ConnectionTimeout bounds the handshake of each attempt.
	ConnectionTimeout time.Duration
	// MaxRetries bounds connection attempts. Unbounded by default.
	MaxRetries int
	// MaxEnqueuedMessages bounds the outbound queue. Unbounded by default.
	MaxEnqueuedMessages int
	// StartClosed stops New from connecting. Call Reconnect to connect.
	StartClosed bool

	PongTimeoutInterval time.Duration
	HeartbeatInterval   time.Duration

	// ControlPing sends a protocol ping frame on every heartbeat tick, for
	// transports that support it, and treats pong frames as heartbeat
	// acknowledgements.
	ControlPing bool

	// ReconnectOnVisibility subscribes to Signal.
	ReconnectOnVisibility bool
	// PageHiddenCloseTime is how long the application may stay hidden before
	// the connection is closed on the next incoming message. Zero disables it.
	PageHiddenCloseTime time.Duration

	// Debug logs at debug level to stderr when Logger is nil.
	Debug bool

	Dialer   transport.Dialer
	Signal   lifecycle.Signal
	Logger   logger.Logger
	Observer Observer
	Hooks    Hooks
}

// DefaultOptions returns the defaults. MinReconnectionDelay carries a random
// jitter of up to DefaultReconnectionJitter, drawn once per call.
func DefaultOptions() Options {
	return Options{
		MaxReconnectionDelay:        DefaultMaxReconnectionDelay,
		MinReconnectionDelay:        DefaultMinReconnectionDelay + rand.Jitter(DefaultReconnectionJitter),
		ReconnectionDelayGrowFactor: DefaultReconnectionDelayGrowFactor,
		MinUptime:                   DefaultMinUptime,
		ConnectionTimeout:           DefaultConnectionTimeout,
		MaxRetries:                  Unbounded,
		MaxEnqueuedMessages:         Unbounded,
		PongTimeoutInterval:         DefaultPongTimeoutInterval,
		HeartbeatInterval:           DefaultHeartbeatInterval,
		ReconnectOnVisibility:       true,
		PageHiddenCloseTime:         DefaultPageHiddenCloseTime,
		Dialer:                      gorillaws.NewDialer(),
	}
}

// Validate checks the options for values no socket can run with.
func (o *Options) Validate() error {
	if o.Dialer == nil {
		return configError("Dialer", ErrInvalidTransport, "")
	}

	durations := []struct {
		name     string
		value    time.Duration
		positive bool
	}{
		{"MaxReconnectionDelay", o.MaxReconnectionDelay, false},
		{"MinReconnectionDelay", o.MinReconnectionDelay, false},
		{"MinUptime", o.MinUptime, false},
		{"ConnectionTimeout", o.ConnectionTimeout, true},
		{"PongTimeoutInterval", o.PongTimeoutInterval, o.heartbeatEnabled()},
		{"HeartbeatInterval", o.HeartbeatInterval, o.heartbeatEnabled()},
		{"PageHiddenCloseTime", o.PageHiddenCloseTime, false},
	}
	for _, d := range durations {
		if d.value < 0 || (d.positive && d.value == 0) {
			return configError(d.name, ErrInvalidOptions, "got %s", d.value)
		}
	}

	if o.ReconnectionDelayGrowFactor < 1 {
		return configError("ReconnectionDelayGrowFactor", ErrInvalidOptions, "must be at least 1, got %v", o.ReconnectionDelayGrowFactor)
	}
	if o.MaxRetries < Unbounded {
		return configError("MaxRetries", ErrInvalidOptions, "got %d", o.MaxRetries)
	}
	if o.MaxEnqueuedMessages < Unbounded {
		return configError("MaxEnqueuedMessages", ErrInvalidOptions, "got %d", o.MaxEnqueuedMessages)
	}

	return nil
}

func (o *Options) heartbeatEnabled() bool {
	return o.Hooks.OnBeforePing != nil || o.ControlPing
}

func (o *Options) logger() logger.Logger {
	switch {
	case o.Logger != nil:
		return o.Logger
	case o.Debug:
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return logger.Nop()
	}
}

func (o *Options) observer() Observer {
	if o.Observer == nil {
		return NopObserver{}
	}
	return o.Observer
}

type Option func(o *Options)

// WithOptions replaces every option at once.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		*o = opts
	}
}

func WithMaxReconnectionDelay(d time.Duration) Option {
	return func(o *Options) {
		o.MaxReconnectionDelay = d
	}
}

func WithMinReconnectionDelay(d time.Duration) Option {
	return func(o *Options) {
		o.MinReconnectionDelay = d
	}
}

func WithReconnectionDelayGrowFactor(f float64) Option {
	return func(o *Options) {
		o.ReconnectionDelayGrowFactor = f
	}
}

func WithMinUptime(d time.Duration) Option {
	return func(o *Options) {
		o.MinUptime = d
	}
}

func WithConnectionTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectionTimeout = d
	}
}

func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

func WithMaxEnqueuedMessages(n int) Option {
	return func(o *Options) {
		o.MaxEnqueuedMessages = n
	}
}

func WithStartClosed(startClosed bool) Option {
	return func(o *Options) {
		o.StartClosed = startClosed
	}
}

func WithPongTimeoutInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PongTimeoutInterval = d
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Options) {
		o.HeartbeatInterval = d
	}
}

func WithControlPing(enabled bool) Option {
	return func(o *Options) {
		o.ControlPing = enabled
	}
}

func WithReconnectOnVisibility(enabled bool) Option {
	return func(o *Options) {
		o.ReconnectOnVisibility = enabled
	}
}

func WithPageHiddenCloseTime(d time.Duration) Option {
	return func(o *Options) {
		o.PageHiddenCloseTime = d
	}
}

func WithDebug(debug bool) Option {
	return func(o *Options) {
		o.Debug = debug
	}
}

func WithDialer(d transport.Dialer) Option {
	return func(o *Options) {
		o.Dialer = d
	}
}

func WithSignal(s lifecycle.Signal) Option {
	return func(o *Options) {
		o.Signal = s
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

func WithHooks(h Hooks) Option {
	return func(o *Options) {
		o.Hooks = h
	}
}
