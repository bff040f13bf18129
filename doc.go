// Package livews implements a WebSocket client that stays connected.
//
// A [Socket] behaves like a browser WebSocket, with the same ready states,
// events and send semantics, but it transparently re-establishes the
// connection whenever it fails or is closed by the peer.
//
// # Reconnection
//
// Each connection attempt waits for a delay that grows exponentially from
// [Options.MinReconnectionDelay] to [Options.MaxReconnectionDelay]. The
// retry counter resets once a connection has stayed open for
// [Options.MinUptime]. Attempts that do not open within
// [Options.ConnectionTimeout] are abandoned. [Options.MaxRetries] bounds the
// number of attempts.
//
// The URL is resolved again before every attempt, so a [URLFunc] can hand
// out a fresh token or pick another endpoint each time.
//
// # Sending
//
// Messages sent while the socket is not open are queued, up to
// [Options.MaxEnqueuedMessages], and flushed in order as soon as the next
// connection opens. [Socket.BufferedAmount] reports the queued size plus
// whatever the transport has not written yet.
//
// # Heartbeat
//
// With [Options.HeartbeatInterval] set, the socket expects proof of life
// from the peer every interval. Either the transport answers protocol-level
// pings ([Options.ControlPing]) or the application calls
// [Socket.HeartbeatHealth] when it sees an application-level pong, typically
// from [Hooks.OnMessage] after sending a ping from [Hooks.OnBeforePing].
// Without it, the connection is closed with [ClosePongTimeout] and
// re-established.
//
// # Lifecycle
//
// A [lifecycle.Signal] tells the socket when the application is hidden. A
// socket hidden for longer than [Options.PageHiddenCloseTime] closes its
// connection with [ClosePageHidden] and reconnects once the application is
// visible again.
//
// # Transports
//
// The WebSocket implementation is pluggable through [transport.Dialer]. The
// default is [github.com/livews/livews.go/pkg/transport/gorillaws]; the
// [github.com/livews/livews.go/pkg/transport/gws] and
// [github.com/livews/livews.go/pkg/transport/nhooyr] packages provide
// alternatives.
package livews
