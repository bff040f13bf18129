package transport

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrNotOpen is returned by Send on a connection that is not open.
	ErrNotOpen = errors.New("transport: connection is not open")

	// ErrClosed is returned by Close on a connection that already closed.
	ErrClosed = errors.New("transport: connection already closed")

	ErrUnsupportedScheme = errors.New("transport: unsupported URL scheme")
)

// CheckURL reports whether rawURL can be dialed as a WebSocket URL. Dialers
// call it before starting the handshake so that malformed URLs fail Dial
// synchronously.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("transport: parse %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("transport: missing host in %q", rawURL)
	}
	return nil
}
