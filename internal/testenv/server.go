package testenv

import (
	"fmt"
	"os"

	"github.com/livews/livews.go/internal/fakews"
	"github.com/livews/livews.go/pkg/transport"
	"github.com/livews/livews.go/pkg/transport/gorillaws"
	"github.com/livews/livews.go/pkg/transport/gws"
	"github.com/livews/livews.go/pkg/transport/nhooyr"
)

const (
	// EnvTransport selects the transport used by Dialer: "gws", "nhooyr",
	// or anything else for gorillaws.
	EnvTransport = "LIVEWS_TEST_TRANSPORT"

	// EnvServerAddr makes StartServer listen on a fixed address instead of
	// a random local port.
	EnvServerAddr = "LIVEWS_TEST_SERVER_ADDR"

	defaultServerAddr = "127.0.0.1:0"
)

var (
	transportImpl = os.Getenv(EnvTransport)
	serverAddr    = os.Getenv(EnvServerAddr)
)

// Dialer returns the transport selected by LIVEWS_TEST_TRANSPORT.
func Dialer() transport.Dialer {
	switch transportImpl {
	case "gws":
		return gws.NewDialer()
	case "nhooyr":
		return nhooyr.NewDialer()
	default:
		return gorillaws.NewDialer()
	}
}

// StartServer starts an echo server accepting the given sub-protocols.
func StartServer(protocols ...string) (*fakews.Server, error) {
	addr := serverAddr
	if addr == "" {
		addr = defaultServerAddr
	}

	server := fakews.NewServer(addr, protocols...)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start echo server on %s: %w", addr, err)
	}
	return server, nil
}

func MustStartServer(protocols ...string) *fakews.Server {
	server, err := StartServer(protocols...)
	if err != nil {
		panic(err)
	}
	return server
}
