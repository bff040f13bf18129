//go:build windows

package main

import (
	"github.com/livews/livews.go/pkg/lifecycle"
)

// Windows has no user signals; the client is always visible.
func notifyLifecycle() (lifecycle.Signal, func()) {
	return lifecycle.NewManual(false), func() {}
}
