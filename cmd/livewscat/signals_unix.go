//go:build !windows

package main

import (
	"syscall"

	"github.com/livews/livews.go/pkg/lifecycle"
)

func notifyLifecycle() (lifecycle.Signal, func()) {
	s := lifecycle.NotifyOS(syscall.SIGUSR1, syscall.SIGUSR2)
	return s, s.Stop
}
