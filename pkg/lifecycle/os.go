package lifecycle

import (
	"os"
	"os/signal"
	"sync"
)

// OSSignal maps two operating system signals onto visibility changes, so an
// external supervisor can background and foreground a long running client,
// e.g. `kill -USR1 <pid>` to hide and `kill -USR2 <pid>` to show.
type OSSignal struct {
	Manual

	ch       chan os.Signal
	stopOnce sync.Once
	done     chan struct{}
}

// NotifyOS starts listening for hide and show. Call Stop to release the
// signal handlers.
func NotifyOS(hide, show os.Signal) *OSSignal {
	s := &OSSignal{
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(s.ch, hide, show)

	go func() {
		for {
			select {
			case sig := <-s.ch:
				s.Set(sig == hide)
			case <-s.done:
				return
			}
		}
	}()

	return s
}

func (s *OSSignal) Stop() {
	s.stopOnce.Do(func() {
		signal.Stop(s.ch)
		close(s.done)
	})
}
