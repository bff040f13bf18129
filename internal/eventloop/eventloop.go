// Package eventloop runs tasks one at a time on a dedicated goroutine.
//
// Everything that mutates a livews.Socket runs as a task on its loop, which
// gives the socket the single-threaded execution model of a browser event
// loop without locks around its state. Timers created through the loop
// deliver their callbacks as tasks, and a timer stopped from a task is
// guaranteed never to run its callback afterwards.
package eventloop

import (
	"sync"
	"time"
)

type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// New creates a loop and starts its goroutine.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post schedules fn to run after every task posted before it.
// It never blocks. It returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	l.signal()
	return true
}

// Do posts fn and waits until it has run.
// It must not be called from a task, and returns false if the loop is stopped.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Stop rejects further tasks. Tasks already posted still run, after which the
// goroutine exits and Done is closed. Stop does not wait.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.signal()
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			stopped := l.stopped
			l.mu.Unlock()
			if stopped {
				return
			}
			<-l.wake
			continue
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		fn()
	}
}

// Timer is a one-shot or repeating timer owned by a loop.
//
// Timers must be created and stopped from tasks running on their loop.
// A nil *Timer is valid and stopping it does nothing.
type Timer struct {
	t       *time.Timer
	stopped bool
}

// AfterFunc runs fn as a task once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if tm.stopped {
				return
			}
			tm.stopped = true
			fn()
		})
	})
	return tm
}

// Every runs fn as a task each time d elapses, until the timer is stopped.
// The next tick is armed before fn runs.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	tm := &Timer{}

	var arm func()
	arm = func() {
		tm.t = time.AfterFunc(d, func() {
			l.Post(func() {
				if tm.stopped {
					return
				}
				arm()
				fn()
			})
		})
	}
	arm()

	return tm
}

// Stop cancels the timer. It is safe to call more than once.
func (tm *Timer) Stop() {
	if tm == nil || tm.stopped {
		return
	}
	tm.stopped = true
	tm.t.Stop()
}

// Active reports whether the timer can still fire.
func (tm *Timer) Active() bool {
	return tm != nil && !tm.stopped
}
