// Package evloop implements the single serializing work queue that drives
// the mesh package's components, matching spec §5 ("a serializing queue per
// radio") and the deferred-completion pattern in spec §9. The shape is
// grounded on the event-queue scheduling used by the OpenThread network
// simulator's dispatcher, which posts *event values for later processing
// rather than calling back synchronously.
package evloop

import "sync"

// Loop is a single-goroutine work queue. All mesh operations for one radio
// must run on the same Loop so that no two operations on one child's
// indirect state ever overlap (spec §5).
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
}

// New creates a Loop. Call Run in its own goroutine to start draining it.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine, including from within a callback already running on the loop
// (the original core's "sometimes called re-entrantly" case in spec §9).
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until Stop is called. It should be run in its own
// goroutine for the lifetime of the daemon.
func (l *Loop) Run() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if len(batch) > 0 {
			continue
		}

		select {
		case <-l.wake:
		case <-l.done:
			return
		}
	}
}

// Stop signals Run to return once the current batch has drained.
func (l *Loop) Stop() {
	close(l.done)
}
