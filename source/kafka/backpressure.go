package kafka

import (
	"context"
	"sync"
)

// Window bounds the number of frames handed downstream but not yet acked.
type Window struct {
	capacity int

	mu       sync.Mutex
	inflight int
	wake     chan struct{}
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{capacity: capacity, wake: make(chan struct{})}
}

// Acquire blocks until a slot is free or ctx is done.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.inflight < w.capacity {
			w.inflight++
			w.mu.Unlock()
			return nil
		}
		wake := w.wake
		w.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Window) Release() {
	w.mu.Lock()
	if w.inflight > 0 {
		w.inflight--
	}
	w.broadcastLocked()
	w.mu.Unlock()
}

// Reset forgets every outstanding slot, e.g. after a rebalance dropped the
// frames they belonged to.
func (w *Window) Reset() {
	w.mu.Lock()
	w.inflight = 0
	w.broadcastLocked()
	w.mu.Unlock()
}

func (w *Window) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight
}

func (w *Window) broadcastLocked() {
	close(w.wake)
	w.wake = make(chan struct{})
}
