package viewmodel

import (
	"context"
	"sync"
)

// Loop is the single logical thread a view model runs on. Tasks posted to
// it execute one at a time in FIFO order. Async results and timers come
// back into the view model only by posting to its Loop.
//
// A Loop is driven either by Run or by Drain, never both at once.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wakeup chan struct{}
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{wakeup: make(chan struct{}, 1)}
}

// Post queues fn for the next tick. It never blocks and is safe to call
// from any goroutine, including from a task running on the loop.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// Call posts fn and waits until it has run on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wakeup:
		}
	}
}

// Drain runs queued tasks, including any they post, until the queue is
// empty. It returns the number of tasks executed.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
