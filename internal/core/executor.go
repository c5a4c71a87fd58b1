package core

import (
	"fmt"
	"sync"
)

// Executor linearizes all core-state mutations onto a single goroutine. The
// messaging loop submits one unit of work per decoded request; because only
// this goroutine touches dispatched state, handlers need no locking beyond
// what their own substructures require.
type Executor struct {
	jobs chan func()
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewExecutor creates an executor with a buffered queue and starts its
// worker goroutine.
func NewExecutor(buffer int) *Executor {
	e := &Executor{
		jobs: make(chan func(), buffer),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for fn := range e.jobs {
		fn()
	}
}

// Submit queues fn for serialized execution. Blocks when the queue is full,
// which back-pressures the receive loop rather than dropping work.
//
// The send happens under the mutex so a concurrent Stop cannot close the
// channel out from under an in-flight Submit. The worker drains the queue
// without the lock, so a blocked Submit cannot deadlock against it.
func (e *Executor) Submit(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("executor is stopped")
	}
	e.jobs <- fn
	return nil
}

// Stop drains the queue and waits for the worker to exit. Submissions after
// Stop fail. Safe to call concurrently with Submit and with itself.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	<-e.done
}
