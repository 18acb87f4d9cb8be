package engine

import (
	"sync"

	"github.com/eapache/queue"
)

// Lane is a FIFO of tasks that may run on any Executor worker but never
// concurrently with each other on this Lane. One Lane is created per TCP
// Handler, per TCP Session, per ScheduledItem, and one cleanup Lane per
// Pool — every piece of mutable state the engine touches is owned by
// exactly one Lane, so callbacks that mutate it never need their own lock.
//
// The queue itself is github.com/eapache/queue's ring-buffer-backed Queue.
type Lane struct {
	exec *Executor

	mu          sync.Mutex
	pending     *queue.Queue
	dispatching bool
}

// NewLane creates a Lane bound to exec. A Lane does not pin a goroutine or
// worker — it only borrows one from exec for as long as it has pending work.
func NewLane(exec *Executor) *Lane {
	return &Lane{exec: exec, pending: queue.New()}
}

// Post appends fn to the Lane's FIFO. If the Lane is not currently being
// drained, Post submits a drain runner to the Executor; otherwise the
// already-running drain runner will pick fn up in order.
func (l *Lane) Post(fn func()) {
	l.mu.Lock()
	l.pending.Add(fn)
	start := !l.dispatching
	if start {
		l.dispatching = true
	}
	l.mu.Unlock()

	if start {
		_ = l.exec.Submit(l.drain)
	}
}

// drain runs queued tasks one at a time until the Lane is empty, then
// clears the dispatching flag — giving serial, FIFO, thread-unaffine
// execution without ever pinning a goroutine to this Lane.
func (l *Lane) drain() {
	for {
		l.mu.Lock()
		if l.pending.Length() == 0 {
			l.dispatching = false
			l.mu.Unlock()
			return
		}
		fn := l.pending.Remove().(func())
		l.mu.Unlock()

		runHostTask(fn)
	}
}

// PostAndWait posts fn and blocks until the Lane has actually run it,
// giving the caller a linearisable "post a read onto the lane and await
// the result" observation of state otherwise only touched on the Lane.
// The caller must not be running on this same Lane, or this deadlocks.
func (l *Lane) PostAndWait(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	<-done
}

// runHostTask executes fn with a recover guard: a panicking host callback
// is a fatal fault, handled by terminate() rather than silently swallowed
// or left to crash an arbitrary worker goroutine mid-task.
func runHostTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			terminate(r)
		}
	}()
	fn()
}
