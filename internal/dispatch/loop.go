// Package dispatch marshals callbacks from any goroutine onto a single
// designated affinity goroutine, with a fast path when the caller is
// already on it.
package dispatch

import (
	"errors"
	"sync"
)

// Priority orders posted callbacks. Higher priorities run first; within a
// priority, callbacks run in post order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Loop is the affinity scheduling primitive the gateway posts to: a
// priority-ordered post-and-run queue bound to exactly one goroutine.
// Concrete hosts adapt their own main loop to this interface; AffinityLoop
// is the in-repo implementation.
type Loop interface {
	// Post queues fn to run on the loop goroutine. It never blocks on fn.
	Post(p Priority, fn func()) error
	// Current reports whether the caller is already running on the loop
	// goroutine.
	Current() bool
}

// ErrLoopClosed is returned when posting to a loop that has shut down.
var ErrLoopClosed = errors.New("dispatch: loop closed")

// AffinityLoop runs posted callbacks one at a time on a single goroutine.
// Either hand Run to the goroutine that must own the callbacks (a UI main
// loop), or call Start to service the queue on a private worker goroutine
// for headless hosts.
type AffinityLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues [3][]func() // one FIFO lane per priority
	closed bool

	gid uint64 // goroutine identity of the running loop, 0 until Run
}

// NewAffinityLoop creates a loop. It accepts posts immediately; they run
// once Run or Start is called.
func NewAffinityLoop() *AffinityLoop {
	l := &AffinityLoop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post queues fn at the given priority.
func (l *AffinityLoop) Post(p Priority, fn func()) error {
	if p < PriorityLow || p > PriorityHigh {
		p = PriorityNormal
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLoopClosed
	}
	l.queues[p] = append(l.queues[p], fn)
	l.cond.Signal()
	return nil
}

// Current reports whether the caller runs on the loop goroutine.
func (l *AffinityLoop) Current() bool {
	l.mu.Lock()
	gid := l.gid
	l.mu.Unlock()
	return gid != 0 && gid == goid()
}

// Run services the queue on the calling goroutine until Close. The calling
// goroutine becomes the affinity context.
func (l *AffinityLoop) Run() {
	l.mu.Lock()
	l.gid = goid()
	l.mu.Unlock()

	for {
		l.mu.Lock()
		fn, ok := l.popLocked()
		for !ok && !l.closed {
			l.cond.Wait()
			fn, ok = l.popLocked()
		}
		if !ok && l.closed {
			l.gid = 0
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		fn()
	}
}

// popLocked takes the next callback, highest priority first. Callers must
// hold mu.
func (l *AffinityLoop) popLocked() (func(), bool) {
	for p := PriorityHigh; p >= PriorityLow; p-- {
		if q := l.queues[p]; len(q) > 0 {
			fn := q[0]
			l.queues[p] = q[1:]
			return fn, true
		}
	}
	return nil, false
}

// Start services the queue on a new private goroutine. Used by headless
// hosts with no UI main loop to hand over.
func (l *AffinityLoop) Start() {
	go l.Run()
}

// Close stops the loop after the already queued callbacks have run. Posts
// after Close fail with ErrLoopClosed.
func (l *AffinityLoop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
}
