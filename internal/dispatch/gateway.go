package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Thunk is a marshaled callback. Its error is propagated to the original
// caller through the completion handle, never swallowed.
type Thunk func() error

// Pending is the deferred completion of an EnqueueInvoke call.
type Pending struct {
	done chan struct{}
	err  error
}

// Done is closed once the callback has run (or failed to be posted).
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the callback's outcome. Valid only after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the callback has run or ctx is cancelled.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Gateway marshals callbacks onto an affinity loop. When the caller is
// already on the loop the callback runs synchronously in place; otherwise
// it is posted at the requested priority.
type Gateway struct {
	loop Loop
	log  *logrus.Logger

	owned *AffinityLoop // set when the gateway started its own worker loop
}

// New creates a gateway bound to the host's loop.
func New(loop Loop, log *logrus.Logger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{loop: loop, log: log}
}

// NewHeadless creates a gateway for hosts with no UI-affine context. Work
// is offloaded to a private worker loop instead of being dropped; calls
// still complete asynchronously. Close releases the worker.
func NewHeadless(log *logrus.Logger) *Gateway {
	loop := NewAffinityLoop()
	loop.Start()
	g := New(loop, log)
	g.owned = loop
	return g
}

// Close shuts down the private worker loop, if the gateway owns one.
func (g *Gateway) Close() {
	if g.owned != nil {
		g.owned.Close()
	}
}

// Invoke runs fn on the affinity loop and blocks until it completes,
// returning its error. If the caller is already on the loop, fn runs in
// place with no marshaling.
//
// A blocked Invoke can hang for as long as the loop takes to service its
// queue; callers that cannot afford that should use EnqueueInvoke and Wait
// with a context deadline.
func (g *Gateway) Invoke(p Priority, fn Thunk) error {
	if g.loop.Current() {
		return g.run(fn)
	}
	return g.EnqueueInvoke(p, fn).Wait(context.Background())
}

// EnqueueInvoke posts fn to the affinity loop and returns without waiting.
// The returned Pending resolves with fn's error once it has run. Callers on
// the loop goroutine get deferred execution too: the callback is queued,
// not run in place, so it cannot re-enter the caller.
func (g *Gateway) EnqueueInvoke(p Priority, fn Thunk) *Pending {
	pending := &Pending{done: make(chan struct{})}
	err := g.loop.Post(p, func() {
		pending.finish(g.run(fn))
	})
	if err != nil {
		g.log.WithField("priority", p).Warnf("dispatch: post failed: %v", err)
		pending.finish(err)
	}
	return pending
}

// run executes fn, converting a panic into an error so it reaches the
// caller instead of killing the loop goroutine.
func (g *Gateway) run(fn Thunk) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorf("dispatch: callback panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("dispatch: callback panicked: %v", r)
		}
	}()
	return fn()
}
