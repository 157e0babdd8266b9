// Package engine is the synchronization and command-dispatch core of the
// playback engine: it serializes transport commands against the shared
// clock and engine state, drives the renderer set, and publishes state
// changes on the notification bus.
package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/reel/internal/bus"
	"github.com/llehouerou/reel/internal/clock"
	"github.com/llehouerou/reel/internal/dispatch"
	"github.com/llehouerou/reel/internal/media"
	"github.com/llehouerou/reel/internal/render"
)

// Options configures an Engine. Zero values get sensible defaults.
type Options struct {
	// TickInterval is the render driver's poll period.
	TickInterval time.Duration
	// Bus receives the engine's property-change notifications. A private
	// bus is created when nil.
	Bus *bus.Bus
	// Gateway marshals UI subscriptions. A headless gateway (private worker
	// loop) is created when nil.
	Gateway *dispatch.Gateway
	Logger  *logrus.Logger
}

// Engine ties the transport core together and is the API surface callers
// enqueue commands through. All command methods return immediately with a
// Completion; the manager worker applies commands one at a time.
type Engine struct {
	clock     *clock.Clock
	renderers *render.Set
	props     *Props
	driver    *render.Driver
	mgr       *Manager
	bus       *bus.Bus
	gateway   *dispatch.Gateway
	log       *logrus.Logger

	ownedGateway bool
}

// New builds and starts an engine in the Closed state.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	e := &Engine{
		clock:     clock.New(),
		renderers: render.NewSet(),
		props:     NewProps(),
		bus:       opts.Bus,
		gateway:   opts.Gateway,
		log:       log,
	}
	if e.bus == nil {
		e.bus = bus.New(log)
	}
	if e.gateway == nil {
		e.gateway = dispatch.NewHeadless(log)
		e.ownedGateway = true
	}

	e.driver = render.NewDriver(e.clock, e.renderers, opts.TickInterval, log)
	e.mgr = NewManager(e.clock, e.renderers, e.props, e.driver, log)

	e.driver.OnEndOfStream(func() {
		e.mgr.Enqueue(newCommand(kindEndOfStream))
	})
	e.driver.Start()

	return e
}

// Open loads the described media: one renderer per track is created through
// factory, the block source is handed to the render driver, and the engine
// lands in the Stopped state.
func (e *Engine) Open(info media.Info, source media.BlockSource, factory RendererFactory) *Completion {
	return e.mgr.Enqueue(NewOpen(info, source, factory))
}

// CloseMedia tears down the open media and returns the engine to Closed.
func (e *Engine) CloseMedia() *Completion {
	return e.mgr.Enqueue(NewCloseMedia())
}

// Play starts playback.
func (e *Engine) Play() *Completion {
	return e.mgr.Enqueue(NewPlay())
}

// Pause pauses playback.
func (e *Engine) Pause() *Completion {
	return e.mgr.Enqueue(NewPause())
}

// Stop stops playback and resets the position.
func (e *Engine) Stop() *Completion {
	return e.mgr.Enqueue(NewStop())
}

// Seek moves playback to the target position, clamped into the media's
// range. Rapid seeks coalesce: a seek still waiting in the queue is
// superseded by the newest one.
func (e *Engine) Seek(target time.Duration) *Completion {
	return e.mgr.Enqueue(NewSeek(target))
}

// SetSpeed changes the playback speed factor.
func (e *Engine) SetSpeed(factor float64) *Completion {
	return e.mgr.Enqueue(NewChangeSpeed(factor))
}

// Enqueue submits a pre-built command.
func (e *Engine) Enqueue(cmd *Command) *Completion {
	return e.mgr.Enqueue(cmd)
}

// State returns the current transport status.
func (e *Engine) State() Status { return e.props.State() }

// Position returns the clock's current media-time position.
func (e *Engine) Position() time.Duration { return e.clock.Position() }

// Duration returns the open media's natural duration, 0 when unknown.
func (e *Engine) Duration() time.Duration { return e.clock.Duration() }

// Speed returns the current speed factor.
func (e *Engine) Speed() float64 { return e.clock.Speed() }

// Clock exposes the playback clock renderers consult.
func (e *Engine) Clock() *clock.Clock { return e.clock }

// Props exposes the engine's publisher, for subscribing through an outside
// bus.
func (e *Engine) Props() *Props { return e.props }

// Subscribe registers handler for the named engine properties (PropState,
// PropDuration, PropSpeed, PropPosition). The handler runs on whichever
// goroutine applied the change; close the handle on teardown.
func (e *Engine) Subscribe(handler bus.Handler, properties ...string) (*bus.Handle, error) {
	return e.bus.Subscribe(e.props, handler, properties...)
}

// SubscribeUI is Subscribe with the handler marshaled through the dispatch
// gateway onto the UI-affine context, so UI code never runs on the engine's
// worker. Delivery is non-blocking for the publisher.
func (e *Engine) SubscribeUI(priority dispatch.Priority, handler bus.Handler, properties ...string) (*bus.Handle, error) {
	return e.bus.Subscribe(e.props, func(pub bus.Publisher, property string) {
		e.gateway.EnqueueInvoke(priority, func() error {
			handler(pub, property)
			return nil
		})
	}, properties...)
}

// Close shuts the engine down: the manager stops accepting commands, the
// render driver exits, and renderers are closed.
func (e *Engine) Close() error {
	e.mgr.Close()
	e.driver.Close()
	err := e.renderers.CloseAll()
	if e.ownedGateway {
		e.gateway.Close()
	}
	return err
}
