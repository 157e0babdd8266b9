package engine

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/reel/internal/clock"
	"github.com/llehouerou/reel/internal/media"
	"github.com/llehouerou/reel/internal/render"
)

// Manager is the single-writer serialization point over {Props, Clock,
// Renderer Set}. Commands are enqueued from any goroutine and applied one at
// a time by a dedicated worker goroutine, so exactly one command's effects
// are ever in flight. The queue lock covers only enqueue, coalesce and
// dequeue; command effects run outside it.
type Manager struct {
	clock     *clock.Clock
	renderers *render.Set
	props     *Props
	driver    *render.Driver
	log       *logrus.Logger

	mu     sync.Mutex
	queue  []*queueEntry
	closed bool
	wake   chan struct{}

	stop chan struct{}
	done chan struct{}
}

// queueEntry pairs a command with its completion signals. A seek that
// superseded earlier pending seeks carries all of their completions.
type queueEntry struct {
	cmd         *Command
	completions []*Completion
}

// NewManager creates a manager over the shared transport state and starts
// its worker goroutine.
func NewManager(c *clock.Clock, set *render.Set, props *Props, driver *render.Driver, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		clock:     c,
		renderers: set,
		props:     props,
		driver:    driver,
		log:       log,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go m.worker()
	return m
}

// Enqueue submits a command and returns its completion signal. Safe to call
// from any goroutine; it never blocks on command execution.
//
// Coalescing: a Seek supersedes a still-pending, not-yet-started Seek in
// the queue (last-seek-wins), and the superseded completions resolve with
// the winning seek's outcome. No other kind is ever coalesced; each Play,
// Pause and Stop is individually applied and observable.
func (m *Manager) Enqueue(cmd *Command) *Completion {
	completion := newCompletion()
	if cmd == nil {
		completion.resolve(ErrEngineClosed)
		return completion
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		completion.resolve(ErrEngineClosed)
		return completion
	}

	if cmd.kind == KindSeek {
		for _, e := range m.queue {
			if e.cmd.kind == KindSeek {
				// Pending seek not yet started: the new target wins.
				e.cmd = cmd
				e.completions = append(e.completions, completion)
				m.mu.Unlock()
				return completion
			}
		}
	}

	m.queue = append(m.queue, &queueEntry{cmd: cmd, completions: []*Completion{completion}})
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return completion
}

// Close stops the worker after the in-flight command finishes. Commands
// still queued fail with ErrEngineClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	<-m.done

	m.mu.Lock()
	pending := m.queue
	m.queue = nil
	m.mu.Unlock()
	for _, e := range pending {
		for _, c := range e.completions {
			c.resolve(ErrEngineClosed)
		}
	}
}

func (m *Manager) worker() {
	defer close(m.done)
	for {
		m.drain()
		select {
		case <-m.stop:
			return
		case <-m.wake:
		}
	}
}

// drain applies queued commands until the queue is empty.
func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		e := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		err := m.apply(e.cmd)
		if err != nil {
			m.log.WithField("command", e.cmd.String()).Debugf("engine: command rejected: %v", err)
		}
		for _, c := range e.completions {
			c.resolve(err)
		}
	}
}

// apply validates the command against the current status and performs its
// effect. Only the worker goroutine calls it, which is what serializes all
// mutation of transport state.
func (m *Manager) apply(cmd *Command) error {
	switch cmd.kind {
	case KindPlay:
		return m.applyPlay()
	case KindPause:
		return m.applyPause()
	case KindStop:
		return m.applyStop()
	case KindSeek:
		return m.applySeek(cmd.target)
	case KindChangeSpeed:
		return m.applyChangeSpeed(cmd.factor)
	case KindOpen:
		return m.applyOpen(cmd.info, cmd.source, cmd.factory)
	case KindCloseMedia:
		return m.applyCloseMedia()
	case kindEndOfStream:
		return m.applyEndOfStream()
	default:
		return ErrEngineClosed
	}
}

func (m *Manager) applyPlay() error {
	switch st := m.props.State(); {
	case !st.IsOpen():
		return ErrNotOpen
	case st == StatusPlaying:
		// Already playing: no-op, not an error.
		return nil
	case st == StatusEnded:
		// At end of stream with known duration: a bare Play has nothing to
		// resume; it is a no-op until a seek moves away from the end.
		if d := m.clock.Duration(); d > 0 && m.clock.Position() >= d {
			return nil
		}
	}

	m.driver.ResetEndOfStream()
	m.eachRenderer("play", func(r render.Renderer) { r.Play() })
	m.clock.Play()
	m.props.setState(StatusPlaying)
	return nil
}

func (m *Manager) applyPause() error {
	st := m.props.State()
	if !st.IsOpen() {
		return ErrNotOpen
	}
	if st != StatusPlaying {
		return nil
	}

	m.eachRenderer("pause", func(r render.Renderer) { r.Pause() })
	m.clock.Pause()
	m.props.setState(StatusPaused)
	return nil
}

func (m *Manager) applyStop() error {
	st := m.props.State()
	if !st.IsOpen() {
		return ErrNotOpen
	}
	if st == StatusStopped {
		return nil
	}

	m.eachRenderer("stop", func(r render.Renderer) { r.Stop() })
	m.clock.Stop()
	m.props.setState(StatusStopped)
	return nil
}

func (m *Manager) applySeek(target time.Duration) error {
	st := m.props.State()
	if !st.IsOpen() {
		return ErrNotOpen
	}

	m.clock.Seek(target)
	m.eachRenderer("seek", func(r render.Renderer) { r.Seek() })
	m.driver.ResetEndOfStream()
	m.props.setPosition(m.clock.Position())

	// Seeking while stopped or ended leaves the engine paused at the new
	// position, never playing.
	if st == StatusStopped || st == StatusEnded {
		m.props.setState(StatusPaused)
	}
	return nil
}

func (m *Manager) applyChangeSpeed(factor float64) error {
	if !m.props.State().IsOpen() {
		return ErrNotOpen
	}
	if err := m.clock.SetSpeed(factor); err != nil {
		return err
	}
	m.props.setSpeed(factor)
	return nil
}

func (m *Manager) applyOpen(info media.Info, source media.BlockSource, factory RendererFactory) error {
	if m.props.State() != StatusClosed {
		return ErrAlreadyOpen
	}
	if len(info.Tracks) == 0 {
		return ErrNoTracks
	}

	m.props.setState(StatusOpening)

	m.clock.Reset()
	m.clock.SetDuration(info.Duration)

	for _, track := range info.Tracks {
		r, err := factory(track.Type)
		if err == nil {
			err = m.renderers.Attach(track.Type, r)
		}
		if err != nil {
			// Roll back to Closed: an engine half-open is not a state.
			if cerr := m.renderers.CloseAll(); cerr != nil {
				m.log.Warnf("engine: open rollback: %v", cerr)
			}
			m.clock.Reset()
			m.props.setState(StatusClosed)
			return err
		}
	}

	m.eachRenderer("ready", func(r render.Renderer) { r.WaitForReadyState() })
	m.driver.SetSource(source)

	m.props.setDuration(info.Duration)
	m.props.setState(StatusStopped)
	return nil
}

func (m *Manager) applyCloseMedia() error {
	if m.props.State() == StatusClosed {
		return nil
	}

	m.driver.SetSource(nil)
	if err := m.renderers.CloseAll(); err != nil {
		m.log.Warnf("engine: close media: %v", err)
	}
	m.clock.Reset()
	m.props.setDuration(0)
	m.props.setSpeed(1.0)
	m.props.setState(StatusClosed)
	return nil
}

func (m *Manager) applyEndOfStream() error {
	if m.props.State() != StatusPlaying {
		// Raced with a user command that already left Playing.
		return nil
	}

	m.eachRenderer("pause", func(r render.Renderer) { r.Pause() })
	m.clock.Pause()
	m.props.setState(StatusEnded)
	return nil
}

// eachRenderer invokes fn on every active renderer with fault isolation: a
// renderer that panics is logged and the command proceeds with the rest.
func (m *Manager) eachRenderer(op string, fn func(r render.Renderer)) {
	m.renderers.Each(func(t media.Type, r render.Renderer) {
		defer func() {
			if rec := recover(); rec != nil {
				m.log.WithFields(logrus.Fields{
					"type": t.String(),
					"op":   op,
				}).Errorf("engine: renderer fault: %v", rec)
			}
		}()
		fn(r)
	})
}
