package render

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/reel/internal/clock"
	"github.com/llehouerou/reel/internal/media"
)

// DefaultTickInterval is the render poll period when none is configured.
const DefaultTickInterval = 5 * time.Millisecond

// Driver polls the clock at a high frequency and asks each renderer for the
// block due at that position. Renders run asynchronously under the set's
// busy flag; a tick that finds a renderer still busy skips it.
type Driver struct {
	clock    *clock.Clock
	set      *Set
	interval time.Duration
	log      *logrus.Logger

	mu     sync.Mutex
	source media.BlockSource
	onEnd  func()
	ended  bool // end-of-stream reported for the current playback run

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewDriver creates a driver over the given clock and renderer set.
func NewDriver(c *clock.Clock, s *Set, interval time.Duration, log *logrus.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{
		clock:    c,
		set:      s,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetSource installs the block source for the currently open media. A nil
// source idles the driver.
func (d *Driver) SetSource(src media.BlockSource) {
	d.mu.Lock()
	d.source = src
	d.ended = false
	d.mu.Unlock()
}

// OnEndOfStream registers fn to be called once per playback run when the
// clock reaches the known natural duration while playing. fn runs on the
// driver goroutine and must return quickly.
func (d *Driver) OnEndOfStream(fn func()) {
	d.mu.Lock()
	d.onEnd = fn
	d.mu.Unlock()
}

// ResetEndOfStream re-arms end-of-stream detection, after a seek away from
// the end or a new play.
func (d *Driver) ResetEndOfStream() {
	d.mu.Lock()
	d.ended = false
	d.mu.Unlock()
}

// Start launches the tick loop.
func (d *Driver) Start() {
	go d.run()
}

// Close stops the tick loop and waits for it to exit.
func (d *Driver) Close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

func (d *Driver) run() {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Driver) tick() {
	d.mu.Lock()
	source := d.source
	d.mu.Unlock()
	if source == nil {
		return
	}

	pos := d.clock.Position()
	playing := d.clock.IsPlaying()

	if playing {
		d.checkEndOfStream(pos)
	}

	for _, t := range d.set.Types() {
		r, ok := d.set.tryAcquire(t)
		if !ok {
			// Busy from a previous tick: accepted frame drop.
			continue
		}
		go func(t media.Type, r Renderer) {
			defer d.set.release(t)
			d.renderOne(t, r, source, pos, playing)
		}(t, r)
	}
}

// renderOne feeds one renderer for one tick, with fault isolation: a
// renderer that returns an error or panics costs only its own cycle.
func (d *Driver) renderOne(t media.Type, r Renderer, source media.BlockSource, pos time.Duration, playing bool) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.WithField("type", t.String()).Errorf("render: renderer panicked: %v", rec)
		}
	}()

	if !playing {
		r.Update(pos)
		return
	}

	block, ok := source.BlockAt(t, pos)
	if !ok {
		r.Update(pos)
		return
	}
	if err := r.Render(block, pos); err != nil {
		d.log.WithField("type", t.String()).Warnf("render: cycle skipped: %v", err)
	}
}

func (d *Driver) checkEndOfStream(pos time.Duration) {
	duration := d.clock.Duration()
	if duration <= 0 || pos < duration {
		return
	}

	d.mu.Lock()
	fn := d.onEnd
	fire := !d.ended && fn != nil
	d.ended = true
	d.mu.Unlock()

	if fire {
		fn()
	}
}
