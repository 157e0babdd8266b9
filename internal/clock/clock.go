// Package clock implements the shared playback clock: the position-and-rate
// counter renderers consult as their timing reference.
package clock

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidSpeed is returned by SetSpeed for non-positive factors.
var ErrInvalidSpeed = errors.New("clock: speed factor must be positive")

// Clock tracks the current media-time position, the playing flag and the
// speed multiplier. Position advances in wall time while playing, scaled by
// the speed factor.
//
// All state is guarded by a single mutex; every operation is a short
// critical section over in-memory counters only, so mutators are safe to
// call from the command-serialization goroutine without stalling it, and
// readers from any goroutine observe a position consistent with the last
// fully applied command.
type Clock struct {
	mu sync.Mutex

	playing  bool
	rate     float64
	base     time.Duration // media position at the last anchor point
	anchor   time.Time     // wall time of the anchor, valid while playing
	start    time.Duration // position Stop resets to
	duration time.Duration // 0 = unknown
}

// New creates a stopped clock at position zero with speed 1.0.
func New() *Clock {
	return &Clock{rate: 1.0}
}

// positionLocked resolves the current position. Callers must hold mu.
func (c *Clock) positionLocked(now time.Time) time.Duration {
	pos := c.base
	if c.playing {
		pos += time.Duration(float64(now.Sub(c.anchor)) * c.rate)
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// rebaseLocked folds elapsed time into base so rate or playing changes take
// effect from the current position. Callers must hold mu.
func (c *Clock) rebaseLocked(now time.Time) {
	c.base = c.positionLocked(now)
	c.anchor = now
}

// Play starts the clock. No-op if already playing.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.anchor = time.Now()
	c.playing = true
}

// Pause freezes the clock at its current position. No-op if not playing.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.rebaseLocked(time.Now())
	c.playing = false
}

// Stop freezes the clock and resets the position to the configured start.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.base = c.start
}

// Seek moves the clock to pos, clamped into [0, duration] when the duration
// is known. Seeking never changes the playing flag.
func (c *Clock) Seek(pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	c.base = pos
	c.anchor = time.Now()
}

// SetSpeed changes the speed multiplier, effective from the current
// position. Factors must be positive.
func (c *Clock) SetSpeed(factor float64) error {
	if factor <= 0 {
		return ErrInvalidSpeed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebaseLocked(time.Now())
	c.rate = factor
	return nil
}

// SetStart configures the position Stop resets to.
func (c *Clock) SetStart(pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = pos
}

// SetDuration records the natural duration used for clamping. Zero means
// unknown.
func (c *Clock) SetDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
}

// Reset returns the clock to its initial state. Called on the close-media
// transition.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.rate = 1.0
	c.base = 0
	c.start = 0
	c.duration = 0
}

// Position returns the current media-time position.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked(time.Now())
}

// IsPlaying reports whether the clock is advancing.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Speed returns the current speed multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Duration returns the known natural duration, or 0 when unknown.
func (c *Clock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}
