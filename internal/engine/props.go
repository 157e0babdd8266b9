package engine

import (
	"sync"
	"time"
)

// Property names published by the engine.
const (
	PropState    = "State"
	PropDuration = "Duration"
	PropSpeed    = "Speed"
	PropPosition = "Position"
)

// Props is the engine's observable property record and its bus publisher.
// Setters fire the attached hook only when the value actually changes, so
// subscribers see exactly one notification per change. Only the manager's
// worker goroutine mutates it; any goroutine may read.
type Props struct {
	mu       sync.RWMutex
	hook     func(property string)
	state    Status
	duration time.Duration
	speed    float64
	position time.Duration
}

// NewProps creates the property record for a closed engine.
func NewProps() *Props {
	return &Props{state: StatusClosed, speed: 1.0}
}

// AttachPropertyHook implements bus.Publisher. The bus attaches it once, on
// first subscription.
func (p *Props) AttachPropertyHook(fn func(property string)) {
	p.mu.Lock()
	p.hook = fn
	p.mu.Unlock()
}

// fire invokes the hook outside the lock; the hook leads back into the bus
// and from there into arbitrary subscriber code.
func (p *Props) fire(property string) {
	p.mu.RLock()
	hook := p.hook
	p.mu.RUnlock()
	if hook != nil {
		hook(property)
	}
}

// State returns the current transport status.
func (p *Props) State() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Duration returns the published natural duration.
func (p *Props) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration
}

// Speed returns the published speed factor.
func (p *Props) Speed() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.speed
}

// Position returns the last published seek position. The live position
// belongs to the clock; this property only changes on seeks.
func (p *Props) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

func (p *Props) setState(s Status) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.mu.Unlock()
	p.fire(PropState)
}

func (p *Props) setDuration(d time.Duration) {
	p.mu.Lock()
	if p.duration == d {
		p.mu.Unlock()
		return
	}
	p.duration = d
	p.mu.Unlock()
	p.fire(PropDuration)
}

func (p *Props) setSpeed(f float64) {
	p.mu.Lock()
	if p.speed == f {
		p.mu.Unlock()
		return
	}
	p.speed = f
	p.mu.Unlock()
	p.fire(PropSpeed)
}

func (p *Props) setPosition(pos time.Duration) {
	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()
	// Every seek is an observable change, even back to the same position.
	p.fire(PropPosition)
}
