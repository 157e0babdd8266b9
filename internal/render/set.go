package render

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/llehouerou/reel/internal/media"
)

// entry pairs a renderer with its busy flag. The flag prevents overlapping
// renders of the same renderer: a tick that finds it set skips the cycle,
// which is accepted frame-drop behavior, not an error.
type entry struct {
	renderer Renderer
	busy     atomic.Bool
}

// Set maps each media type to its single active renderer. Renderers are
// attached when a track opens and detached when the track or the engine
// closes.
type Set struct {
	mu      sync.RWMutex
	entries map[media.Type]*entry
}

// NewSet creates an empty renderer set.
func NewSet() *Set {
	return &Set{entries: make(map[media.Type]*entry)}
}

// Attach registers the renderer for a media type. At most one renderer per
// type may be active at a time.
func (s *Set) Attach(t media.Type, r Renderer) error {
	if r == nil {
		return fmt.Errorf("render: attach %s: nil renderer", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[t]; exists {
		return fmt.Errorf("render: attach %s: renderer already active", t)
	}
	s.entries[t] = &entry{renderer: r}
	return nil
}

// Get returns the active renderer for a media type.
func (s *Set) Get(t media.Type) (Renderer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[t]
	if !ok {
		return nil, false
	}
	return e.renderer, true
}

// Types returns the media types with an active renderer.
func (s *Set) Types() []media.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.entries)
}

// Len returns the number of active renderers.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Each calls fn for every active renderer. fn runs outside per-entry state;
// callers handle renderer faults themselves.
func (s *Set) Each(fn func(t media.Type, r Renderer)) {
	s.mu.RLock()
	snapshot := make(map[media.Type]Renderer, len(s.entries))
	for t, e := range s.entries {
		snapshot[t] = e.renderer
	}
	s.mu.RUnlock()

	for t, r := range snapshot {
		fn(t, r)
	}
}

// tryAcquire marks the renderer for t busy. It returns the renderer and
// true when the caller may render; false when the type has no renderer or a
// render is already in flight.
func (s *Set) tryAcquire(t media.Type) (Renderer, bool) {
	s.mu.RLock()
	e, ok := s.entries[t]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	return e.renderer, true
}

// release clears the busy flag set by tryAcquire.
func (s *Set) release(t media.Type) {
	s.mu.RLock()
	e, ok := s.entries[t]
	s.mu.RUnlock()
	if ok {
		e.busy.Store(false)
	}
}

// CloseAll closes and detaches every renderer, returning the first error.
func (s *Set) CloseAll() error {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[media.Type]*entry)
	s.mu.Unlock()

	var first error
	for t, e := range entries {
		if err := e.renderer.Close(); err != nil && first == nil {
			first = fmt.Errorf("render: close %s: %w", t, err)
		}
	}
	return first
}
