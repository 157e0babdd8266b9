package render

import (
	"sync"
	"time"

	"github.com/llehouerou/reel/internal/media"
)

// Mock is a test double for Renderer. It records calls and can be told to
// fail, panic, or stall.
type Mock struct {
	mu sync.Mutex

	playCalls   int
	pauseCalls  int
	stopCalls   int
	seekCalls   int
	closeCalls  int
	renderCalls []*media.Block
	updateCalls []time.Duration

	renderErr   error
	renderPanic bool
	renderStall chan struct{} // Render blocks until this closes, when set
}

// NewMock creates a mock renderer.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Play()  { m.mu.Lock(); m.playCalls++; m.mu.Unlock() }
func (m *Mock) Pause() { m.mu.Lock(); m.pauseCalls++; m.mu.Unlock() }
func (m *Mock) Stop()  { m.mu.Lock(); m.stopCalls++; m.mu.Unlock() }
func (m *Mock) Seek()  { m.mu.Lock(); m.seekCalls++; m.mu.Unlock() }

func (m *Mock) Render(block *media.Block, _ time.Duration) error {
	m.mu.Lock()
	m.renderCalls = append(m.renderCalls, block)
	err := m.renderErr
	doPanic := m.renderPanic
	stall := m.renderStall
	m.mu.Unlock()

	if stall != nil {
		<-stall
	}
	if doPanic {
		panic("mock renderer fault")
	}
	return err
}

func (m *Mock) Update(pos time.Duration) {
	m.mu.Lock()
	m.updateCalls = append(m.updateCalls, pos)
	m.mu.Unlock()
}

func (m *Mock) WaitForReadyState() {}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	return nil
}

// Test helpers

func (m *Mock) PlayCalls() int  { m.mu.Lock(); defer m.mu.Unlock(); return m.playCalls }
func (m *Mock) PauseCalls() int { m.mu.Lock(); defer m.mu.Unlock(); return m.pauseCalls }
func (m *Mock) StopCalls() int  { m.mu.Lock(); defer m.mu.Unlock(); return m.stopCalls }
func (m *Mock) SeekCalls() int  { m.mu.Lock(); defer m.mu.Unlock(); return m.seekCalls }
func (m *Mock) CloseCalls() int { m.mu.Lock(); defer m.mu.Unlock(); return m.closeCalls }

func (m *Mock) RenderCalls() []*media.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*media.Block(nil), m.renderCalls...)
}

func (m *Mock) UpdateCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.updateCalls...)
}

func (m *Mock) SetRenderError(err error) {
	m.mu.Lock()
	m.renderErr = err
	m.mu.Unlock()
}

func (m *Mock) SetRenderPanic(v bool) {
	m.mu.Lock()
	m.renderPanic = v
	m.mu.Unlock()
}

// StallRender makes Render block until the returned channel is closed.
func (m *Mock) StallRender() chan struct{} {
	ch := make(chan struct{})
	m.mu.Lock()
	m.renderStall = ch
	m.mu.Unlock()
	return ch
}

// Verify Mock implements Renderer at compile time.
var _ Renderer = (*Mock)(nil)
