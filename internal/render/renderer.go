// Package render holds the renderer capability contract, the per-media-type
// renderer set, and the tick driver that feeds renderers from the block
// source at the clock's pace.
package render

import (
	"time"

	"github.com/llehouerou/reel/internal/media"
)

// Renderer consumes decoded blocks and produces output for one media type.
// Implementations must return quickly from every call: a Play must not wait
// for the first frame to actually reach the device, and Render must either
// finish fast or hand off and continue asynchronously. Ordinary skip
// conditions (not ready, nothing to do) are not errors; errors are reserved
// for genuine faults.
type Renderer interface {
	Play()
	Pause()
	Stop()
	// Seek discards internally buffered output after a position change.
	Seek()
	// Render consumes the block due at the given clock position.
	Render(block *media.Block, pos time.Duration) error
	// Update advances renderer-internal bookkeeping when no block is due.
	Update(pos time.Duration)
	// WaitForReadyState blocks until the renderer can accept blocks.
	WaitForReadyState()
	Close() error
}
