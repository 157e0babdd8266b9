// Package beepout provides an audio renderer backed by the beep speaker.
// Rendered blocks carry [][2]float64 sample frames; the renderer queues them
// into a streamer the speaker drains, so Render hands off and returns
// immediately while output continues on the speaker's own goroutine.
package beepout

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/llehouerou/reel/internal/media"
	"github.com/llehouerou/reel/internal/render"
)

var speakerInitialized bool

// maxBufferedFrames bounds the queue so a fast producer cannot run
// arbitrarily far ahead of the speaker. Render calls past the bound are
// skipped, which the tick driver retries on a later cycle.
const maxBufferedFrames = 1 << 16

// Renderer plays audio blocks through the process-wide beep speaker. One
// active instance at a time; Close releases the speaker queue.
type Renderer struct {
	sampleRate beep.SampleRate
	stream     *queueStreamer
	ctrl       *beep.Ctrl
}

// New initializes the speaker (once per process) and registers a paused
// stream on it.
func New(sampleRate int) (*Renderer, error) {
	sr := beep.SampleRate(sampleRate)
	if !speakerInitialized {
		if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
			return nil, fmt.Errorf("beepout: speaker init: %w", err)
		}
		speakerInitialized = true
	}

	r := &Renderer{
		sampleRate: sr,
		stream:     &queueStreamer{},
	}
	r.ctrl = &beep.Ctrl{Streamer: r.stream, Paused: true}
	speaker.Play(r.ctrl)
	return r, nil
}

// Play unpauses output.
func (r *Renderer) Play() {
	speaker.Lock()
	r.ctrl.Paused = false
	speaker.Unlock()
}

// Pause pauses output, keeping buffered samples.
func (r *Renderer) Pause() {
	speaker.Lock()
	r.ctrl.Paused = true
	speaker.Unlock()
}

// Stop pauses output and discards buffered samples.
func (r *Renderer) Stop() {
	speaker.Lock()
	r.ctrl.Paused = true
	r.stream.drop()
	speaker.Unlock()
}

// Seek discards buffered samples; playback continues from whatever the
// source produces at the new position.
func (r *Renderer) Seek() {
	speaker.Lock()
	r.stream.drop()
	speaker.Unlock()
}

// Render queues the block's sample frames. Blocks whose payload is not
// [][2]float64 are a genuine fault; a full buffer is an ordinary skip.
func (r *Renderer) Render(block *media.Block, _ time.Duration) error {
	frames, ok := block.Payload.([][2]float64)
	if !ok {
		return fmt.Errorf("beepout: unexpected payload %T", block.Payload)
	}

	speaker.Lock()
	defer speaker.Unlock()
	if r.stream.len()+len(frames) > maxBufferedFrames {
		// Producer ahead of the speaker: skip this cycle.
		return nil
	}
	r.stream.push(frames)
	return nil
}

// Update is a no-op; the speaker drains on its own.
func (r *Renderer) Update(time.Duration) {}

// WaitForReadyState is a no-op; the speaker is ready once initialized.
func (r *Renderer) WaitForReadyState() {}

// Close silences and clears the speaker queue.
func (r *Renderer) Close() error {
	speaker.Clear()
	return nil
}

// Buffered returns the queued media time, for host diagnostics.
func (r *Renderer) Buffered() time.Duration {
	speaker.Lock()
	n := r.stream.len()
	speaker.Unlock()
	return r.sampleRate.D(n)
}

// Verify Renderer implements the capability at compile time.
var _ render.Renderer = (*Renderer)(nil)

// queueStreamer is an endless beep.Streamer draining a FIFO of frames and
// emitting silence when the queue is empty. All access happens under the
// speaker lock.
type queueStreamer struct {
	frames [][2]float64
}

func (q *queueStreamer) push(frames [][2]float64) {
	q.frames = append(q.frames, frames...)
}

func (q *queueStreamer) drop() {
	q.frames = nil
}

func (q *queueStreamer) len() int {
	return len(q.frames)
}

// Stream implements beep.Streamer.
func (q *queueStreamer) Stream(samples [][2]float64) (int, bool) {
	n := copy(samples, q.frames)
	q.frames = q.frames[n:]
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (q *queueStreamer) Err() error {
	return nil
}
