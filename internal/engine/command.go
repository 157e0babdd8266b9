package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llehouerou/reel/internal/media"
	"github.com/llehouerou/reel/internal/render"
)

// Kind discriminates command variants. Commands are a tagged variant rather
// than an interface hierarchy so validation and effects stay exhaustively
// switchable in one place.
type Kind int

const (
	KindPlay Kind = iota
	KindPause
	KindStop
	KindSeek
	KindChangeSpeed
	KindOpen
	KindCloseMedia

	// kindEndOfStream is enqueued internally by the render-tick driver when
	// the clock reaches the natural duration.
	kindEndOfStream
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "Play"
	case KindPause:
		return "Pause"
	case KindStop:
		return "Stop"
	case KindSeek:
		return "Seek"
	case KindChangeSpeed:
		return "ChangeSpeed"
	case KindOpen:
		return "Open"
	case KindCloseMedia:
		return "CloseMedia"
	case kindEndOfStream:
		return "EndOfStream"
	default:
		return "Unknown"
	}
}

// RendererFactory produces the renderer for one track when media opens.
type RendererFactory func(t media.Type) (render.Renderer, error)

// Command is an immutable transport request. Build one with a constructor,
// hand it to Manager.Enqueue, and it is consumed exactly once.
type Command struct {
	id     uuid.UUID
	kind   Kind
	target time.Duration // Seek payload
	factor float64       // ChangeSpeed payload

	// Open payload
	info    media.Info
	source  media.BlockSource
	factory RendererFactory
}

func newCommand(k Kind) *Command {
	return &Command{id: uuid.New(), kind: k}
}

// NewPlay builds a Play command.
func NewPlay() *Command { return newCommand(KindPlay) }

// NewPause builds a Pause command.
func NewPause() *Command { return newCommand(KindPause) }

// NewStop builds a Stop command.
func NewStop() *Command { return newCommand(KindStop) }

// NewSeek builds a Seek command targeting the given media-time position.
func NewSeek(target time.Duration) *Command {
	c := newCommand(KindSeek)
	c.target = target
	return c
}

// NewChangeSpeed builds a speed-change command.
func NewChangeSpeed(factor float64) *Command {
	c := newCommand(KindChangeSpeed)
	c.factor = factor
	return c
}

// NewOpen builds an Open command for the described media, its block source
// and the factory that creates one renderer per track.
func NewOpen(info media.Info, source media.BlockSource, factory RendererFactory) *Command {
	c := newCommand(KindOpen)
	c.info = info
	c.source = source
	c.factory = factory
	return c
}

// NewCloseMedia builds a close-media command.
func NewCloseMedia() *Command { return newCommand(KindCloseMedia) }

// ID returns the command's identity, for logging.
func (c *Command) ID() uuid.UUID { return c.id }

// Kind returns the command discriminant.
func (c *Command) Kind() Kind { return c.kind }

// String describes the command for logging.
func (c *Command) String() string {
	switch c.kind {
	case KindSeek:
		return fmt.Sprintf("Seek(%v)", c.target)
	case KindChangeSpeed:
		return fmt.Sprintf("ChangeSpeed(%v)", c.factor)
	case KindOpen:
		return fmt.Sprintf("Open(%s)", c.info.URI)
	default:
		return c.kind.String()
	}
}

// Completion is the signal paired with an enqueued command. It is fulfilled
// exactly once, with success or the command's rejection/failure, once the
// manager has fully applied or rejected the command.
type Completion struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the command has been applied or rejected.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the command outcome. Valid only once Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the command completes or ctx is cancelled.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
