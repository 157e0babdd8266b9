// Package media defines the types exchanged between the engine core and its
// external collaborators: the decoding pipeline that produces timestamped
// blocks, and the renderers that consume them.
package media

import "time"

// Type identifies the kind of media a block or track carries.
type Type int

const (
	Audio Type = iota
	Video
	Subtitle
)

// String returns the media type name.
func (t Type) String() string {
	switch t {
	case Audio:
		return "Audio"
	case Video:
		return "Video"
	case Subtitle:
		return "Subtitle"
	default:
		return "Unknown"
	}
}

// Block is a single decoded unit of media: a run of audio samples, one video
// frame, or a subtitle cue. The payload is opaque to the engine core; only
// the renderer for the matching type interprets it.
type Block struct {
	Type     Type
	Start    time.Duration // media-time position of the first sample/frame
	Duration time.Duration
	Payload  any
}

// End returns the media-time position just past the block.
func (b *Block) End() time.Duration {
	return b.Start + b.Duration
}

// BlockSource is the addressable, time-ordered buffer of decoded blocks the
// render-tick driver queries. Implementations are produced by the decoding
// pipeline, which is outside this engine core.
type BlockSource interface {
	// BlockAt returns the block due at the given position for the given
	// media type, or false when none is available yet (still buffering,
	// past end of stream, no track of that type).
	BlockAt(t Type, pos time.Duration) (*Block, bool)
}

// Track describes one elementary stream of an opened media.
type Track struct {
	Type Type
}

// Info describes an opened media: where it came from, how long it is, and
// which tracks it carries. A zero Duration means the natural duration is
// not (yet) known.
type Info struct {
	URI      string
	Duration time.Duration
	Tracks   []Track
}
