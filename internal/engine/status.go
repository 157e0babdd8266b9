package engine

// Status represents the engine's transport state.
type Status int

const (
	StatusClosed Status = iota
	StatusOpening
	StatusBuffering
	StatusPlaying
	StatusPaused
	StatusStopped
	StatusEnded
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "Closed"
	case StatusOpening:
		return "Opening"
	case StatusBuffering:
		return "Buffering"
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Stopped"
	case StatusEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// IsOpen returns true once media is open, in any transport state.
func (s Status) IsOpen() bool {
	return s != StatusClosed && s != StatusOpening
}

// IsActive returns true if playback is engaged (playing or paused).
func (s Status) IsActive() bool {
	return s == StatusPlaying || s == StatusPaused
}
