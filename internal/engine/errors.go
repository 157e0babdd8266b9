package engine

import "errors"

// Sentinel errors surfaced on command completions.
var (
	// ErrNotOpen rejects transport commands while no media is open.
	ErrNotOpen = errors.New("engine: no media open")

	// ErrAlreadyOpen rejects Open while media is already open.
	ErrAlreadyOpen = errors.New("engine: media already open")

	// ErrEngineClosed rejects commands enqueued after the engine shut down.
	ErrEngineClosed = errors.New("engine: engine closed")

	// ErrNoTracks rejects Open for media describing no tracks.
	ErrNoTracks = errors.New("engine: media has no tracks")
)
