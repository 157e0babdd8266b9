//go:build linux

package mpris

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/llehouerou/reel/internal/engine"
)

// Adapter exposes the engine over MPRIS on D-Bus.
type Adapter struct {
	engine *engine.Engine
	server *server.Server
}

// New creates and starts a new MPRIS adapter.
func New(eng *engine.Engine) (*Adapter, error) {
	a := &Adapter{engine: eng}

	rootAdapter := &rootAdapter{}
	playerAdapter := &playerAdapter{engine: eng}

	a.server = server.NewServer("reel", rootAdapter, playerAdapter)

	// Start the server in background
	go func() {
		_ = a.server.Listen()
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - host manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return "Reel", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/wav"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter. Control
// methods enqueue commands and wait for the completion so D-Bus callers
// see the real outcome.
type playerAdapter struct {
	engine *engine.Engine
}

func (p *playerAdapter) Next() error {
	return nil // Single-media engine, no queue
}

func (p *playerAdapter) Previous() error {
	return nil // Single-media engine, no queue
}

func (p *playerAdapter) Pause() error {
	return p.engine.Pause().Wait(context.Background())
}

func (p *playerAdapter) PlayPause() error {
	if p.engine.State() == engine.StatusPlaying {
		return p.engine.Pause().Wait(context.Background())
	}
	return p.engine.Play().Wait(context.Background())
}

func (p *playerAdapter) Stop() error {
	return p.engine.Stop().Wait(context.Background())
}

func (p *playerAdapter) Play() error {
	return p.engine.Play().Wait(context.Background())
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	target := p.engine.Position() + time.Duration(offset)*time.Microsecond
	if target < 0 {
		target = 0
	}
	return p.engine.Seek(target).Wait(context.Background())
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	return p.engine.Seek(time.Duration(position) * time.Microsecond).Wait(context.Background())
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.engine.State() {
	case engine.StatusPlaying, engine.StatusBuffering:
		return types.PlaybackStatusPlaying, nil
	case engine.StatusPaused:
		return types.PlaybackStatusPaused, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return p.engine.Speed(), nil
}

func (p *playerAdapter) SetRate(rate float64) error {
	return p.engine.SetSpeed(rate).Wait(context.Background())
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	if !p.engine.State().IsOpen() {
		return types.Metadata{}, nil
	}
	return types.Metadata{
		TrackId: dbus.ObjectPath("/org/mpris/MediaPlayer2/Track/1"),
		Length:  types.Microseconds(p.engine.Duration().Microseconds()),
	}, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil // Volume control not exposed by the engine
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Position() (int64, error) {
	return p.engine.Position().Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 0.25, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 4.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return false, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return false, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.engine.State().IsOpen(), nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return p.engine.State().IsOpen(), nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return p.engine.State().IsOpen(), nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}
