package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/reel/internal/bus"
	"github.com/llehouerou/reel/internal/media"
	"github.com/llehouerou/reel/internal/render"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine() *Engine {
	return New(Options{Logger: quietLogger()})
}

// emptySource never has a block due.
type emptySource struct{}

func (emptySource) BlockAt(media.Type, time.Duration) (*media.Block, bool) { return nil, false }

// openMedia opens a single-audio-track media and returns its mock renderer.
func openMedia(t *testing.T, e *Engine, duration time.Duration) *render.Mock {
	t.Helper()
	mock := render.NewMock()
	info := media.Info{
		URI:      "test://track",
		Duration: duration,
		Tracks:   []media.Track{{Type: media.Audio}},
	}
	factory := func(media.Type) (render.Renderer, error) { return mock, nil }
	if err := wait(t, e.Open(info, emptySource{}, factory)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return mock
}

func wait(t *testing.T, c *Completion) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Wait(ctx)
}

func TestEngine_PlayWhileClosedRejected(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	err := wait(t, e.Play())

	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("Play while closed = %v, want ErrNotOpen", err)
	}
	if e.State() != StatusClosed {
		t.Errorf("State() = %v, want Closed", e.State())
	}
}

func TestEngine_TransportWhileClosedRejected(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	for name, c := range map[string]*Completion{
		"Pause":    e.Pause(),
		"Stop":     e.Stop(),
		"Seek":     e.Seek(time.Second),
		"SetSpeed": e.SetSpeed(2.0),
	} {
		if err := wait(t, c); !errors.Is(err, ErrNotOpen) {
			t.Errorf("%s while closed = %v, want ErrNotOpen", name, err)
		}
	}
}

func TestEngine_OpenLandsStopped(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	openMedia(t, e, 10*time.Second)

	if e.State() != StatusStopped {
		t.Errorf("State() = %v, want Stopped", e.State())
	}
	if e.Duration() != 10*time.Second {
		t.Errorf("Duration() = %v, want 10s", e.Duration())
	}
}

func TestEngine_OpenTwiceRejected(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	openMedia(t, e, 10*time.Second)

	info := media.Info{Tracks: []media.Track{{Type: media.Audio}}}
	factory := func(media.Type) (render.Renderer, error) { return render.NewMock(), nil }

	if err := wait(t, e.Open(info, emptySource{}, factory)); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
}

func TestEngine_OpenWithoutTracksRejected(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	info := media.Info{URI: "test://empty"}
	factory := func(media.Type) (render.Renderer, error) { return render.NewMock(), nil }

	if err := wait(t, e.Open(info, emptySource{}, factory)); !errors.Is(err, ErrNoTracks) {
		t.Errorf("Open = %v, want ErrNoTracks", err)
	}
	if e.State() != StatusClosed {
		t.Errorf("State() = %v, want Closed", e.State())
	}
}

func TestEngine_OpenFactoryErrorRollsBack(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	audio := render.NewMock()
	fault := errors.New("no video device")
	info := media.Info{Tracks: []media.Track{{Type: media.Audio}, {Type: media.Video}}}
	factory := func(tp media.Type) (render.Renderer, error) {
		if tp == media.Video {
			return nil, fault
		}
		return audio, nil
	}

	if err := wait(t, e.Open(info, emptySource{}, factory)); !errors.Is(err, fault) {
		t.Errorf("Open = %v, want factory fault", err)
	}
	if e.State() != StatusClosed {
		t.Errorf("State() = %v, want Closed after rollback", e.State())
	}
	if audio.CloseCalls() != 1 {
		t.Error("already-created renderer not closed on rollback")
	}
}

func TestEngine_PlayPauseStop(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	mock := openMedia(t, e, 10*time.Second)

	if err := wait(t, e.Play()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if e.State() != StatusPlaying {
		t.Errorf("State() = %v, want Playing", e.State())
	}
	if !e.Clock().IsPlaying() {
		t.Error("clock not running after Play")
	}
	if mock.PlayCalls() != 1 {
		t.Errorf("renderer Play calls = %d, want 1", mock.PlayCalls())
	}

	if err := wait(t, e.Pause()); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if e.State() != StatusPaused {
		t.Errorf("State() = %v, want Paused", e.State())
	}
	if e.Clock().IsPlaying() {
		t.Error("clock still running after Pause")
	}
	if mock.PauseCalls() != 1 {
		t.Errorf("renderer Pause calls = %d, want 1", mock.PauseCalls())
	}

	if err := wait(t, e.Stop()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if e.State() != StatusStopped {
		t.Errorf("State() = %v, want Stopped", e.State())
	}
	if e.Position() != 0 {
		t.Errorf("Position() = %v, want 0 after Stop", e.Position())
	}
	if mock.StopCalls() != 1 {
		t.Errorf("renderer Stop calls = %d, want 1", mock.StopCalls())
	}
}

func TestEngine_PlayWhilePlayingNoOp(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	mock := openMedia(t, e, 10*time.Second)

	if err := wait(t, e.Play()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := wait(t, e.Play()); err != nil {
		t.Errorf("second Play = %v, want nil (no-op)", err)
	}
	if mock.PlayCalls() != 1 {
		t.Errorf("renderer Play calls = %d, want 1", mock.PlayCalls())
	}
}

func TestEngine_PauseWhileStoppedNoOp(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	mock := openMedia(t, e, 10*time.Second)

	if err := wait(t, e.Pause()); err != nil {
		t.Errorf("Pause while stopped = %v, want nil", err)
	}
	if mock.PauseCalls() != 0 {
		t.Errorf("renderer Pause calls = %d, want 0", mock.PauseCalls())
	}
}

func TestEngine_SeekClampsToDuration(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	openMedia(t, e, 10*time.Second)

	if err := wait(t, e.Seek(15*time.Second)); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	if got := e.Position(); got != 10*time.Second {
		t.Errorf("Position() = %v, want 10s (clamped)", got)
	}
}

func TestEngine_SeekWhileStoppedLandsPaused(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	mock := openMedia(t, e, 10*time.Second)

	if err := wait(t, e.Seek(4*time.Second)); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	if e.State() != StatusPaused {
		t.Errorf("State() = %v, want Paused (seek while stopped)", e.State())
	}
	if got := e.Position(); got != 4*time.Second {
		t.Errorf("Position() = %v, want 4s", got)
	}
	if mock.SeekCalls() != 1 {
		t.Errorf("renderer Seek calls = %d, want 1", mock.SeekCalls())
	}
}

func TestEngine_SetSpeed(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	openMedia(t, e, 10*time.Second)

	if err := wait(t, e.SetSpeed(1.5)); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if e.Speed() != 1.5 {
		t.Errorf("Speed() = %v, want 1.5", e.Speed())
	}

	if err := wait(t, e.SetSpeed(-1)); err == nil {
		t.Error("SetSpeed(-1) should fail")
	}
	if e.Speed() != 1.5 {
		t.Errorf("Speed() = %v after rejected change, want 1.5", e.Speed())
	}
}

func TestEngine_SeekCoalescing(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	// Hold the manager worker inside Open so the seeks below stay pending
	// in the queue together.
	release := make(chan struct{})
	mock := render.NewMock()
	info := media.Info{
		Duration: 30 * time.Second,
		Tracks:   []media.Track{{Type: media.Audio}},
	}
	factory := func(media.Type) (render.Renderer, error) {
		<-release
		return mock, nil
	}
	openC := e.Open(info, emptySource{}, factory)

	s1 := e.Seek(2 * time.Second)
	s2 := e.Seek(4 * time.Second)
	s3 := e.Seek(6 * time.Second)
	close(release)

	if err := wait(t, openC); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i, c := range []*Completion{s1, s2, s3} {
		if err := wait(t, c); err != nil {
			t.Errorf("seek %d completion = %v, want nil", i+1, err)
		}
	}

	// Only the last target was applied.
	if got := e.Position(); got != 6*time.Second {
		t.Errorf("Position() = %v, want 6s (last seek wins)", got)
	}
	if mock.SeekCalls() != 1 {
		t.Errorf("renderer Seek calls = %d, want 1 (earlier seeks superseded)", mock.SeekCalls())
	}
}

func TestEngine_PlayPauseStopNeverCoalesced(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	release := make(chan struct{})
	mock := render.NewMock()
	info := media.Info{
		Duration: 30 * time.Second,
		Tracks:   []media.Track{{Type: media.Audio}},
	}
	factory := func(media.Type) (render.Renderer, error) {
		<-release
		return mock, nil
	}
	openC := e.Open(info, emptySource{}, factory)

	completions := []*Completion{
		e.Play(),
		e.Pause(),
		e.Play(),
		e.Stop(),
	}
	close(release)

	if err := wait(t, openC); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i, c := range completions {
		if err := wait(t, c); err != nil {
			t.Errorf("command %d completion = %v, want nil", i, err)
		}
	}

	if mock.PlayCalls() != 2 || mock.PauseCalls() != 1 || mock.StopCalls() != 1 {
		t.Errorf("renderer calls = play %d, pause %d, stop %d, want 2/1/1",
			mock.PlayCalls(), mock.PauseCalls(), mock.StopCalls())
	}
	if e.State() != StatusStopped {
		t.Errorf("State() = %v, want Stopped", e.State())
	}
}

func TestEngine_RendererPanicNotFatal(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	panicky := render.NewMock()
	info := media.Info{
		Duration: 10 * time.Second,
		Tracks:   []media.Track{{Type: media.Audio}},
	}
	factory := func(media.Type) (render.Renderer, error) { return panicky, nil }
	if err := wait(t, e.Open(info, emptySource{}, factory)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Renderer capability calls panic; commands must still apply.
	if err := wait(t, e.Play()); err != nil {
		t.Errorf("Play with faulty renderer = %v, want nil", err)
	}
	if e.State() != StatusPlaying {
		t.Errorf("State() = %v, want Playing despite renderer fault", e.State())
	}
}

func TestEngine_CloseMedia(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	mock := openMedia(t, e, 10*time.Second)

	if err := wait(t, e.Play()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := wait(t, e.CloseMedia()); err != nil {
		t.Fatalf("CloseMedia failed: %v", err)
	}

	if e.State() != StatusClosed {
		t.Errorf("State() = %v, want Closed", e.State())
	}
	if e.Position() != 0 || e.Duration() != 0 {
		t.Error("clock not reset by CloseMedia")
	}
	if mock.CloseCalls() != 1 {
		t.Errorf("renderer Close calls = %d, want 1", mock.CloseCalls())
	}

	// The engine is reusable after close-media.
	openMedia(t, e, 5*time.Second)
	if e.State() != StatusStopped {
		t.Errorf("State() = %v after reopen, want Stopped", e.State())
	}
}

func TestEngine_EndOfStream(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e := New(Options{Logger: quietLogger(), TickInterval: 5 * time.Millisecond})
		defer e.Close()
		mock := openMedia(t, e, 100*time.Millisecond)

		if err := wait(t, e.Play()); err != nil {
			t.Fatalf("Play failed: %v", err)
		}

		time.Sleep(300 * time.Millisecond)
		synctest.Wait()

		if e.State() != StatusEnded {
			t.Fatalf("State() = %v, want Ended", e.State())
		}
		if e.Clock().IsPlaying() {
			t.Error("clock still running at end of stream")
		}
		if got := e.Position(); got != 100*time.Millisecond {
			t.Errorf("Position() = %v, want clamped at 100ms", got)
		}

		// A bare Play at end of stream is a no-op.
		if err := wait(t, e.Play()); err != nil {
			t.Errorf("Play at EOS = %v, want nil", err)
		}
		if e.State() != StatusEnded {
			t.Errorf("State() = %v, want still Ended", e.State())
		}

		// Seeking away re-arms playback.
		if err := wait(t, e.Seek(0)); err != nil {
			t.Fatalf("Seek failed: %v", err)
		}
		if e.State() != StatusPaused {
			t.Errorf("State() = %v after seek from EOS, want Paused", e.State())
		}
		if err := wait(t, e.Play()); err != nil {
			t.Fatalf("Play after seek failed: %v", err)
		}
		if e.State() != StatusPlaying {
			t.Errorf("State() = %v, want Playing", e.State())
		}
		_ = mock
	})
}

func TestEngine_StateChangesPublishedOncePerChange(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	var mu sync.Mutex
	var states []Status
	h, err := e.Subscribe(func(pub bus.Publisher, _ string) {
		mu.Lock()
		states = append(states, pub.(*Props).State())
		mu.Unlock()
	}, PropState)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer h.Close()

	openMedia(t, e, 10*time.Second)
	if err := wait(t, e.Play()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	// Redundant command: no state change, no notification.
	if err := wait(t, e.Play()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusOpening, StatusStopped, StatusPlaying}
	if len(states) != len(want) {
		t.Fatalf("state notifications = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state notifications = %v, want %v", states, want)
		}
	}
}

func TestEngine_SubscribeUIRunsOffWorker(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e := New(Options{Logger: quietLogger()})
		defer e.Close()

		notified := make(chan string, 8)
		h, err := e.SubscribeUI(0, func(_ bus.Publisher, property string) {
			notified <- property
		}, PropDuration)
		if err != nil {
			t.Fatalf("SubscribeUI failed: %v", err)
		}
		defer h.Close()

		openMedia(t, e, 10*time.Second)

		if got := <-notified; got != PropDuration {
			t.Errorf("property = %q, want Duration", got)
		}
	})
}

func TestEngine_CommandsAfterCloseRejected(t *testing.T) {
	e := newTestEngine()
	openMedia(t, e, 10*time.Second)

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := wait(t, e.Play()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Play after Close = %v, want ErrEngineClosed", err)
	}
}

func TestEngine_ConcurrentCommandsSerialized(t *testing.T) {
	e := newTestEngine()
	defer e.Close()
	openMedia(t, e, time.Minute)

	var wg sync.WaitGroup
	var completions sync.Map
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 25 {
				var c *Completion
				switch j % 4 {
				case 0:
					c = e.Play()
				case 1:
					c = e.Pause()
				case 2:
					c = e.Seek(time.Duration(j) * time.Second)
				case 3:
					c = e.Stop()
				}
				completions.Store([2]int{i, j}, c)
			}
		}(i)
	}
	wg.Wait()

	// Every completion resolves, and the final state is one of the states
	// some total order of the submitted commands can produce.
	completions.Range(func(_, v any) bool {
		if err := wait(t, v.(*Completion)); err != nil {
			t.Errorf("completion = %v, want nil", err)
		}
		return true
	})

	switch st := e.State(); st {
	case StatusPlaying, StatusPaused, StatusStopped:
	default:
		t.Errorf("State() = %v, not reachable by any command order", st)
	}
}
