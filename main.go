package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/reel/internal/bus"
	"github.com/llehouerou/reel/internal/config"
	"github.com/llehouerou/reel/internal/engine"
	"github.com/llehouerou/reel/internal/media"
	"github.com/llehouerou/reel/internal/mpris"
	"github.com/llehouerou/reel/internal/render"
	"github.com/llehouerou/reel/internal/render/beepout"
	"github.com/llehouerou/reel/internal/state"
)

const toneBlockLen = 20 * time.Millisecond

// toneSource synthesizes a sine tone on demand, one block per driver query.
// It stands in for a decoding pipeline so the engine can be driven without
// media files.
type toneSource struct {
	freq       float64
	sampleRate int
	duration   time.Duration
}

func (s *toneSource) BlockAt(t media.Type, pos time.Duration) (*media.Block, bool) {
	if t != media.Audio || pos >= s.duration {
		return nil, false
	}

	blockDur := toneBlockLen
	if pos+blockDur > s.duration {
		blockDur = s.duration - pos
	}

	n := int(float64(s.sampleRate) * blockDur.Seconds())
	frames := make([][2]float64, n)
	for i := range frames {
		at := pos.Seconds() + float64(i)/float64(s.sampleRate)
		v := 0.2 * math.Sin(2*math.Pi*s.freq*at)
		frames[i] = [2]float64{v, v}
	}

	return &media.Block{
		Type:     media.Audio,
		Start:    pos,
		Duration: blockDur,
		Payload:  frames,
	}, true
}

type host struct {
	cfg      *config.Config
	log      *logrus.Logger
	engine   *engine.Engine
	stateMgr *state.Manager
	mpris    *mpris.Adapter
	sub      *bus.Handle

	uri string
}

func newHost() (*host, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	stateMgr, err := state.Open()
	if err != nil {
		return nil, err
	}

	h := &host{
		cfg:      cfg,
		log:      log,
		stateMgr: stateMgr,
	}
	h.engine = engine.New(engine.Options{
		TickInterval: cfg.TickInterval(),
		Logger:       log,
	})

	// Persist the session on every state or position change; the state
	// manager debounces the writes.
	h.sub, err = h.engine.Subscribe(func(_ bus.Publisher, _ string) {
		h.saveSession()
	}, engine.PropState, engine.PropPosition)
	if err != nil {
		h.close()
		return nil, err
	}

	if cfg.Mpris {
		h.mpris, err = mpris.New(h.engine)
		if err != nil {
			log.WithError(err).Warn("mpris unavailable")
			h.mpris = nil
		}
	}

	return h, nil
}

func (h *host) saveSession() {
	if h.uri == "" {
		return
	}
	h.stateMgr.SaveSession(state.Session{
		URI:      h.uri,
		Position: h.engine.Position(),
		Speed:    h.engine.Speed(),
		Status:   strings.ToLower(h.engine.State().String()),
	})
}

func (h *host) close() {
	if h.sub != nil {
		h.sub.Close()
	}
	if h.mpris != nil {
		_ = h.mpris.Close()
	}
	_ = h.engine.Close()
	_ = h.stateMgr.Close()
}

// openTone opens a synthetic tone as the current media and restores the
// saved position when it refers to the same tone.
func (h *host) openTone(seconds float64) error {
	uri := fmt.Sprintf("tone:440?d=%g", seconds)
	duration := time.Duration(seconds * float64(time.Second))

	source := &toneSource{
		freq:       440,
		sampleRate: h.cfg.SampleRate,
		duration:   duration,
	}
	info := media.Info{
		URI:      uri,
		Duration: duration,
		Tracks:   []media.Track{{Type: media.Audio}},
	}
	factory := func(t media.Type) (render.Renderer, error) {
		if t != media.Audio {
			return nil, fmt.Errorf("no renderer for %s", t)
		}
		r, err := beepout.New(h.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	if err := h.engine.Open(info, source, factory).Wait(context.Background()); err != nil {
		return err
	}
	h.uri = uri

	if h.cfg.RestoreSession {
		if s, err := h.stateMgr.GetSession(); err == nil && s != nil && s.URI == uri {
			if err := h.engine.Seek(s.Position).Wait(context.Background()); err != nil {
				h.log.WithError(err).Warn("session restore failed")
			}
			_ = h.engine.SetSpeed(s.Speed).Wait(context.Background())
		}
	}
	return nil
}

func (h *host) printStatus() {
	fmt.Printf("%s  %s / %s  x%.2f\n",
		h.engine.State(),
		formatDuration(h.engine.Position()),
		formatDuration(h.engine.Duration()),
		h.engine.Speed())
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

func parseSeconds(args []string, fallback float64) float64 {
	if len(args) == 0 {
		return fallback
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fallback
	}
	return v
}

func (h *host) run() error {
	ctx := context.Background()
	fmt.Println("commands: open [sec], play, pause, stop, seek <sec>, speed <factor>, status, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "open":
			err = h.openTone(parseSeconds(fields[1:], 30))
		case "play":
			err = h.engine.Play().Wait(ctx)
		case "pause":
			err = h.engine.Pause().Wait(ctx)
		case "stop":
			err = h.engine.Stop().Wait(ctx)
		case "seek":
			if len(fields) < 2 {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			err = h.engine.Seek(time.Duration(parseSeconds(fields[1:], 0) * float64(time.Second))).Wait(ctx)
		case "speed":
			if len(fields) < 2 {
				fmt.Println("usage: speed <factor>")
				continue
			}
			err = h.engine.SetSpeed(parseSeconds(fields[1:], 1)).Wait(ctx)
		case "close":
			err = h.engine.CloseMedia().Wait(ctx)
			h.uri = ""
		case "status":
			h.printStatus()
			continue
		case "quit", "q":
			return nil
		default:
			fmt.Printf("unknown command %q\n", fields[0])
			continue
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			h.printStatus()
		}
	}
	return scanner.Err()
}

func main() {
	h, err := newHost()
	if err != nil {
		fmt.Printf("Error initializing: %v\n", err)
		os.Exit(1)
	}
	defer h.close()

	if err := h.run(); err != nil {
		fmt.Printf("Error running: %v\n", err)
		os.Exit(1)
	}
}
