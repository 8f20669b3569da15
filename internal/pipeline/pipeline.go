// Package pipeline wires the three stages together: the detector polling
// the process reader, the broadcaster running searches, and the overlay
// frame loop. Each stage runs in its own goroutine and they meet only at the
// two hand-off queues.
package pipeline

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/pcassist/internal/broadcast"
	"github.com/AaronLay10/pcassist/internal/detector"
	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/geometry"
	"github.com/AaronLay10/pcassist/internal/handoff"
	"github.com/AaronLay10/pcassist/internal/overlay"
	"github.com/AaronLay10/pcassist/internal/solver"
)

// Config holds everything a run needs.
type Config struct {
	Reader    detector.Reader
	Detector  detector.Options
	Oracle    solver.Oracle
	Kernel    geometry.Kernel
	Broadcast broadcast.Options
	// Handoff selects the queue policy for both hand-offs.
	Handoff handoff.Policy
	// PollInterval paces the detector. Zero polls as fast as possible,
	// yielding between polls.
	PollInterval time.Duration
	FPS          int
	Sinks        []overlay.Sink
}

// Pipeline is one assembled run.
type Pipeline struct {
	cfg         Config
	detector    *detector.Detector
	broadcaster *broadcast.Broadcaster
	frames      *overlay.FrameLoop
	snapshots   handoff.Queue[detector.Event]
	payloads    handoff.Queue[broadcast.Message]
}

// New assembles the stages without starting them.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Reader == nil {
		return nil, errors.New("pipeline: no process reader")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("pipeline: no search oracle")
	}

	p := &Pipeline{
		cfg:       cfg,
		snapshots: handoff.New[detector.Event](cfg.Handoff, "snapshots"),
		payloads:  handoff.New[broadcast.Message](cfg.Handoff, "payloads"),
	}
	p.detector = detector.New(cfg.Reader, cfg.Detector)
	p.broadcaster = broadcast.New(cfg.Oracle, cfg.Kernel, cfg.Broadcast, p.payloads)
	p.frames = overlay.NewFrameLoop(p.payloads, cfg.FPS, cfg.Sinks...)
	return p, nil
}

// Latest returns the last payload the overlay picked up.
func (p *Pipeline) Latest() (broadcast.Message, bool) {
	return p.frames.Latest()
}

// Run starts all stages and waits for them. It returns nil once the game
// process exits and every stage has shut down, or the first stage error.
func (p *Pipeline) Run(ctx context.Context) error {
	events.Emit("info", "process.attached", "", map[string]interface{}{
		"handoff": string(p.handoffPolicy()),
		"mode":    string(p.cfg.Broadcast.Mode),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.produce(gctx)
	})
	g.Go(func() error {
		return p.broadcaster.Run(gctx, p.snapshots)
	})
	g.Go(func() error {
		return p.frames.Run(gctx)
	})
	return g.Wait()
}

func (p *Pipeline) handoffPolicy() handoff.Policy {
	if p.cfg.Handoff == handoff.FIFO {
		return handoff.FIFO
	}
	return handoff.Latest
}

// produce is the detector loop. The exit event is the last thing it hands
// off.
func (p *Pipeline) produce(ctx context.Context) error {
	defer p.snapshots.Close()

	var tick <-chan time.Time
	if p.cfg.PollInterval > 0 {
		t := time.NewTicker(p.cfg.PollInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ev, ok := p.detector.Poll(); ok {
			p.snapshots.Put(ev)
			if ev.Exit {
				return nil
			}
		}

		if tick == nil {
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}

// Run assembles and runs a pipeline in one call.
func Run(ctx context.Context, cfg Config) error {
	p, err := New(cfg)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}
