// Package overlay is the consumer end of the pipeline: a fixed-rate frame
// loop that picks up at most one broadcast per frame and hands it to the
// attached sinks.
package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/AaronLay10/pcassist/internal/broadcast"
	"github.com/AaronLay10/pcassist/internal/handoff"
	"github.com/AaronLay10/pcassist/internal/metrics"
)

// DefaultFPS matches the game's render rate.
const DefaultFPS = 60

// Sink displays or forwards overlay messages. Show is called from the frame
// loop and should not block for long.
type Sink interface {
	Name() string
	Show(msg broadcast.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(broadcast.Message) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Show(msg broadcast.Message) error { return s.Fn(msg) }

// FrameLoop drains the overlay hand-off once per frame.
type FrameLoop struct {
	in       handoff.Queue[broadcast.Message]
	interval time.Duration
	sinks    []Sink

	mu        sync.RWMutex
	latest    broadcast.Message
	hasLatest bool
}

// NewFrameLoop creates a loop ticking fps times per second. fps <= 0 uses
// DefaultFPS.
func NewFrameLoop(in handoff.Queue[broadcast.Message], fps int, sinks ...Sink) *FrameLoop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &FrameLoop{
		in:       in,
		interval: time.Second / time.Duration(fps),
		sinks:    sinks,
	}
}

// Run ticks until the exit message arrives or ctx ends. The exit message is
// delivered to sinks before Run returns nil.
func (f *FrameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if f.Tick() {
				return nil
			}
		}
	}
}

// Tick runs one frame: a non-blocking take and delivery to every sink. It
// reports true once the exit message has been seen.
func (f *FrameLoop) Tick() bool {
	metrics.Frames.Inc()
	msg, ok := f.in.TryTake()
	if !ok {
		return false
	}

	if !msg.Exit {
		f.mu.Lock()
		f.latest = msg
		f.hasLatest = true
		f.mu.Unlock()
	}

	for _, s := range f.sinks {
		if err := s.Show(msg); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
		}
	}
	return msg.Exit
}

// Latest returns the last payload message shown, if any.
func (f *FrameLoop) Latest() (broadcast.Message, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.hasLatest
}
