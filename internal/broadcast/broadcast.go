// Package broadcast runs the search oracle on every snapshot and relays the
// result to the overlay, suppressing repeats of the solution already shown.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/detector"
	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/geometry"
	"github.com/AaronLay10/pcassist/internal/handoff"
	"github.com/AaronLay10/pcassist/internal/metrics"
	"github.com/AaronLay10/pcassist/internal/piece"
	"github.com/AaronLay10/pcassist/internal/solver"
)

// Mode selects how candidates are chosen.
type Mode string

const (
	// First takes the oracle's first candidate and aborts the search.
	First Mode = "first"
	// Commit keeps following the solution already shown: candidates are
	// enumerated until one continues it, falling back to the first.
	Commit Mode = "commit"
)

// ParseMode parses a config value. Empty means First.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", First:
		return First, nil
	case Commit:
		return Commit, nil
	}
	return "", fmt.Errorf("unknown solver mode: %q", s)
}

// Options configure the broadcaster.
type Options struct {
	Solver solver.Options
	Mode   Mode
	// Timeout bounds each search. Zero means no bound beyond the oracle's own.
	Timeout time.Duration
	// MaxCandidates caps enumeration in Commit mode. Zero means no cap.
	MaxCandidates int
}

// Message is one hand-off to the overlay: a payload to draw (empty clears
// the overlay) or the terminal exit signal.
type Message struct {
	Seq      uint64               `json:"seq"`
	Payload  geometry.Payload     `json:"payload"`
	Solution []geometry.Placement `json:"solution,omitempty"`
	Exit     bool                 `json:"exit,omitempty"`
}

// Broadcaster is the solver stage. It is driven by a single goroutine.
type Broadcaster struct {
	oracle solver.Oracle
	kernel geometry.Kernel
	opts   Options
	out    handoff.Queue[Message]

	// last is the solution currently shown; nil means nothing is shown.
	last []geometry.Placement
	seq  uint64
}

// New creates a broadcaster that publishes to out.
func New(oracle solver.Oracle, kernel geometry.Kernel, opts Options, out handoff.Queue[Message]) *Broadcaster {
	if opts.Mode == "" {
		opts.Mode = First
	}
	return &Broadcaster{
		oracle: oracle,
		kernel: kernel,
		opts:   opts,
		out:    out,
	}
}

// Last returns the solution currently shown, or nil.
func (b *Broadcaster) Last() []geometry.Placement {
	return slices.Clone(b.last)
}

// Run consumes detector events until the exit event, the input closing, or
// ctx ending. The exit event is forwarded so the overlay stops too.
func (b *Broadcaster) Run(ctx context.Context, in handoff.Queue[detector.Event]) error {
	for {
		ev, err := in.Take(ctx)
		if errors.Is(err, handoff.ErrClosed) {
			b.exit()
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Exit {
			b.exit()
			return nil
		}

		if _, _, err := b.Handle(ctx, ev.Snapshot); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			events.Emit("error", "solver.error", err.Error(), nil)
		}
	}
}

func (b *Broadcaster) exit() {
	b.seq++
	b.out.Put(Message{Seq: b.seq, Exit: true})
}

// Handle searches one snapshot and broadcasts if the outcome differs from
// what is shown. It returns the message and true when something was sent.
// An oracle failure leaves the shown solution untouched.
func (b *Broadcaster) Handle(ctx context.Context, snap board.Snapshot) (Message, bool, error) {
	q := board.ToQuery(snap)

	candidate, err := b.search(ctx, q)
	if err != nil {
		metrics.Searches.WithLabelValues("error").Inc()
		return Message{}, false, err
	}

	if candidate == nil {
		metrics.Searches.WithLabelValues("unsolvable").Inc()
		events.Emit("debug", "solver.unsolvable", "", map[string]interface{}{
			"queue": piece.FormatSequence(q.Queue),
		})
		if b.last == nil {
			metrics.Broadcasts.WithLabelValues("suppressed").Inc()
			return Message{}, false, nil
		}
		b.last = nil
		msg := b.send(geometry.Payload{}, nil)
		metrics.Broadcasts.WithLabelValues("cleared").Inc()
		events.Emit("info", "overlay.cleared", "", map[string]interface{}{
			"seq": msg.Seq,
		})
		return msg, true, nil
	}

	metrics.Searches.WithLabelValues("solved").Inc()
	if slices.Equal(candidate, b.last) {
		metrics.Broadcasts.WithLabelValues("suppressed").Inc()
		return Message{}, false, nil
	}

	b.last = candidate
	msg := b.send(b.kernel.Payload(candidate), slices.Clone(candidate))
	metrics.Broadcasts.WithLabelValues("payload").Inc()
	first := candidate[0]
	events.Emit("info", "overlay.broadcast", "", map[string]interface{}{
		"seq":      msg.Seq,
		"piece":    first.Piece.String(),
		"rotation": first.Rotation.String(),
		"x":        first.X,
		"y":        first.Y,
		"length":   len(candidate),
	})
	return msg, true, nil
}

func (b *Broadcaster) send(payload geometry.Payload, solution []geometry.Placement) Message {
	b.seq++
	msg := Message{Seq: b.seq, Payload: payload, Solution: solution}
	b.out.Put(msg)
	return msg
}

// search runs the oracle and picks a candidate according to the mode. A
// timeout or node limit ends the search but keeps what was found.
func (b *Broadcaster) search(ctx context.Context, q board.Query) ([]geometry.Placement, error) {
	sctx := ctx
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	var continuation []geometry.Placement
	if b.opts.Mode == Commit && len(b.last) > 1 {
		continuation = b.last[1:]
	}

	var chosen []geometry.Placement
	seen := 0
	start := time.Now()
	err := b.oracle.Search(sctx, q, b.opts.Solver, func(candidate []geometry.Placement) solver.Control {
		if len(candidate) == 0 {
			return solver.Continue
		}
		seen++
		if chosen == nil {
			chosen = candidate
		}
		if continuation == nil {
			return solver.Abort
		}
		if slices.Equal(candidate, continuation) {
			chosen = candidate
			return solver.Abort
		}
		if b.opts.MaxCandidates > 0 && seen >= b.opts.MaxCandidates {
			return solver.Abort
		}
		return solver.Continue
	})
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, solver.ErrNodeLimit) {
			return nil, fmt.Errorf("search: %w", err)
		}
		events.Emit("warning", "solver.error", "search cut short", map[string]interface{}{
			"error":      err.Error(),
			"candidates": seen,
		})
	}
	return slices.Clone(chosen), nil
}
