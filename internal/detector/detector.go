// Package detector turns unreliable point samples of the game into a stream
// of board snapshots, one per new active piece, and predicts the hidden piece
// that follows the preview when the current bag allows it.
package detector

import (
	"slices"
	"time"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/metrics"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// Phase is the detector's view of the piece cycle.
type Phase string

const (
	// PhaseActive means a piece is in play.
	PhaseActive Phase = "active"
	// PhaseLockPending means the current piece just disappeared. This is
	// usually a lock or line clear animation, but may be the end of a bag.
	PhaseLockPending Phase = "lock_pending"
	// PhaseBagBoundary means no piece has been in play for long enough to
	// treat the preview as the start of a fresh bag.
	PhaseBagBoundary Phase = "bag_boundary"
)

var allPhases = []string{string(PhaseActive), string(PhaseLockPending), string(PhaseBagBoundary)}

// DefaultBoundaryAfter is how long the current piece must stay absent
// before a bag boundary is assumed.
const DefaultBoundaryAfter = 750 * time.Millisecond

// Event is what the detector hands downstream: a snapshot, or the terminal
// exit signal once the game process is gone.
type Event struct {
	Snapshot board.Snapshot
	Exit     bool
}

// Options tune the detector.
type Options struct {
	// BoundaryAfter is how long the current piece must stay absent before
	// the preview is sampled as a bag boundary.
	BoundaryAfter time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Detector is the producer stage. It owns its bag state and is not safe for
// concurrent use; exactly one goroutine calls Poll.
type Detector struct {
	reader Reader
	opts   Options

	phase        Phase
	pendingSince time.Time
	bag          BagState

	last    board.Snapshot
	hasLast bool
	exited  bool
}

// New creates a detector reading from r. It starts in the lock-pending
// phase: until a piece shows up it cannot tell a clear animation from a
// game that has not started.
func New(r Reader, opts Options) *Detector {
	if opts.BoundaryAfter <= 0 {
		opts.BoundaryAfter = DefaultBoundaryAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Detector{
		reader: r,
		opts:   opts,
		bag:    newBagState(),
	}
	d.setPhase(PhaseLockPending)
	d.pendingSince = opts.Now()
	return d
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase {
	return d.phase
}

// Bag returns a copy of the bag state.
func (d *Detector) Bag() BagState {
	return d.bag.clone()
}

// Poll performs one read cycle. It returns an event and true when a new
// snapshot was confirmed or the process exited; otherwise false. Read
// failures only abort the current tick.
func (d *Detector) Poll() (Event, bool) {
	if d.exited {
		return Event{Exit: true}, true
	}
	metrics.Polls.Inc()

	if !d.reader.Alive() {
		d.exited = true
		events.Emit("warning", "process.exited", "game process is no longer running", nil)
		return Event{Exit: true}, true
	}

	current, err := d.reader.CurrentPiece()
	if err != nil {
		d.absorb(err)
		return Event{}, false
	}

	if !current.Valid {
		d.pieceAbsent()
		return Event{}, false
	}
	return d.piecePresent(current)
}

func (d *Detector) absorb(err error) {
	metrics.ReadFailures.WithLabelValues(classify(err)).Inc()
}

func (d *Detector) setPhase(p Phase) {
	d.phase = p
	metrics.SetPhase(string(p), allPhases)
}

func (d *Detector) pieceAbsent() {
	switch d.phase {
	case PhaseActive:
		d.setPhase(PhaseLockPending)
		d.pendingSince = d.opts.Now()
		events.Emit("debug", "detector.lock_pending", "", map[string]interface{}{
			"last_piece": d.last.Current.String(),
		})

	case PhaseLockPending:
		if d.opts.Now().Sub(d.pendingSince) < d.opts.BoundaryAfter {
			return
		}
		preview, err := d.reader.PreviewQueue()
		if err != nil {
			d.absorb(err)
			return
		}
		d.bag.boundary(preview)
		d.setPhase(PhaseBagBoundary)
		events.Emit("info", "detector.bag_boundary", "", map[string]interface{}{
			"preview": piece.FormatSequence(preview),
			"unseen":  d.bag.Unseen.String(),
		})

	case PhaseBagBoundary:
		// The preview can still change while idle, e.g. when a new game
		// deals its first bag. Keep the boundary anchored to what is shown.
		preview, err := d.reader.PreviewQueue()
		if err != nil {
			d.absorb(err)
			return
		}
		if !slices.Equal(preview, d.bag.LastPreview) {
			d.bag.boundary(preview)
		}
	}
}

func (d *Detector) piecePresent(current board.Piece) (Event, bool) {
	switch d.phase {
	case PhaseActive:
		if d.hasLast && d.last.Current == current {
			return Event{}, false
		}

	case PhaseLockPending:
		if d.hasLast && d.last.Current == current {
			// Same type after a short gap: a new piece only if the stack
			// changed underneath it, otherwise the gap was a read blip.
			cols, err := d.reader.Columns()
			if err != nil {
				d.absorb(err)
				return Event{}, false
			}
			if cols == d.last.Columns {
				d.setPhase(PhaseActive)
				return Event{}, false
			}
		}
	}

	snap, ok := d.build(current)
	if !ok {
		return Event{}, false
	}

	d.last = snap
	d.hasLast = true
	d.setPhase(PhaseActive)

	metrics.Snapshots.Inc()
	events.Emit("info", "detector.snapshot", "", map[string]interface{}{
		"current":   snap.Current.String(),
		"held":      snap.Held.String(),
		"next":      piece.FormatSequence(snap.NextQueue),
		"predicted": snap.Predicted,
		"filled":    snap.Columns.Count(),
	})
	return Event{Snapshot: snap.Clone()}, true
}

// build reads the rest of the sample and runs bag prediction. All reads
// happen before the bag state is touched so a failed read leaves it intact.
func (d *Detector) build(current board.Piece) (board.Snapshot, bool) {
	cols, err := d.reader.Columns()
	if err != nil {
		d.absorb(err)
		return board.Snapshot{}, false
	}
	held, err := d.reader.HeldPiece()
	if err != nil {
		d.absorb(err)
		return board.Snapshot{}, false
	}
	preview, err := d.reader.PreviewQueue()
	if err != nil {
		d.absorb(err)
		return board.Snapshot{}, false
	}

	next := slices.Clone(preview)
	predicted, ok, reset := d.bag.observe(preview)
	if ok {
		next = append(next, predicted)
		metrics.Predictions.Inc()
		events.Emit("debug", "bag.predicted", "", map[string]interface{}{
			"piece": predicted.String(),
		})
	}
	if reset {
		events.Emit("debug", "bag.reset", "", nil)
	}

	return board.Snapshot{
		Columns:   cols,
		Current:   current,
		Held:      held,
		NextQueue: next,
		Predicted: ok,
	}, true
}
