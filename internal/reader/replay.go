// Package reader provides in-repo Process Reader implementations: a replay
// of a recorded sample script and a fixed static sample. The live
// memory-reading adapter runs outside this module and reaches the pipeline
// through the mqtt package.
package reader

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/detector"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// Frame is one recorded sample in a replay script.
//
// Pieces are letters, "" for none. Rows are drawn top-down with '#' for a
// filled cell; the last row is the bottom of the board. Repeat holds the
// frame for that many polls (default 1). Fail makes the current-piece read
// fail for the frame ("unavailable" or "malformed").
type Frame struct {
	Current string   `yaml:"current"`
	Held    string   `yaml:"held"`
	Preview string   `yaml:"preview"`
	Rows    []string `yaml:"rows"`
	Repeat  int      `yaml:"repeat"`
	Fail    string   `yaml:"fail"`
	Exit    bool     `yaml:"exit"`
}

// Script is the on-disk replay format. Step is the recorded sampling
// interval; it drives the replay clock.
type Script struct {
	Version int           `yaml:"version"`
	Step    time.Duration `yaml:"step"`
	Frames  []Frame       `yaml:"frames"`
}

// DefaultStep is one frame of the game at 60 fps.
const DefaultStep = time.Second / 60

// LoadReplay reads a replay script from a YAML file.
func LoadReplay(path string) (*Replay, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if s.Version != 1 {
		return nil, fmt.Errorf("unsupported replay version: %d", s.Version)
	}
	r, err := NewReplay(s.Frames)
	if err != nil {
		return nil, err
	}
	if s.Step > 0 {
		r.Step = s.Step
	}
	return r, nil
}

type tick struct {
	sample board.RawSample
	fail   error
	exit   bool
}

// Replay serves frames in order, advancing one tick per Alive call (the
// detector checks liveness once per poll). When the script runs out the
// process is reported as exited.
//
// Now is a clock that advances by Step per tick, so timing-dependent
// detection behaves the same however fast the replay is polled.
type Replay struct {
	Step time.Duration

	mu    sync.Mutex
	ticks []tick
	pos   int
	epoch time.Time
}

// NewReplay compiles frames into ticks. Frames are validated up front so a
// bad script fails at load time rather than mid-run.
func NewReplay(frames []Frame) (*Replay, error) {
	r := &Replay{Step: DefaultStep, pos: -1, epoch: time.Unix(0, 0).UTC()}
	for i, f := range frames {
		t, err := compile(f)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		n := max(f.Repeat, 1)
		for j := 0; j < n; j++ {
			r.ticks = append(r.ticks, t)
		}
	}
	return r, nil
}

func compile(f Frame) (tick, error) {
	var t tick
	if f.Exit {
		t.exit = true
		return t, nil
	}

	var err error
	if t.sample.Current, err = optional(f.Current); err != nil {
		return t, fmt.Errorf("current: %w", err)
	}
	if t.sample.Held, err = optional(f.Held); err != nil {
		return t, fmt.Errorf("held: %w", err)
	}
	if t.sample.Preview, err = piece.ParseSequence(f.Preview); err != nil {
		return t, fmt.Errorf("preview: %w", err)
	}
	if len(t.sample.Preview) > board.PreviewSize {
		return t, fmt.Errorf("preview: %d pieces, at most %d are shown", len(t.sample.Preview), board.PreviewSize)
	}
	if t.sample.Columns, err = ParseRows(f.Rows); err != nil {
		return t, err
	}

	switch f.Fail {
	case "":
	case "unavailable":
		t.fail = detector.ErrUnavailable
	case "malformed":
		t.fail = &piece.MalformedError{ID: -1}
	default:
		return t, fmt.Errorf("unknown failure kind: %q", f.Fail)
	}
	return t, nil
}

func optional(s string) (board.Piece, error) {
	if strings.TrimSpace(s) == "" {
		return board.None, nil
	}
	t, err := piece.FromLetter(s)
	if err != nil {
		return board.None, err
	}
	return board.Some(t), nil
}

// ParseRows converts a top-down text drawing of the bottom of the board into
// columns. Each rune is one column: '.' and ' ' are empty, anything else
// ('#', a letter, a block character) is filled.
func ParseRows(rows []string) (board.Columns, error) {
	var cols board.Columns
	if len(rows) > board.Height {
		return cols, fmt.Errorf("rows: %d rows, board has %d", len(rows), board.Height)
	}
	for i, line := range rows {
		cells := []rune(line)
		if len(cells) > board.Width {
			return cols, fmt.Errorf("rows: line %d is %d wide, board has %d columns", i, len(cells), board.Width)
		}
		row := len(rows) - 1 - i
		for col, ch := range cells {
			switch ch {
			case '.', ' ':
			default:
				cols.Set(col, row, true)
			}
		}
	}
	return cols, nil
}

func (r *Replay) current() (tick, bool) {
	if r.pos < 0 || r.pos >= len(r.ticks) {
		return tick{}, false
	}
	return r.ticks[r.pos], true
}

// Alive advances to the next tick and reports whether the script is still
// running.
func (r *Replay) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos < len(r.ticks) {
		r.pos++
	}
	t, ok := r.current()
	return ok && !t.exit
}

func (r *Replay) CurrentPiece() (board.Piece, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.current()
	if !ok {
		return board.None, detector.ErrUnavailable
	}
	if t.fail != nil {
		return board.None, t.fail
	}
	return t.sample.Current, nil
}

func (r *Replay) Columns() (board.Columns, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.current()
	if !ok {
		return board.Columns{}, detector.ErrUnavailable
	}
	return t.sample.Columns, nil
}

func (r *Replay) PreviewQueue() ([]piece.Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.current()
	if !ok {
		return nil, detector.ErrUnavailable
	}
	return append([]piece.Type(nil), t.sample.Preview...), nil
}

func (r *Replay) HeldPiece() (board.Piece, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.current()
	if !ok {
		return board.None, detector.ErrUnavailable
	}
	return t.sample.Held, nil
}

// Now returns the replay time of the current tick.
func (r *Replay) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch.Add(time.Duration(max(r.pos, 0)) * r.Step)
}

// Len returns the number of ticks in the script.
func (r *Replay) Len() int {
	return len(r.ticks)
}
