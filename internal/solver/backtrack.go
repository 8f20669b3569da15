package solver

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"slices"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/geometry"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// ErrNodeLimit is returned when a search gives up after visiting its node
// budget. Candidates reported before that are still valid.
var ErrNodeLimit = errors.New("solver: node limit reached")

const (
	// DefaultMaxHeight is the tallest clear the backtracking oracle tries.
	DefaultMaxHeight = 4
	// DefaultNodeLimit bounds a single search.
	DefaultNodeLimit = 2_000_000
)

// Backtrack is a depth-first perfect-clear search over the bottom rows.
//
// It fills a rectangle of the chosen height exactly, placing pieces in
// queue order with an optional one-slot hold. Completed rows are not removed
// during the search, so every placement is reported in the coordinates of
// the board as sampled. States that are known to lead nowhere are memoised
// per search.
type Backtrack struct {
	MaxHeight int
	NodeLimit int
}

// NewBacktrack creates an oracle that visits at most limit nodes per search.
// A limit of zero or less uses DefaultNodeLimit.
func NewBacktrack(limit int) *Backtrack {
	if limit <= 0 {
		limit = DefaultNodeLimit
	}
	return &Backtrack{MaxHeight: DefaultMaxHeight, NodeLimit: limit}
}

// orientation is one distinct footprint of a piece, relative to its
// rotation centre.
type orientation struct {
	rotation geometry.Rotation
	cells    [4][2]int
	minCol   int
	maxCol   int
	minRow   int
	maxRow   int
}

// orientations lists each piece's distinct footprints. Rotations that only
// move the rotation centre (O, and half of I, S, Z) are dropped because the
// search already tries every anchor.
var orientations [piece.Count][]orientation

func init() {
	for _, t := range piece.All {
		seen := make(map[uint16]bool)
		for r := geometry.North; r <= geometry.West; r++ {
			cells := geometry.Rotate(geometry.Shape(t), r)
			o := orientation{rotation: r, minCol: cells[0].Col, maxCol: cells[0].Col, minRow: cells[0].Row, maxRow: cells[0].Row}
			for i, c := range cells {
				o.cells[i] = [2]int{c.Col, c.Row}
				o.minCol, o.maxCol = min(o.minCol, c.Col), max(o.maxCol, c.Col)
				o.minRow, o.maxRow = min(o.minRow, c.Row), max(o.maxRow, c.Row)
			}
			var key uint16
			for _, c := range o.cells {
				key |= 1 << ((c[1]-o.minRow)*4 + (c[0] - o.minCol))
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			orientations[t] = append(orientations[t], o)
		}
	}
}

const visibleBits = board.RepresentableRows * board.Width

var (
	rowsMask = uint64(1)<<visibleBits - 1
	firstCol uint64
	lastCol  uint64
)

func init() {
	for row := 0; row < board.RepresentableRows; row++ {
		firstCol |= bit(0, row)
		lastCol |= bit(board.Width-1, row)
	}
}

func bit(col, row int) uint64 {
	return 1 << (row*board.Width + col)
}

// Search implements Oracle.
func (b *Backtrack) Search(ctx context.Context, q board.Query, opts Options, fn func([]geometry.Placement) Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, t := range q.Queue {
		if !t.Valid() {
			return fmt.Errorf("solver: invalid piece in queue: %w", &piece.MalformedError{ID: int(t)})
		}
	}

	occ := q.Occupancy & rowsMask
	top := 0
	if occ != 0 {
		top = (63-bits.LeadingZeros64(occ))/board.Width + 1
	}
	filled := bits.OnesCount64(occ)

	maxHeight := b.MaxHeight
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	maxHeight = min(maxHeight, board.RepresentableRows)

	s := &search{
		ctx:   ctx,
		queue: q.Queue,
		opts:  opts,
		limit: b.NodeLimit,
		fn:    fn,
	}
	for h := max(top, 1); h <= maxHeight; h++ {
		empty := h*board.Width - filled
		if empty == 0 || empty%4 != 0 {
			continue
		}
		if empty/4 > len(q.Queue) {
			break
		}
		s.reset(h)
		s.dfs(occ, 0, noHold)
		if s.err != nil {
			return s.err
		}
		if s.stop {
			return nil
		}
	}
	return nil
}

const noHold int8 = -1

type state struct {
	board uint64
	next  int
	hold  int8
}

type search struct {
	ctx   context.Context
	queue []piece.Type
	opts  Options
	limit int
	fn    func([]geometry.Placement) Control

	height int
	full   uint64
	nodes  int
	failed map[state]struct{}
	path   []geometry.Placement
	stop   bool
	err    error
}

func (s *search) reset(h int) {
	s.height = h
	s.full = uint64(1)<<(h*board.Width) - 1
	s.failed = make(map[state]struct{})
	s.path = s.path[:0]
}

// dfs reports whether any candidate was found below this state.
func (s *search) dfs(b uint64, next int, hold int8) bool {
	if s.stop {
		return false
	}
	s.nodes++
	if s.limit > 0 && s.nodes > s.limit {
		s.stop, s.err = true, ErrNodeLimit
		return false
	}
	if s.nodes&0x3ff == 0 {
		if err := s.ctx.Err(); err != nil {
			s.stop, s.err = true, err
			return false
		}
	}

	if b == s.full {
		if s.fn(slices.Clone(s.path)) == Abort {
			s.stop = true
		}
		return true
	}

	key := state{board: b, next: next, hold: hold}
	if _, ok := s.failed[key]; ok {
		return false
	}
	if !s.regionsFit(b) {
		s.failed[key] = struct{}{}
		return false
	}

	found := false
	if next < len(s.queue) {
		if s.place(b, s.queue[next], next+1, hold) {
			found = true
		}

		canHold := s.opts.AllowHold && (len(s.path) > 0 || s.opts.AllowInitialSwap)
		switch {
		case !canHold || s.stop:
		case hold != noHold:
			held := piece.Type(hold)
			if held != s.queue[next] && s.place(b, held, next+1, int8(s.queue[next])) {
				found = true
			}
		case next+1 < len(s.queue):
			if s.place(b, s.queue[next+1], next+2, int8(s.queue[next])) {
				found = true
			}
		}
	}

	if !found && !s.stop {
		s.failed[key] = struct{}{}
	}
	return found
}

// place tries every resting position of t and recurses.
func (s *search) place(b uint64, t piece.Type, next int, hold int8) bool {
	found := false
	for i := range orientations[t] {
		o := &orientations[t][i]
		for y := -o.minRow; y+o.maxRow < s.height; y++ {
			for x := -o.minCol; x+o.maxCol < board.Width; x++ {
				m, ok := s.fit(b, o, x, y)
				if !ok {
					continue
				}
				s.path = append(s.path, geometry.Placement{Piece: t, Rotation: o.rotation, X: x, Y: y})
				if s.dfs(b|m, next, hold) {
					found = true
				}
				s.path = s.path[:len(s.path)-1]
				if s.stop {
					return found
				}
			}
		}
	}
	return found
}

// fit returns the piece mask if o at (x, y) is free, resting, and reachable
// under the placeability rule.
func (s *search) fit(b uint64, o *orientation, x, y int) (uint64, bool) {
	var m uint64
	for _, c := range o.cells {
		m |= bit(c[0]+x, c[1]+y)
	}
	if b&m != 0 {
		return 0, false
	}

	supported := false
	for _, c := range o.cells {
		col, row := c[0]+x, c[1]+y
		if row == 0 || b&bit(col, row-1) != 0 {
			supported = true
			break
		}
	}
	if !supported {
		return 0, false
	}

	if s.opts.Placeability == HardDrop {
		for _, c := range o.cells {
			col := c[0] + x
			for row := c[1] + y + 1; row < s.height; row++ {
				if b&bit(col, row) != 0 {
					return 0, false
				}
			}
		}
	}
	return m, true
}

// regionsFit reports whether every enclosed empty region can still be tiled
// by whole pieces, i.e. has a size divisible by four.
func (s *search) regionsFit(b uint64) bool {
	empty := s.full &^ b
	for empty != 0 {
		region := empty & -empty
		for {
			grown := region |
				(region>>1)&^lastCol |
				(region<<1)&^firstCol |
				region<<board.Width |
				region>>board.Width
			grown &= empty
			if grown == region {
				break
			}
			region = grown
		}
		if bits.OnesCount64(region)%4 != 0 {
			return false
		}
		empty &^= region
	}
	return true
}
