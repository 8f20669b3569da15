// Package board holds the sampled game state and assembles it into solver
// queries.
package board

import (
	"slices"

	"github.com/AaronLay10/pcassist/internal/piece"
)

const (
	// Width is the number of columns on the board.
	Width = 10
	// Height is the number of visible rows sampled from the game.
	Height = 20
	// PreviewSize is the maximum number of pieces shown in the preview.
	PreviewSize = 5
)

// Columns is the occupancy grid, indexed [column][row] with row 0 at the
// bottom. Only the empty/occupied distinction is kept.
type Columns [Width][Height]bool

// Occupied reports whether the cell at (col, row) is filled. Out-of-range
// cells are reported empty.
func (c *Columns) Occupied(col, row int) bool {
	if col < 0 || col >= Width || row < 0 || row >= Height {
		return false
	}
	return c[col][row]
}

// Set fills or clears one cell.
func (c *Columns) Set(col, row int, filled bool) {
	if col < 0 || col >= Width || row < 0 || row >= Height {
		return
	}
	c[col][row] = filled
}

// Count returns the number of filled cells.
func (c *Columns) Count() int {
	n := 0
	for col := range c {
		for _, filled := range c[col] {
			if filled {
				n++
			}
		}
	}
	return n
}

// Piece is an optional piece type.
type Piece struct {
	Type  piece.Type
	Valid bool
}

// Some wraps a present piece.
func Some(t piece.Type) Piece {
	return Piece{Type: t, Valid: true}
}

// None is the absent piece.
var None = Piece{}

func (p Piece) String() string {
	if !p.Valid {
		return "-"
	}
	return p.Type.String()
}

// RawSample is one point-in-time read of the game.
type RawSample struct {
	Current Piece
	Columns Columns
	Preview []piece.Type
	Held    Piece
}

// Snapshot is an immutable board state emitted once per confirmed change of
// the current piece. NextQueue is the preview, possibly extended by one
// predicted piece.
type Snapshot struct {
	Columns   Columns
	Current   Piece
	Held      Piece
	NextQueue []piece.Type
	Predicted bool
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	s.NextQueue = slices.Clone(s.NextQueue)
	return s
}

// Queue returns the solver-facing piece order: the current piece, then the
// held piece, then the next queue in reveal order. Absent pieces are skipped.
func (s Snapshot) Queue() []piece.Type {
	q := make([]piece.Type, 0, len(s.NextQueue)+2)
	if s.Current.Valid {
		q = append(q, s.Current.Type)
	}
	if s.Held.Valid {
		q = append(q, s.Held.Type)
	}
	return append(q, s.NextQueue...)
}
