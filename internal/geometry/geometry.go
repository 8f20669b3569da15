// Package geometry turns an abstract placement into the four cells an overlay
// draws, each tagged with the edges it shares with the rest of its piece.
//
// Coordinates use columns growing to the right and rows growing upward, with
// row 0 at the bottom of the board. This matches the occupancy mask layout in
// package board.
package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/pcassist/internal/piece"
)

// Direction is one of the four sides of a cell.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

var directionNames = [...]string{"up", "down", "left", "right"}

func (d Direction) String() string {
	if int(d) >= len(directionNames) {
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
	return directionNames[d]
}

// CW rotates a direction a quarter turn clockwise.
func (d Direction) CW() Direction {
	switch d {
	case Up:
		return Right
	case Right:
		return Down
	case Down:
		return Left
	default:
		return Up
	}
}

// CCW rotates a direction a quarter turn counter-clockwise.
func (d Direction) CCW() Direction {
	switch d {
	case Up:
		return Left
	case Left:
		return Down
	case Down:
		return Right
	default:
		return Up
	}
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Edges is the set of sides along which a cell touches another cell of the
// same piece. The bit layout doubles as the overlay sprite index.
type Edges uint8

// EdgesOf builds an edge set.
func EdgesOf(ds ...Direction) Edges {
	var e Edges
	for _, d := range ds {
		e |= 1 << d
	}
	return e
}

// Has reports whether d is in the set.
func (e Edges) Has(d Direction) bool {
	return e&(1<<d) != 0
}

// Directions lists the members in Up, Down, Left, Right order.
func (e Edges) Directions() []Direction {
	out := make([]Direction, 0, 4)
	for d := Up; d <= Right; d++ {
		if e.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Map applies f to every member.
func (e Edges) Map(f func(Direction) Direction) Edges {
	var out Edges
	for _, d := range e.Directions() {
		out |= 1 << f(d)
	}
	return out
}

// Sprite returns the connective sprite index for the edge set.
func (e Edges) Sprite() int {
	return int(e & 0x0F)
}

// MarshalJSON encodes the set as a list of direction names.
func (e Edges) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 4)
	for _, d := range e.Directions() {
		names = append(names, d.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of direction names.
func (e *Edges) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var out Edges
	for _, n := range names {
		found := false
		for i, name := range directionNames {
			if name == n {
				out |= 1 << Direction(i)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown direction: %q", n)
		}
	}
	*e = out
	return nil
}

// Cell is one square of a piece.
type Cell struct {
	Col   int   `json:"col"`
	Row   int   `json:"row"`
	Edges Edges `json:"edges"`
}

// MarshalJSON adds the sprite index alongside the cell fields.
func (c Cell) MarshalJSON() ([]byte, error) {
	type plain Cell
	return json.Marshal(struct {
		plain
		Sprite int `json:"sprite"`
	}{plain(c), c.Edges.Sprite()})
}

// Cells is the fixed four-cell footprint of a piece.
type Cells [4]Cell

// shapes holds each piece in its spawn orientation, relative to its
// rotation centre.
var shapes = [piece.Count]Cells{
	piece.S: {
		{-1, 0, EdgesOf(Right)},
		{0, 0, EdgesOf(Left, Up)},
		{0, 1, EdgesOf(Down, Right)},
		{1, 1, EdgesOf(Left)},
	},
	piece.Z: {
		{-1, 1, EdgesOf(Right)},
		{0, 1, EdgesOf(Left, Down)},
		{0, 0, EdgesOf(Up, Right)},
		{1, 0, EdgesOf(Left)},
	},
	piece.J: {
		{-1, 0, EdgesOf(Right, Up)},
		{0, 0, EdgesOf(Left, Right)},
		{1, 0, EdgesOf(Left)},
		{-1, 1, EdgesOf(Down)},
	},
	piece.L: {
		{-1, 0, EdgesOf(Right)},
		{0, 0, EdgesOf(Left, Right)},
		{1, 0, EdgesOf(Left, Up)},
		{1, 1, EdgesOf(Down)},
	},
	piece.T: {
		{-1, 0, EdgesOf(Right)},
		{0, 0, EdgesOf(Left, Right, Up)},
		{1, 0, EdgesOf(Left)},
		{0, 1, EdgesOf(Down)},
	},
	piece.O: {
		{0, 0, EdgesOf(Right, Up)},
		{1, 0, EdgesOf(Left, Up)},
		{0, 1, EdgesOf(Right, Down)},
		{1, 1, EdgesOf(Left, Down)},
	},
	piece.I: {
		{-1, 0, EdgesOf(Right)},
		{0, 0, EdgesOf(Left, Right)},
		{1, 0, EdgesOf(Left, Right)},
		{2, 0, EdgesOf(Left)},
	},
}

// Shape returns the canonical spawn-orientation cells of t.
func Shape(t piece.Type) Cells {
	if !t.Valid() {
		return Cells{}
	}
	return shapes[t]
}
