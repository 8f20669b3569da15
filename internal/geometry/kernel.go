package geometry

import (
	"github.com/AaronLay10/pcassist/internal/piece"
)

// Placement is one piece's final resting location as reported by the search
// oracle. X and Y locate the rotation centre on the board. Placements are
// comparable, so sequences can be compared structurally with slices.Equal.
type Placement struct {
	Piece    piece.Type `json:"piece"`
	Rotation Rotation   `json:"rotation"`
	X        int        `json:"x"`
	Y        int        `json:"y"`
}

// Footprint returns the rotated cells of p in board coordinates without any
// spawn offset or normalisation. The search oracle uses this to test fits.
func (p Placement) Footprint() Cells {
	cells := Rotate(Shape(p.Piece), p.Rotation)
	for i := range cells {
		cells[i].Col += p.X
		cells[i].Row += p.Y
	}
	return cells
}

// Payload is what the overlay draws: four cells, or nil for nothing.
type Payload []Cell

// Empty reports whether the payload shows nothing.
func (p Payload) Empty() bool {
	return len(p) == 0
}

// Kernel maps placements to overlay payloads.
type Kernel struct {
	// SpawnRows is added to every row, per piece type. It reconciles an
	// oracle whose anchor row differs from the rotation centre.
	SpawnRows [piece.Count]int
}

// Cells computes the overlay cells for p: rotate the canonical shape,
// translate by the anchor plus the spawn offset, then shift the whole set so
// no coordinate is negative.
func (k Kernel) Cells(p Placement) Cells {
	cells := Rotate(Shape(p.Piece), p.Rotation)

	dy := p.Y
	if p.Piece.Valid() {
		dy += k.SpawnRows[p.Piece]
	}
	for i := range cells {
		cells[i].Col += p.X
		cells[i].Row += dy
	}

	minCol, minRow := cells[0].Col, cells[0].Row
	for _, c := range cells[1:] {
		minCol = min(minCol, c.Col)
		minRow = min(minRow, c.Row)
	}
	for i := range cells {
		if minCol < 0 {
			cells[i].Col -= minCol
		}
		if minRow < 0 {
			cells[i].Row -= minRow
		}
	}
	return cells
}

// Payload renders the first placement of a solution, or nil if there is none.
func (k Kernel) Payload(solution []Placement) Payload {
	if len(solution) == 0 {
		return nil
	}
	cells := k.Cells(solution[0])
	return Payload(cells[:])
}
