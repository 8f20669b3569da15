package board

import (
	"github.com/AaronLay10/pcassist/internal/piece"
)

// MaskBits is the width of the occupancy mask.
const MaskBits = 64

// RepresentableRows is how many rows, counted from the bottom, fit in the
// mask. Rows above this are never encoded.
const RepresentableRows = MaskBits / Width

// Query is the solver-ready form of a snapshot.
type Query struct {
	Queue     []piece.Type
	Occupancy uint64
}

// ToQuery assembles a solver query from a snapshot.
func ToQuery(s Snapshot) Query {
	return Query{
		Queue:     s.Queue(),
		Occupancy: Pack(&s.Columns),
	}
}

// Pack encodes the grid into a mask. Rows are processed from the top down,
// shifting the accumulator one row width before adding each row, so the
// bottom row lands in the least significant bits. Only the bottom
// RepresentableRows rows are encoded; the top bits of the mask stay clear.
func Pack(c *Columns) uint64 {
	var bits uint64
	for row := RepresentableRows - 1; row >= 0; row-- {
		bits <<= Width
		var line uint64
		for col := Width - 1; col >= 0; col-- {
			line <<= 1
			if c[col][row] {
				line |= 1
			}
		}
		bits |= line
	}
	return bits
}

// Unpack expands a mask back into a grid. Only the representable rows can
// be non-empty.
func Unpack(mask uint64) Columns {
	var c Columns
	for row := 0; row < RepresentableRows; row++ {
		for col := 0; col < Width; col++ {
			if mask&(1<<(row*Width+col)) != 0 {
				c[col][row] = true
			}
		}
	}
	return c
}

// RowMask returns the bits of one row of a mask.
func RowMask(mask uint64, row int) uint64 {
	if row < 0 || row >= RepresentableRows {
		return 0
	}
	return (mask >> (row * Width)) & (1<<Width - 1)
}
