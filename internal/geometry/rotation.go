package geometry

import (
	"fmt"
	"strings"
)

// Rotation is a quarter-turn orientation measured clockwise from spawn.
type Rotation uint8

const (
	North Rotation = iota // 0°
	East                  // 90° clockwise
	South                 // 180°
	West                  // 270° clockwise, i.e. 90° counter-clockwise
)

var rotationNames = [...]string{"north", "east", "south", "west"}

func (r Rotation) String() string {
	if int(r) >= len(rotationNames) {
		return fmt.Sprintf("Rotation(%d)", uint8(r))
	}
	return rotationNames[r]
}

// MarshalText encodes r by its compass name.
func (r Rotation) MarshalText() ([]byte, error) {
	if int(r) >= len(rotationNames) {
		return nil, fmt.Errorf("invalid rotation %d", uint8(r))
	}
	return []byte(rotationNames[r]), nil
}

func (r *Rotation) UnmarshalText(b []byte) error {
	parsed, err := ParseRotation(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Degrees returns the clockwise angle of r.
func (r Rotation) Degrees() int {
	return int(r%4) * 90
}

// Inverse returns the rotation that undoes r.
func Inverse(r Rotation) Rotation {
	return (4 - r%4) % 4
}

// ParseRotation accepts a compass name or a clockwise angle in degrees.
func ParseRotation(s string) (Rotation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "0", "spawn":
		return North, nil
	case "east", "90", "cw", "right":
		return East, nil
	case "south", "180":
		return South, nil
	case "west", "270", "ccw", "left":
		return West, nil
	}
	return 0, fmt.Errorf("unknown rotation: %q", s)
}

// rotateCell applies r to a single cell about the origin.
func rotateCell(c Cell, r Rotation) Cell {
	switch r % 4 {
	case East:
		return Cell{Col: c.Row, Row: -c.Col, Edges: c.Edges.Map(Direction.CW)}
	case South:
		return Cell{Col: -c.Col, Row: -c.Row, Edges: c.Edges.Map(Direction.Flip)}
	case West:
		return Cell{Col: -c.Row, Row: c.Col, Edges: c.Edges.Map(Direction.CCW)}
	default:
		return c
	}
}

// Rotate applies r to every cell about the origin.
func Rotate(cells Cells, r Rotation) Cells {
	var out Cells
	for i, c := range cells {
		out[i] = rotateCell(c, r)
	}
	return out
}
