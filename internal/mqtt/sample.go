package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// SamplePayload is a v1 sample message from the memory-reading agent. Values
// are the game's raw ones: piece ids, preview ids with flag bits in the high
// half, and column cells where -1 is empty.
type SamplePayload struct {
	Version int     `json:"version"`
	Seq     uint64  `json:"seq"`
	Current *int    `json:"current"`
	Held    *int    `json:"held"`
	Preview []int   `json:"preview"`
	Columns [][]int `json:"columns"`
}

// emptyCell is the raw value of an unoccupied cell.
const emptyCell = -1

// previewIDMask strips the flag bits the game keeps above the piece id.
const previewIDMask = 0xFFFF

// ParseSample parses and reduces a sample payload. Structural problems
// (bad JSON, wrong version, wrong column count) are plain errors; piece ids
// out of range come back as *piece.MalformedError.
func ParseSample(data []byte) (*board.RawSample, error) {
	var payload SamplePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid sample JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported sample version: %d", payload.Version)
	}

	var s board.RawSample
	var err error
	if s.Current, err = optionalPiece(payload.Current); err != nil {
		return nil, fmt.Errorf("current: %w", err)
	}
	if s.Held, err = optionalPiece(payload.Held); err != nil {
		return nil, fmt.Errorf("held: %w", err)
	}

	if len(payload.Preview) > board.PreviewSize {
		return nil, fmt.Errorf("preview has %d entries, at most %d are shown", len(payload.Preview), board.PreviewSize)
	}
	s.Preview = make([]piece.Type, 0, len(payload.Preview))
	for _, id := range payload.Preview {
		t, err := piece.Parse(id & previewIDMask)
		if err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
		s.Preview = append(s.Preview, t)
	}

	if len(payload.Columns) != board.Width {
		return nil, fmt.Errorf("columns: expected %d, got %d", board.Width, len(payload.Columns))
	}
	for col, cells := range payload.Columns {
		// The game keeps a taller buffer than it shows; only the visible
		// rows matter.
		if len(cells) < board.Height {
			return nil, fmt.Errorf("column %d: expected at least %d cells, got %d", col, board.Height, len(cells))
		}
		for row := 0; row < board.Height; row++ {
			s.Columns[col][row] = cells[row] != emptyCell
		}
	}

	return &s, nil
}

func optionalPiece(id *int) (board.Piece, error) {
	if id == nil || *id == emptyCell {
		return board.None, nil
	}
	t, err := piece.Parse(*id)
	if err != nil {
		return board.None, err
	}
	return board.Some(t), nil
}
