package detector

import (
	"errors"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// ErrUnavailable means a read produced no data this tick. Readers may wrap
// it; the detector retries on the next poll.
var ErrUnavailable = errors.New("read unavailable this tick")

// Reader supplies point-in-time reads of the game. Any read may fail; a
// failure only costs the current tick. Alive reports whether the game
// process is still running.
type Reader interface {
	CurrentPiece() (board.Piece, error)
	Columns() (board.Columns, error)
	PreviewQueue() ([]piece.Type, error)
	HeldPiece() (board.Piece, error)
	Alive() bool
}

// classify maps a read error to its metric label.
func classify(err error) string {
	var malformed *piece.MalformedError
	if errors.As(err, &malformed) {
		return "malformed"
	}
	return "unavailable"
}
