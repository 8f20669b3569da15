package reader

import (
	"sync"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/piece"
)

// Static serves one fixed sample until stopped. It is useful for probing a
// single board position through the whole pipeline.
type Static struct {
	mu      sync.Mutex
	sample  board.RawSample
	stopped bool
}

// NewStatic returns a reader that always reports s.
func NewStatic(s board.RawSample) *Static {
	s.Preview = append([]piece.Type(nil), s.Preview...)
	return &Static{sample: s}
}

// Set replaces the sample.
func (s *Static) Set(sample board.RawSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample.Preview = append([]piece.Type(nil), sample.Preview...)
	s.sample = sample
}

// Stop makes Alive report false from now on.
func (s *Static) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Static) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *Static) CurrentPiece() (board.Piece, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample.Current, nil
}

func (s *Static) Columns() (board.Columns, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample.Columns, nil
}

func (s *Static) PreviewQueue() ([]piece.Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]piece.Type(nil), s.sample.Preview...), nil
}

func (s *Static) HeldPiece() (board.Piece, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample.Held, nil
}
