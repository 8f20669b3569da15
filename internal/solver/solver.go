// Package solver defines the contract for perfect-clear search oracles and
// ships a backtracking oracle so the pipeline runs without an external
// engine.
package solver

import (
	"context"
	"fmt"
	"strings"

	"github.com/AaronLay10/pcassist/internal/board"
	"github.com/AaronLay10/pcassist/internal/geometry"
)

// Control is a callback's answer to a candidate: keep enumerating or stop.
type Control int

const (
	Continue Control = iota
	Abort
)

// Placeability decides which resting positions count as reachable.
type Placeability string

const (
	// Always accepts any position where the piece rests on the floor or
	// the stack.
	Always Placeability = "always"
	// HardDrop also requires every cell of the piece to have open sky
	// above it, so the piece can be dropped straight into place.
	HardDrop Placeability = "hard_drop"
)

// ParsePlaceability parses a config value. Empty means Always.
func ParsePlaceability(s string) (Placeability, error) {
	switch Placeability(strings.ToLower(strings.TrimSpace(s))) {
	case "", Always:
		return Always, nil
	case HardDrop, "harddrop":
		return HardDrop, nil
	}
	return "", fmt.Errorf("unknown placeability rule: %q", s)
}

// Options are passed through to the oracle unchanged.
type Options struct {
	AllowHold bool
	// AllowInitialSwap permits using hold on the very first placement.
	AllowInitialSwap bool
	Placeability     Placeability
}

// Oracle searches for placement sequences that clear the board. Search runs
// synchronously, calling fn once per candidate in its own search order until
// fn returns Abort or the space is exhausted. An unsolvable board is not an
// error: Search returns nil without calling fn.
type Oracle interface {
	Search(ctx context.Context, q board.Query, opts Options, fn func([]geometry.Placement) Control) error
}

// OracleFunc adapts a plain function to Oracle.
type OracleFunc func(ctx context.Context, q board.Query, opts Options, fn func([]geometry.Placement) Control) error

func (f OracleFunc) Search(ctx context.Context, q board.Query, opts Options, fn func([]geometry.Placement) Control) error {
	return f(ctx, q, opts, fn)
}
