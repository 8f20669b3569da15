package detector

import (
	"slices"

	"github.com/AaronLay10/pcassist/internal/piece"
)

// BagState tracks which piece types the current bag has not yet revealed.
// A bag holds each of the seven types exactly once, so when a single type
// remains unseen it is provably the next piece to appear after the preview.
type BagState struct {
	Unseen      piece.Set
	LastPreview []piece.Type
	// Synced is set once a bag boundary has been observed. Before that the
	// unseen set may straddle two bags and is not used for prediction.
	Synced bool
}

func newBagState() BagState {
	return BagState{Unseen: piece.Full}
}

// clone returns a copy that shares no memory with b.
func (b BagState) clone() BagState {
	b.LastPreview = slices.Clone(b.LastPreview)
	return b
}

// boundary re-anchors the bag at a detected bag boundary: every type in the
// preview is already revealed.
func (b *BagState) boundary(preview []piece.Type) {
	b.Unseen = piece.Full
	for _, t := range preview {
		b.Unseen = b.Unseen.Remove(t)
	}
	b.LastPreview = slices.Clone(preview)
	b.Synced = true
}

// observe accounts for pieces revealed since the last preview and returns
// the predicted next hidden piece, if exactly one candidate remains. An
// emptied bag is reset so the next bag is tracked from scratch.
func (b *BagState) observe(preview []piece.Type) (predicted piece.Type, ok bool, reset bool) {
	if !slices.Equal(preview, b.LastPreview) {
		revealed := newlyRevealed(b.LastPreview, preview)
		for i, t := range revealed {
			b.Unseen = b.Unseen.Remove(t)
			// More than one reveal in a single step crossed into the next bag.
			if b.Unseen.Empty() && i < len(revealed)-1 {
				b.Unseen = piece.Full
			}
		}
		b.LastPreview = slices.Clone(preview)
	}

	if b.Synced {
		predicted, ok = b.Unseen.Only()
	}

	if b.Unseen.Empty() {
		b.Unseen = piece.Full
		reset = true
	}
	return predicted, ok, reset
}

// newlyRevealed returns the tail of cur that was not visible in last. The
// preview advances by dropping pieces from its head, so the longest suffix of
// last that is also a prefix of cur marks what was already known. Reveals
// are normally one at a time, but a missed tick can reveal several.
func newlyRevealed(last, cur []piece.Type) []piece.Type {
	for k := 0; k <= len(last); k++ {
		known := last[k:]
		if len(known) <= len(cur) && slices.Equal(cur[:len(known)], known) {
			return cur[len(known):]
		}
	}
	return cur
}
