package detector

import (
	"testing"

	"github.com/AaronLay10/pcassist/internal/piece"
)

func TestNewlyRevealed(t *testing.T) {
	tests := []struct {
		name string
		last string
		cur  string
		want string
	}{
		{"first sample", "", "IOTSZ", "IOTSZ"},
		{"one reveal", "IOTSZ", "OTSZJ", "J"},
		{"two reveals", "IOTSZ", "TSZJL", "JL"},
		{"whole window replaced", "IOTSZ", "JLSZT", "JLSZT"},
		{"short preview grows", "IOT", "IOTSZ", "SZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newlyRevealed(seq(t, tt.last), seq(t, tt.cur))
			if piece.FormatSequence(got) != tt.want {
				t.Errorf("newlyRevealed(%s, %s) = %s, want %s", tt.last, tt.cur, piece.FormatSequence(got), tt.want)
			}
		})
	}
}

func TestObserveResetsEmptyBag(t *testing.T) {
	b := newBagState()
	b.boundary(seq(t, "IOTSZ"))

	if _, ok, _ := b.observe(seq(t, "OTSZJ")); !ok {
		t.Fatal("expected prediction with one type left")
	}
	predicted, ok, reset := b.observe(seq(t, "TSZJL"))
	if ok {
		t.Errorf("unexpected prediction %s from an exhausted bag", predicted)
	}
	if !reset {
		t.Error("expected reset once the bag is exhausted")
	}
	if b.Unseen != piece.Full {
		t.Errorf("expected full set after reset, got %s", b.Unseen)
	}
}

func TestObserveMultiRevealCrossesBag(t *testing.T) {
	b := newBagState()
	b.boundary(seq(t, "IOTSZ"))

	// J and L finish the bag, then S starts the next one.
	if _, _, reset := b.observe(seq(t, "SZJLS")); reset {
		t.Error("reset must happen inline, not after the next bag started")
	}
	if want := piece.Full.Remove(piece.S); b.Unseen != want {
		t.Errorf("expected %s, got %s", want, b.Unseen)
	}
}

func TestObserveUnchangedPreviewKeepsState(t *testing.T) {
	b := newBagState()
	b.boundary(seq(t, "IOTSZ"))
	before := b.Unseen

	if _, ok, _ := b.observe(seq(t, "IOTSZ")); ok {
		t.Error("two types left must not predict")
	}
	if b.Unseen != before {
		t.Errorf("unseen changed without a reveal: %s -> %s", before, b.Unseen)
	}
}

func TestObserveRemovingAbsentTypeIsNoop(t *testing.T) {
	b := newBagState()
	b.boundary(seq(t, "IOTSZ"))

	// A misread reveal of an already seen type leaves the set alone.
	b.observe(seq(t, "OTSZI"))
	if want := piece.SetOf(piece.J, piece.L); b.Unseen != want {
		t.Errorf("expected %s, got %s", want, b.Unseen)
	}
}

func TestBagCloneIndependent(t *testing.T) {
	b := newBagState()
	b.boundary(seq(t, "IOTSZ"))
	c := b.clone()
	c.LastPreview[0] = piece.L
	if b.LastPreview[0] != piece.I {
		t.Error("clone shares preview storage")
	}
}
