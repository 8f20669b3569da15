// Package piece defines the seven piece types and the bag set used to track
// which types have not yet been revealed in the current bag.
package piece

import (
	"fmt"
	"strings"
)

// Type is one of the seven piece types. Values follow the game's own id
// order so a raw id can be converted without a lookup table.
type Type uint8

const (
	S Type = iota
	Z
	J
	L
	T
	O
	I
)

// Count is the number of piece types, and the size of one bag.
const Count = 7

var letters = [Count]string{"S", "Z", "J", "L", "T", "O", "I"}

// All lists every type in id order.
var All = [Count]Type{S, Z, J, L, T, O, I}

// MalformedError reports a raw id outside the valid range.
type MalformedError struct {
	ID int
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed piece id: %d", e.ID)
}

// Parse converts a raw game id into a Type.
func Parse(id int) (Type, error) {
	if id < 0 || id >= Count {
		return 0, &MalformedError{ID: id}
	}
	return Type(id), nil
}

// FromLetter parses a piece letter such as "T" (case-insensitive).
func FromLetter(s string) (Type, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, l := range letters {
		if l == up {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown piece letter: %q", s)
}

// Valid reports whether t is one of the seven types.
func (t Type) Valid() bool {
	return t < Count
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
	return letters[t]
}

// MarshalText encodes a type as its letter.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, &MalformedError{ID: int(t)}
	}
	return []byte(letters[t]), nil
}

// UnmarshalText decodes a type from its letter.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := FromLetter(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseSequence parses a compact sequence such as "IOTSZJL".
func ParseSequence(s string) ([]Type, error) {
	out := make([]Type, 0, len(s))
	for _, r := range s {
		t, err := FromLetter(string(r))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// FormatSequence renders types as a compact letter string.
func FormatSequence(ts []Type) string {
	var b strings.Builder
	for _, t := range ts {
		b.WriteString(t.String())
	}
	return b.String()
}
