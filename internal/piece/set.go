package piece

// Set is a bitset over the seven types.
type Set uint8

// Full contains every type.
const Full Set = 1<<Count - 1

// SetOf builds a set from the given types.
func SetOf(ts ...Type) Set {
	var s Set
	for _, t := range ts {
		s = s.Add(t)
	}
	return s
}

// Has reports whether t is in the set.
func (s Set) Has(t Type) bool {
	return t.Valid() && s&(1<<t) != 0
}

// Add returns the set with t added.
func (s Set) Add(t Type) Set {
	if !t.Valid() {
		return s
	}
	return s | 1<<t
}

// Remove returns the set with t removed.
func (s Set) Remove(t Type) Set {
	if !t.Valid() {
		return s
	}
	return s &^ (1 << t)
}

// Len returns the number of types in the set.
func (s Set) Len() int {
	n := 0
	for v := s & Full; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Empty reports whether the set holds no types.
func (s Set) Empty() bool {
	return s&Full == 0
}

// Only returns the single member when the set has exactly one element.
func (s Set) Only() (Type, bool) {
	if s.Len() != 1 {
		return 0, false
	}
	for _, t := range All {
		if s.Has(t) {
			return t, true
		}
	}
	return 0, false
}

// Types lists the members in id order.
func (s Set) Types() []Type {
	out := make([]Type, 0, s.Len())
	for _, t := range All {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s Set) String() string {
	return "{" + FormatSequence(s.Types()) + "}"
}
