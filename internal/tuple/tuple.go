// Package tuple holds fixed-arity NodeID tuples, the column permutations that
// map them onto index storage order, and pull-based tuple iterators.
package tuple

import (
	"strings"

	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
)

// Tuple is an ordered sequence of NodeIDs, a triple or a quad.
// A pattern is a Tuple that may hold nodeid.Any in unconstrained slots.
type Tuple []nodeid.NodeID

// Of builds a tuple from its slots
func Of(ids ...nodeid.NodeID) Tuple {
	return Tuple(ids)
}

// AnyPattern returns a pattern of length n with every slot unconstrained
func AnyPattern(n int) Tuple {
	t := make(Tuple, n)
	for i := range t {
		t[i] = nodeid.Any
	}
	return t
}

// Len returns the arity of the tuple
func (t Tuple) Len() int {
	return len(t)
}

// Equal compares two tuples slot by slot
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share storage with t
func (t Tuple) Clone() Tuple {
	return append(Tuple(nil), t...)
}

// Bound returns the number of slots that are not nodeid.Any
func (t Tuple) Bound() int {
	n := 0
	for _, id := range t {
		if !id.IsAny() {
			n++
		}
	}
	return n
}

// Contains reports whether any slot equals id
func (t Tuple) Contains(id nodeid.NodeID) bool {
	for _, v := range t {
		if v == id {
			return true
		}
	}
	return false
}

// Matches reports whether t agrees with every bound slot of pattern.
// Tuples of different lengths never match.
func (t Tuple) Matches(pattern Tuple) bool {
	if len(t) != len(pattern) {
		return false
	}
	for i, id := range pattern {
		if !id.IsAny() && t[i] != id {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, id := range t {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
