package tuple

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidColumnMap = errors.New("tuple: invalid column map")

// ColumnMap is a bijection between the natural slot order of a tuple and the
// physical order an index stores it in.
//
// Both orders are named by column letters, e.g. NewColumnMap("SPO", "POS")
// stores the natural tuple (s, p, o) as (p, o, s).
type ColumnMap struct {
	label string

	// toNatural[i] is the natural slot stored at physical position i
	toNatural []int
	// toPhysical[i] is the physical position of natural slot i
	toPhysical []int
}

// NewColumnMap builds the map from natural order to physical order.
// Both strings must be permutations of the same distinct letters.
func NewColumnMap(natural, physical string) (*ColumnMap, error) {
	natural = strings.ToUpper(natural)
	physical = strings.ToUpper(physical)

	if len(natural) == 0 || len(natural) != len(physical) {
		return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidColumnMap, natural, physical)
	}

	n := len(natural)
	m := &ColumnMap{
		label:      natural + "->" + physical,
		toNatural:  make([]int, n),
		toPhysical: make([]int, n),
	}
	for i := range m.toPhysical {
		m.toPhysical[i] = -1
	}

	for i := 0; i < n; i++ {
		slot := strings.IndexByte(natural, physical[i])
		if slot < 0 || strings.LastIndexByte(natural, physical[i]) != slot || m.toPhysical[slot] != -1 {
			return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidColumnMap, natural, physical)
		}
		m.toNatural[i] = slot
		m.toPhysical[slot] = i
	}
	return m, nil
}

// MustColumnMap is like NewColumnMap but panics on error.
// It is intended for fixed index layouts known at compile time.
func MustColumnMap(natural, physical string) *ColumnMap {
	m, err := NewColumnMap(natural, physical)
	if err != nil {
		panic(err)
	}
	return m
}

// Label returns a diagnostic name such as "SPO->POS"
func (m *ColumnMap) Label() string {
	return m.label
}

func (m *ColumnMap) String() string {
	return m.label
}

// Len returns the arity the map applies to
func (m *ColumnMap) Len() int {
	return len(m.toNatural)
}

// NaturalSlot returns the natural slot stored at physical position i
func (m *ColumnMap) NaturalSlot(i int) int {
	return m.toNatural[i]
}

// PhysicalSlot returns the physical position of natural slot i
func (m *ColumnMap) PhysicalSlot(i int) int {
	return m.toPhysical[i]
}

// Map reorders a natural-order tuple into physical order.
// It panics when the length of t differs from Len.
func (m *ColumnMap) Map(t Tuple) Tuple {
	m.checkLen(t)
	out := make(Tuple, len(t))
	for i, slot := range m.toNatural {
		out[i] = t[slot]
	}
	return out
}

// Unmap reorders a physical-order tuple back into natural order.
// It panics when the length of t differs from Len.
func (m *ColumnMap) Unmap(t Tuple) Tuple {
	m.checkLen(t)
	out := make(Tuple, len(t))
	for i, slot := range m.toNatural {
		out[slot] = t[i]
	}
	return out
}

func (m *ColumnMap) checkLen(t Tuple) {
	if len(t) != len(m.toNatural) {
		panic(fmt.Sprintf("column map %s applied to tuple of length %d", m.label, len(t)))
	}
}
