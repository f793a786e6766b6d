// Package index implements tuple indexes: ordered sets of fixed-length NodeID
// tuples stored in a permuted column order on top of a storage.RangeIndex.
//
// A pattern is answered by the longest run of bound slots at the front of
// the index's physical order. That run becomes a [min, max) key range; bound
// slots outside it are checked by filtering the scanned tuples.
package index

import (
	"errors"
	"fmt"

	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

var (
	ErrTupleLength           = errors.New("index: tuple length mismatch")
	ErrClosed                = errors.New("index: closed")
	ErrFullScanDisallowed    = errors.New("index: full scan disallowed")
	ErrPartialScanDisallowed = errors.New("index: partial scan disallowed")
)

// TupleIndex is a single ordered index of tuples.
// Tuples and patterns are always passed and returned in natural order.
type TupleIndex interface {
	// Add inserts a tuple; adding a present tuple is a no-op
	Add(t tuple.Tuple) error

	// Delete removes a tuple; deleting an absent tuple is a no-op
	Delete(t tuple.Tuple) error

	// AddAll inserts every tuple of a batch
	AddAll(tuples []tuple.Tuple) error

	// DeleteAll removes every tuple of a batch
	DeleteAll(tuples []tuple.Tuple) error

	// Find returns the tuples matching pattern, where nodeid.Any marks an
	// unconstrained slot
	Find(pattern tuple.Tuple) (tuple.Iterator, error)

	// All returns every tuple in physical order
	All() (tuple.Iterator, error)

	// Weight returns how many leading slots of the physical order pattern binds
	Weight(pattern tuple.Tuple) int

	Mapping() *tuple.ColumnMap
	Name() string
	TupleLength() int

	Size() (int64, error)
	IsEmpty() (bool, error)
	Clear() error
	Sync() error
	Close() error
}

// Options tunes a RecordIndex
type Options struct {
	// CheckLength validates the arity of every tuple and pattern.
	// When disabled a tuple of the wrong length panics inside the column map.
	CheckLength bool

	// AllowFullScan permits Find to scan the whole index when the pattern
	// binds no leading slot
	AllowFullScan bool

	// AllowPartialScan permits Find to filter scanned tuples on bound slots
	// outside the leading prefix
	AllowPartialScan bool
}

// DefaultOptions checks lengths and allows every kind of scan
func DefaultOptions() Options {
	return Options{
		CheckLength:      true,
		AllowFullScan:    true,
		AllowPartialScan: true,
	}
}

// validate checks that t has the arity of idx
func validate(idx TupleIndex, t tuple.Tuple, op string) error {
	if len(t) != idx.TupleLength() {
		return fmt.Errorf("%w: %s %s on %s, want length %d", ErrTupleLength, op, t, idx.Name(), idx.TupleLength())
	}
	return nil
}

// leadingBound counts the bound slots at the front of a physical tuple
func leadingBound(physical tuple.Tuple) int {
	n := 0
	for _, id := range physical {
		if id.IsAny() {
			break
		}
		n++
	}
	return n
}
