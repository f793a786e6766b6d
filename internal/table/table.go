// Package table groups the tuple indexes of one kind of tuple (triples or
// quads) into a TupleTable that writes to all of them and reads from the
// best one.
package table

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/aleksaelezovic/tupleindex/internal/index"
	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

var (
	ErrNoPrimaryIndex    = errors.New("table: no primary index")
	ErrIncompatibleIndex = errors.New("table: incompatible index")
)

// scanAllName is the preferred index for unconstrained quad scans
const scanAllName = "SPOG"

// TupleTable owns a fixed number of index slots. Slot 0 is the primary
// index and is always present; other slots may be empty.
//
// Writes go to every present index in slot order. A failure part way through
// leaves the earlier indexes written; callers needing atomicity across
// indexes must wrap the table in their own transaction.
type TupleTable struct {
	tupleLen int
	indexes  []index.TupleIndex
	logger   logr.Logger
	dirty    atomic.Bool
}

// New builds a table over indexes. indexes[0] must not be nil and every
// present index must have arity tupleLen.
func New(tupleLen int, indexes []index.TupleIndex, logger logr.Logger) (*TupleTable, error) {
	if len(indexes) == 0 || indexes[0] == nil {
		return nil, ErrNoPrimaryIndex
	}
	for _, idx := range indexes {
		if idx != nil && idx.TupleLength() != tupleLen {
			return nil, fmt.Errorf("%w: %s has length %d, table has %d",
				ErrIncompatibleIndex, idx.Name(), idx.TupleLength(), tupleLen)
		}
	}

	return &TupleTable{
		tupleLen: tupleLen,
		indexes:  append([]index.TupleIndex(nil), indexes...),
		logger:   logger,
	}, nil
}

// TupleLength returns the arity shared by every index of the table
func (t *TupleTable) TupleLength() int {
	return t.tupleLen
}

// Primary returns the index in slot 0
func (t *TupleTable) Primary() index.TupleIndex {
	return t.indexes[0]
}

// Index returns the index in slot i, which may be nil
func (t *TupleTable) Index(i int) index.TupleIndex {
	return t.indexes[i]
}

// Indexes returns a copy of the index slots
func (t *TupleTable) Indexes() []index.TupleIndex {
	return append([]index.TupleIndex(nil), t.indexes...)
}

// NumIndexes returns the number of slots, present or not
func (t *TupleTable) NumIndexes() int {
	return len(t.indexes)
}

// SetIndex installs idx in slot i. Slot 0 cannot be emptied.
// The table is unchanged when idx has the wrong arity.
func (t *TupleTable) SetIndex(i int, idx index.TupleIndex) error {
	if i < 0 || i >= len(t.indexes) {
		return fmt.Errorf("%w: slot %d out of range [0, %d)", ErrIncompatibleIndex, i, len(t.indexes))
	}
	if idx == nil {
		if i == 0 {
			return ErrNoPrimaryIndex
		}
		t.indexes[i] = nil
		return nil
	}
	if idx.TupleLength() != t.tupleLen {
		return fmt.Errorf("%w: %s has length %d, table has %d",
			ErrIncompatibleIndex, idx.Name(), idx.TupleLength(), t.tupleLen)
	}
	t.indexes[i] = idx
	return nil
}

func (t *TupleTable) check(tup tuple.Tuple) error {
	if len(tup) != t.tupleLen {
		return fmt.Errorf("%w: %s in table of length %d", index.ErrTupleLength, tup, t.tupleLen)
	}
	return nil
}

// each calls fn for every present index in slot order, stopping at the
// first error
func (t *TupleTable) each(fn func(index.TupleIndex) error) error {
	for _, idx := range t.indexes {
		if idx == nil {
			continue
		}
		if err := fn(idx); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name(), err)
		}
	}
	return nil
}

func (t *TupleTable) Add(tup tuple.Tuple) error {
	if err := t.check(tup); err != nil {
		return err
	}
	t.dirty.Store(true)
	return t.each(func(idx index.TupleIndex) error { return idx.Add(tup) })
}

func (t *TupleTable) Delete(tup tuple.Tuple) error {
	if err := t.check(tup); err != nil {
		return err
	}
	t.dirty.Store(true)
	return t.each(func(idx index.TupleIndex) error { return idx.Delete(tup) })
}

func (t *TupleTable) AddAll(tuples []tuple.Tuple) error {
	for _, tup := range tuples {
		if err := t.check(tup); err != nil {
			return err
		}
	}
	t.dirty.Store(true)
	return t.each(func(idx index.TupleIndex) error { return idx.AddAll(tuples) })
}

func (t *TupleTable) DeleteAll(tuples []tuple.Tuple) error {
	for _, tup := range tuples {
		if err := t.check(tup); err != nil {
			return err
		}
	}
	t.dirty.Store(true)
	return t.each(func(idx index.TupleIndex) error { return idx.DeleteAll(tuples) })
}

// Find answers pattern from the index that binds the most leading slots.
//
// A pattern holding nodeid.DoesNotExist matches nothing and touches no index.
// An unconstrained pattern is served by the scan-all index. Otherwise the
// index with the strictly greatest weight wins, the first one on a tie, and
// the primary index is used when no index has a bound leading slot.
func (t *TupleTable) Find(pattern tuple.Tuple) (tuple.Iterator, error) {
	if err := t.check(pattern); err != nil {
		return nil, err
	}
	if pattern.Contains(nodeid.DoesNotExist) {
		return tuple.Empty(), nil
	}
	if pattern.Bound() == 0 {
		return t.ScanAllIndex().Find(pattern)
	}
	return t.choose(pattern).Find(pattern)
}

// choose picks the index Find delegates a partly bound pattern to
func (t *TupleTable) choose(pattern tuple.Tuple) index.TupleIndex {
	var (
		best   index.TupleIndex
		weight int
	)
	for _, idx := range t.indexes {
		if idx == nil {
			continue
		}
		if w := idx.Weight(pattern); w > weight {
			best, weight = idx, w
		}
	}
	if best == nil {
		return t.indexes[0]
	}
	return best
}

// ScanAllIndex returns the index used for unconstrained scans.
//
// Quad tables prefer SPOG, then any index whose physical order ends with G,
// so that a scan yields the copies of one triple in different graphs next to
// each other. Without one the primary index is used and a warning logged.
func (t *TupleTable) ScanAllIndex() index.TupleIndex {
	if t.tupleLen != 4 {
		return t.indexes[0]
	}

	var graphLast index.TupleIndex
	for _, idx := range t.indexes {
		if idx == nil {
			continue
		}
		name := strings.ToUpper(idx.Name())
		if name == scanAllName {
			return idx
		}
		if graphLast == nil && strings.HasSuffix(name, "G") {
			graphLast = idx
		}
	}
	if graphLast != nil {
		return graphLast
	}

	t.logger.Info("no ???G index found for full scans, using primary index", "index", t.indexes[0].Name())
	return t.indexes[0]
}

// All returns every tuple, read from the scan-all index
func (t *TupleTable) All() (tuple.Iterator, error) {
	return t.ScanAllIndex().All()
}

// Size is answered by the primary index alone
func (t *TupleTable) Size() (int64, error) {
	return t.indexes[0].Size()
}

func (t *TupleTable) IsEmpty() (bool, error) {
	return t.indexes[0].IsEmpty()
}

func (t *TupleTable) Clear() error {
	t.dirty.Store(true)
	return t.each(func(idx index.TupleIndex) error { return idx.Clear() })
}

// Sync flushes every index, but only if the table was written since the
// last successful Sync
func (t *TupleTable) Sync() error {
	if !t.dirty.Swap(false) {
		return nil
	}
	if err := t.each(func(idx index.TupleIndex) error { return idx.Sync() }); err != nil {
		t.dirty.Store(true)
		return err
	}
	return nil
}

// Close closes every index, whether or not the table is dirty. All indexes
// are closed even when one of them fails.
func (t *TupleTable) Close() error {
	var errs []error
	for _, idx := range t.indexes {
		if idx == nil {
			continue
		}
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", idx.Name(), err))
		}
	}
	return errors.Join(errs...)
}
