package index

import (
	"fmt"
	"sync/atomic"

	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/storage"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

// RecordIndex is the synchronous TupleIndex. Every tuple is stored as one
// key of a storage.RangeIndex, encoded in the physical order of its column map.
type RecordIndex struct {
	name    string
	mapping *tuple.ColumnMap
	records storage.RecordFactory
	keys    storage.RangeIndex
	opts    Options
	closed  atomic.Bool
}

// NewRecordIndex builds an index over keys. The key length of keys must
// match the arity of mapping.
func NewRecordIndex(name string, mapping *tuple.ColumnMap, keys storage.RangeIndex, opts Options) (*RecordIndex, error) {
	records := storage.NewRecordFactory(mapping.Len())
	if keys.KeyLength() != records.KeyLength() {
		return nil, fmt.Errorf("%w: index %s has %d byte keys, %s needs %d",
			ErrTupleLength, name, keys.KeyLength(), mapping, records.KeyLength())
	}

	return &RecordIndex{
		name:    name,
		mapping: mapping,
		records: records,
		keys:    keys,
		opts:    opts,
	}, nil
}

// Open opens the range index called name in s and builds a RecordIndex over
// it. The name doubles as the physical column order, e.g. "POS" for a
// triple index whose natural order is "SPO".
func Open(s storage.Storage, natural, name string, opts Options) (*RecordIndex, error) {
	mapping, err := tuple.NewColumnMap(natural, name)
	if err != nil {
		return nil, err
	}

	keys, err := s.Index(name, mapping.Len()*nodeid.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}
	return NewRecordIndex(name, mapping, keys, opts)
}

func (i *RecordIndex) Name() string { return i.name }
func (i *RecordIndex) Mapping() *tuple.ColumnMap { return i.mapping }
func (i *RecordIndex) TupleLength() int { return i.mapping.Len() }

func (i *RecordIndex) check(t tuple.Tuple, op string) error {
	if i.closed.Load() {
		return fmt.Errorf("%w: %s", ErrClosed, i.name)
	}
	if i.opts.CheckLength {
		return validate(i, t, op)
	}
	return nil
}

func (i *RecordIndex) checkOpen() error {
	if i.closed.Load() {
		return fmt.Errorf("%w: %s", ErrClosed, i.name)
	}
	return nil
}

func (i *RecordIndex) record(t tuple.Tuple) []byte {
	return i.records.Record(i.mapping.Map(t))
}

func (i *RecordIndex) Add(t tuple.Tuple) error {
	if err := i.check(t, "add"); err != nil {
		return err
	}
	return i.keys.Insert(i.record(t))
}

func (i *RecordIndex) Delete(t tuple.Tuple) error {
	if err := i.check(t, "delete"); err != nil {
		return err
	}
	return i.keys.Delete(i.record(t))
}

// AddAll validates the whole batch before writing any of it, then uses the
// engine's batch path when there is one
func (i *RecordIndex) AddAll(tuples []tuple.Tuple) error {
	keys := make([][]byte, len(tuples))
	for n, t := range tuples {
		if err := i.check(t, "add"); err != nil {
			return err
		}
		keys[n] = i.record(t)
	}

	if batcher, ok := i.keys.(storage.Batcher); ok {
		return batcher.InsertBatch(keys)
	}
	for _, key := range keys {
		if err := i.keys.Insert(key); err != nil {
			return err
		}
	}
	return nil
}

func (i *RecordIndex) DeleteAll(tuples []tuple.Tuple) error {
	for _, t := range tuples {
		if err := i.Delete(t); err != nil {
			return err
		}
	}
	return nil
}

// Weight returns the number of bound slots at the front of the physical
// order. A bound slot after the first unbound one does not count.
func (i *RecordIndex) Weight(pattern tuple.Tuple) int {
	if len(pattern) != i.TupleLength() {
		return 0
	}
	return leadingBound(i.mapping.Map(pattern))
}

// Find answers pattern with a single scan of this index.
//
// A fully bound pattern is an existence check. Otherwise the leading bound
// slots select a contiguous key range; with no leading slot the range is the
// whole index. Bound slots outside the leading run are checked against each
// scanned tuple.
func (i *RecordIndex) Find(pattern tuple.Tuple) (tuple.Iterator, error) {
	if err := i.check(pattern, "find"); err != nil {
		return nil, err
	}

	physical := i.mapping.Map(pattern)
	weight := leadingBound(physical)
	bound := physical.Bound()

	if bound == len(physical) {
		found, err := i.keys.Contains(i.records.Record(physical))
		if err != nil {
			return nil, err
		}
		if !found {
			return tuple.Empty(), nil
		}
		return tuple.FromSlice(pattern.Clone()), nil
	}

	if weight == 0 && !i.opts.AllowFullScan {
		return nil, fmt.Errorf("%w: %s on %s", ErrFullScanDisallowed, pattern, i.name)
	}
	partial := weight < bound
	if partial && !i.opts.AllowPartialScan {
		return nil, fmt.Errorf("%w: %s on %s", ErrPartialScanDisallowed, pattern, i.name)
	}

	var min, max []byte
	if weight > 0 {
		min = i.records.Prefix(physical[:weight])
		max = successor(min, weight*nodeid.Size)
	}

	it, err := i.keys.Range(min, max)
	if err != nil {
		return nil, err
	}

	var result tuple.Iterator = &recordIterator{keys: it, records: i.records, mapping: i.mapping}
	if partial {
		result = tuple.Filter(result, func(t tuple.Tuple) bool {
			return t.Matches(pattern)
		})
	}
	return result, nil
}

// successor returns the smallest record greater than every record starting
// with rec[:n], or nil when no such record exists
func successor(rec []byte, n int) []byte {
	next := make([]byte, len(rec))
	copy(next, rec[:n])
	for i := n - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next
		}
	}
	return nil
}

func (i *RecordIndex) All() (tuple.Iterator, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}

	it, err := i.keys.Iterator()
	if err != nil {
		return nil, err
	}
	return &recordIterator{keys: it, records: i.records, mapping: i.mapping}, nil
}

func (i *RecordIndex) Size() (int64, error) {
	if err := i.checkOpen(); err != nil {
		return 0, err
	}
	return i.keys.Size()
}

func (i *RecordIndex) IsEmpty() (bool, error) {
	if err := i.checkOpen(); err != nil {
		return false, err
	}
	return i.keys.IsEmpty()
}

func (i *RecordIndex) Clear() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	return i.keys.Clear()
}

func (i *RecordIndex) Sync() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	return i.keys.Sync()
}

// Close closes the underlying range index. Every later call fails with ErrClosed.
func (i *RecordIndex) Close() error {
	if i.closed.Swap(true) {
		return nil
	}
	return i.keys.Close()
}

// recordIterator decodes range index keys back into natural-order tuples
type recordIterator struct {
	keys    storage.Iterator
	records storage.RecordFactory
	mapping *tuple.ColumnMap
	current tuple.Tuple
}

func (it *recordIterator) Next() bool {
	if !it.keys.Next() {
		it.current = nil
		return false
	}
	it.current = it.mapping.Unmap(it.records.Tuple(it.keys.Key()))
	return true
}

func (it *recordIterator) Tuple() tuple.Tuple { return it.current }
func (it *recordIterator) Err() error { return it.keys.Err() }
func (it *recordIterator) Close() error { return it.keys.Close() }
