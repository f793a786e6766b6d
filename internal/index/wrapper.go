package index

import "github.com/aleksaelezovic/tupleindex/internal/tuple"

// Wrapper forwards every call to an inner TupleIndex. Embed it to change a
// few operations of an index and inherit the rest.
type Wrapper struct {
	inner TupleIndex
}

func NewWrapper(inner TupleIndex) *Wrapper {
	return &Wrapper{inner: inner}
}

// Unwrap returns the wrapped index
func (w *Wrapper) Unwrap() TupleIndex {
	return w.inner
}

func (w *Wrapper) Add(t tuple.Tuple) error { return w.inner.Add(t) }
func (w *Wrapper) Delete(t tuple.Tuple) error { return w.inner.Delete(t) }
func (w *Wrapper) AddAll(tuples []tuple.Tuple) error { return w.inner.AddAll(tuples) }
func (w *Wrapper) DeleteAll(tuples []tuple.Tuple) error { return w.inner.DeleteAll(tuples) }

func (w *Wrapper) Find(pattern tuple.Tuple) (tuple.Iterator, error) {
	return w.inner.Find(pattern)
}

func (w *Wrapper) All() (tuple.Iterator, error) { return w.inner.All() }
func (w *Wrapper) Weight(pattern tuple.Tuple) int { return w.inner.Weight(pattern) }
func (w *Wrapper) Mapping() *tuple.ColumnMap { return w.inner.Mapping() }
func (w *Wrapper) Name() string { return w.inner.Name() }
func (w *Wrapper) TupleLength() int { return w.inner.TupleLength() }
func (w *Wrapper) Size() (int64, error) { return w.inner.Size() }
func (w *Wrapper) IsEmpty() (bool, error) { return w.inner.IsEmpty() }
func (w *Wrapper) Clear() error { return w.inner.Clear() }
func (w *Wrapper) Sync() error { return w.inner.Sync() }
func (w *Wrapper) Close() error { return w.inner.Close() }
