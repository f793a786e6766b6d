package tuple

// Iterator pulls tuples one at a time.
//
// Callers loop on Next, read Tuple, and check Err once Next returns false.
// Close releases the underlying scan and may be called at any point, which is
// how a scan is abandoned early. Close is idempotent.
type Iterator interface {
	// Next advances to the next tuple
	Next() bool

	// Tuple returns the current tuple, valid until the next call to Next
	Tuple() Tuple

	// Err returns the error that stopped the iteration, if any
	Err() error

	// Close closes the iterator
	Close() error
}

// Collect drains it into a slice and closes it
func Collect(it Iterator) ([]Tuple, error) {
	defer it.Close()

	var out []Tuple
	for it.Next() {
		out = append(out, it.Tuple().Clone())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, it.Close()
}

// Count drains it, returning the number of tuples seen, and closes it
func Count(it Iterator) (int64, error) {
	defer it.Close()

	var n int64
	for it.Next() {
		n++
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	return n, it.Close()
}

// sliceIterator iterates over an in-memory list of tuples
type sliceIterator struct {
	tuples []Tuple
	pos    int
}

// FromSlice returns an iterator over tuples
func FromSlice(tuples ...Tuple) Iterator {
	return &sliceIterator{tuples: tuples, pos: -1}
}

// Empty returns an iterator that yields nothing
func Empty() Iterator {
	return FromSlice()
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.tuples) {
		it.pos = len(it.tuples)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Tuple() Tuple {
	if it.pos < 0 || it.pos >= len(it.tuples) {
		return nil
	}
	return it.tuples[it.pos]
}

func (it *sliceIterator) Err() error { return nil }
func (it *sliceIterator) Close() error { return nil }

// filterIterator yields only the tuples of src accepted by keep
type filterIterator struct {
	src  Iterator
	keep func(Tuple) bool
}

// Filter wraps src, skipping tuples for which keep returns false
func Filter(src Iterator, keep func(Tuple) bool) Iterator {
	return &filterIterator{src: src, keep: keep}
}

func (it *filterIterator) Next() bool {
	for it.src.Next() {
		if it.keep(it.src.Tuple()) {
			return true
		}
	}
	return false
}

func (it *filterIterator) Tuple() Tuple { return it.src.Tuple() }
func (it *filterIterator) Err() error { return it.src.Err() }
func (it *filterIterator) Close() error { return it.src.Close() }
