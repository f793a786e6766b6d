package storage

import (
	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

// RecordFactory converts physical-order tuples to the fixed-length byte keys
// of a range index and back.
//
// A record is the big-endian encodings of each NodeID concatenated, so the
// byte order of records is the slot-by-slot order of the tuples.
type RecordFactory struct {
	arity int
}

// NewRecordFactory returns the factory for tuples of the given arity
func NewRecordFactory(arity int) RecordFactory {
	return RecordFactory{arity: arity}
}

// Arity returns the number of NodeIDs in a record
func (f RecordFactory) Arity() int {
	return f.arity
}

// KeyLength returns the length of a record in bytes
func (f RecordFactory) KeyLength() int {
	return f.arity * nodeid.Size
}

// NewRecord returns a zeroed record; it is the template used for scan bounds
func (f RecordFactory) NewRecord() []byte {
	return make([]byte, f.KeyLength())
}

// Record encodes a physical-order tuple of length Arity
func (f RecordFactory) Record(t tuple.Tuple) []byte {
	return f.Prefix(t)
}

// Prefix encodes the first len(prefix) slots of a record, leaving the rest zero
func (f RecordFactory) Prefix(prefix tuple.Tuple) []byte {
	rec := f.NewRecord()
	for i, id := range prefix {
		id.Encode(rec[i*nodeid.Size:])
	}
	return rec
}

// Tuple decodes a record into a physical-order tuple
func (f RecordFactory) Tuple(rec []byte) tuple.Tuple {
	t := make(tuple.Tuple, f.arity)
	for i := range t {
		t[i] = nodeid.Decode(rec[i*nodeid.Size:])
	}
	return t
}
