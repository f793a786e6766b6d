package storage

import (
	"bytes"
	"testing"

	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
	"github.com/stretchr/testify/require"
)

const testKeyLength = 2 * nodeid.Size

// engines opens every backend on a fresh temporary directory
func engines(t *testing.T) map[string]Storage {
	t.Helper()

	out := make(map[string]Storage)
	for _, backend := range []string{BackendBadger, BackendLevelDB, BackendMemory} {
		s, err := Open(backend, Options{Path: t.TempDir()})
		require.NoError(t, err, backend)
		t.Cleanup(func() { s.Close() })
		out[backend] = s
	}
	return out
}

func key(a, b uint64) []byte {
	return NewRecordFactory(2).Record(tuple.Of(nodeid.NewPtr(a), nodeid.NewPtr(b)))
}

// collect drains the keys of an Iterator or Range call
func collect(t *testing.T) func(Iterator, error) [][]byte {
	return func(it Iterator, err error) [][]byte {
		t.Helper()
		require.NoError(t, err)
		defer it.Close()

		var keys [][]byte
		for it.Next() {
			keys = append(keys, it.Key())
		}
		require.NoError(t, it.Err())
		return keys
	}
}

func TestRangeIndexSetSemantics(t *testing.T) {
	for backend, s := range engines(t) {
		t.Run(backend, func(t *testing.T) {
			idx, err := s.Index("SP", testKeyLength)
			require.NoError(t, err)
			require.Equal(t, testKeyLength, idx.KeyLength())

			empty, err := idx.IsEmpty()
			require.NoError(t, err)
			require.True(t, empty)

			require.NoError(t, idx.Insert(key(1, 2)))
			require.NoError(t, idx.Insert(key(1, 2)))
			require.NoError(t, idx.Insert(key(1, 3)))

			size, err := idx.Size()
			require.NoError(t, err)
			require.EqualValues(t, 2, size)

			ok, err := idx.Contains(key(1, 2))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, idx.Delete(key(1, 2)))
			require.NoError(t, idx.Delete(key(9, 9)))

			ok, err = idx.Contains(key(1, 2))
			require.NoError(t, err)
			require.False(t, ok)

			require.ErrorIs(t, idx.Insert([]byte{1, 2, 3}), ErrKeyLength)
		})
	}
}

func TestRangeIndexHalfOpenRange(t *testing.T) {
	for backend, s := range engines(t) {
		t.Run(backend, func(t *testing.T) {
			idx, err := s.Index("SP", testKeyLength)
			require.NoError(t, err)

			batcher, ok := idx.(Batcher)
			require.True(t, ok, "%s should support batches", backend)
			require.NoError(t, batcher.InsertBatch([][]byte{key(3, 1), key(1, 1), key(2, 5), key(2, 1), key(2, 9)}))

			keys := collect(t)(idx.Range(key(2, 0), key(3, 0)))
			require.Equal(t, [][]byte{key(2, 1), key(2, 5), key(2, 9)}, keys)

			keys = collect(t)(idx.Range(key(2, 5), nil))
			require.Equal(t, [][]byte{key(2, 5), key(2, 9), key(3, 1)}, keys)

			keys = collect(t)(idx.Range(nil, key(2, 1)))
			require.Equal(t, [][]byte{key(1, 1)}, keys)

			keys = collect(t)(idx.Iterator())
			require.Len(t, keys, 5)
			for i := 1; i < len(keys); i++ {
				require.Negative(t, bytes.Compare(keys[i-1], keys[i]))
			}
		})
	}
}

func TestIndexesAreIsolated(t *testing.T) {
	for backend, s := range engines(t) {
		t.Run(backend, func(t *testing.T) {
			a, err := s.Index("SPO", testKeyLength)
			require.NoError(t, err)
			b, err := s.Index("SPOG", testKeyLength)
			require.NoError(t, err)

			require.NoError(t, a.Insert(key(1, 1)))
			require.NoError(t, b.Insert(key(2, 2)))

			require.Equal(t, [][]byte{key(1, 1)}, collect(t)(a.Iterator()))
			require.Equal(t, [][]byte{key(2, 2)}, collect(t)(b.Iterator()))

			require.NoError(t, a.Clear())
			require.Empty(t, collect(t)(a.Iterator()))
			require.Equal(t, [][]byte{key(2, 2)}, collect(t)(b.Iterator()))
		})
	}
}

func TestClosedIndexFailsFast(t *testing.T) {
	for backend, s := range engines(t) {
		t.Run(backend, func(t *testing.T) {
			idx, err := s.Index("closing", testKeyLength)
			require.NoError(t, err)
			require.NoError(t, idx.Close())

			require.ErrorIs(t, idx.Insert(key(1, 1)), ErrClosed)
			_, err = idx.Range(nil, nil)
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestDictionary(t *testing.T) {
	for backend, s := range engines(t) {
		t.Run(backend, func(t *testing.T) {
			dict, err := s.Dictionary("nodes")
			require.NoError(t, err)

			_, err = dict.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, dict.Set([]byte("k"), []byte("v")))
			value, err := dict.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), value)

			require.NoError(t, s.Sync())
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("bolt", Options{})
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRecordFactory(t *testing.T) {
	f := NewRecordFactory(3)
	require.Equal(t, 24, f.KeyLength())

	physical := tuple.Of(nodeid.NewPtr(1), nodeid.New(nodeid.TypeInteger, 7), nodeid.NewPtr(nodeid.MaxPayload))
	rec := f.Record(physical)
	require.Len(t, rec, 24)
	require.True(t, physical.Equal(f.Tuple(rec)))

	prefix := f.Prefix(tuple.Of(nodeid.NewPtr(1)))
	require.Equal(t, nodeid.NewPtr(1).Bytes(), prefix[:8])
	require.Equal(t, make([]byte, 16), prefix[8:])
}
