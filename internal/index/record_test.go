package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/storage"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

var (
	s1 = nodeid.NewPtr(1)
	s2 = nodeid.NewPtr(2)
	p1 = nodeid.NewPtr(11)
	p2 = nodeid.NewPtr(12)
	o1 = nodeid.NewPtr(21)
	o2 = nodeid.New(nodeid.TypeInteger, 7)

	wild = nodeid.Any
)

func openIndex(t *testing.T, s storage.Storage, natural, name string, opts Options) *RecordIndex {
	t.Helper()

	idx, err := Open(s, natural, name, opts)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func newIndex(t *testing.T, name string) *RecordIndex {
	t.Helper()
	return openIndex(t, storage.NewMemoryStorage(), "SPO", name, DefaultOptions())
}

func find(t *testing.T, idx TupleIndex, pattern tuple.Tuple) []tuple.Tuple {
	t.Helper()

	it, err := idx.Find(pattern)
	require.NoError(t, err)
	tuples, err := tuple.Collect(it)
	require.NoError(t, err)
	return tuples
}

func TestAddFindDelete(t *testing.T) {
	for _, name := range []string{"SPO", "POS", "OSP"} {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t, name)
			triple := tuple.Of(s1, p1, o1)

			require.NoError(t, idx.Add(triple))
			require.Equal(t, []tuple.Tuple{triple}, find(t, idx, triple))

			require.NoError(t, idx.Delete(triple))
			require.Empty(t, find(t, idx, triple))

			empty, err := idx.IsEmpty()
			require.NoError(t, err)
			require.True(t, empty)
		})
	}
}

func TestResultsInNaturalOrder(t *testing.T) {
	idx := newIndex(t, "POS")
	require.NoError(t, idx.AddAll([]tuple.Tuple{
		tuple.Of(s1, p1, o1),
		tuple.Of(s2, p1, o2),
		tuple.Of(s1, p2, o1),
	}))

	got := find(t, idx, tuple.Of(wild, p1, wild))
	require.ElementsMatch(t, []tuple.Tuple{tuple.Of(s1, p1, o1), tuple.Of(s2, p1, o2)}, got)

	all, err := idx.All()
	require.NoError(t, err)
	tuples, err := tuple.Collect(all)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	// POS order: p1 before p2
	require.Equal(t, p2, tuples[2][1])
}

func TestWeight(t *testing.T) {
	spo := newIndex(t, "SPO")
	pos := newIndex(t, "POS")

	tests := []struct {
		pattern tuple.Tuple
		spo     int
		pos     int
	}{
		{tuple.Of(wild, wild, wild), 0, 0},
		{tuple.Of(s1, wild, wild), 1, 0},
		{tuple.Of(wild, p1, wild), 0, 1},
		{tuple.Of(s1, p1, wild), 2, 1},
		{tuple.Of(s1, wild, o1), 1, 0},
		{tuple.Of(wild, p1, o1), 0, 2},
		{tuple.Of(s1, p1, o1), 3, 3},
	}

	for _, tt := range tests {
		require.Equal(t, tt.spo, spo.Weight(tt.pattern), "SPO weight of %s", tt.pattern)
		require.Equal(t, tt.pos, pos.Weight(tt.pattern), "POS weight of %s", tt.pattern)
	}

	require.Zero(t, spo.Weight(tuple.Of(s1, p1)))
}

func TestPartialScan(t *testing.T) {
	idx := newIndex(t, "SPO")
	require.NoError(t, idx.AddAll([]tuple.Tuple{
		tuple.Of(s1, p1, o1),
		tuple.Of(s1, p2, o1),
		tuple.Of(s1, p1, o2),
		tuple.Of(s2, p1, o1),
	}))

	require.Equal(t, 1, idx.Weight(tuple.Of(s1, wild, o1)))

	got := find(t, idx, tuple.Of(s1, wild, o1))
	require.ElementsMatch(t, []tuple.Tuple{tuple.Of(s1, p1, o1), tuple.Of(s1, p2, o1)}, got)

	// no leading slot: full scan plus filter
	got = find(t, idx, tuple.Of(wild, p1, wild))
	require.Len(t, got, 3)
}

func TestScanRestrictions(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowFullScan = false
	opts.AllowPartialScan = false
	idx := openIndex(t, storage.NewMemoryStorage(), "SPO", "SPO", opts)
	require.NoError(t, idx.Add(tuple.Of(s1, p1, o1)))

	_, err := idx.Find(tuple.Of(wild, wild, wild))
	require.ErrorIs(t, err, ErrFullScanDisallowed)

	_, err = idx.Find(tuple.Of(s1, wild, o1))
	require.ErrorIs(t, err, ErrPartialScanDisallowed)

	// a prefix scan and an existence check need neither
	require.Len(t, find(t, idx, tuple.Of(s1, p1, wild)), 1)
	require.Len(t, find(t, idx, tuple.Of(s1, p1, o1)), 1)
}

func TestPrefixScanCarriesIntoNextByte(t *testing.T) {
	idx := newIndex(t, "SPO")
	last := nodeid.NewPtr(nodeid.MaxPayload)
	next := nodeid.New(nodeid.TypeInteger, 0)
	require.NoError(t, idx.Add(tuple.Of(last, p1, o1)))
	require.NoError(t, idx.Add(tuple.Of(next, p1, o1)))

	require.Equal(t, []tuple.Tuple{tuple.Of(last, p1, o1)}, find(t, idx, tuple.Of(last, wild, wild)))
	require.Equal(t, []tuple.Tuple{tuple.Of(next, p1, o1)}, find(t, idx, tuple.Of(next, wild, wild)))
}

func TestSuccessor(t *testing.T) {
	require.Equal(t, []byte{0, 2, 0, 0}, successor([]byte{0, 1, 0, 0}, 2))
	require.Equal(t, []byte{1, 0, 0, 0}, successor([]byte{0, 0xFF, 0, 0}, 2))
	require.Nil(t, successor([]byte{0xFF, 0xFF, 0, 0}, 2))
}

func TestTupleLength(t *testing.T) {
	idx := newIndex(t, "SPO")

	require.ErrorIs(t, idx.Add(tuple.Of(s1, p1)), ErrTupleLength)
	require.ErrorIs(t, idx.AddAll([]tuple.Tuple{tuple.Of(s1, p1, o1), tuple.Of(s1)}), ErrTupleLength)
	_, err := idx.Find(tuple.Of(s1, p1, o1, s2))
	require.ErrorIs(t, err, ErrTupleLength)

	// a failing batch writes nothing
	empty, err := idx.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	_, err = NewRecordIndex("SPOG", tuple.MustColumnMap("SPOG", "SPOG"), mustRange(t, 24), DefaultOptions())
	require.ErrorIs(t, err, ErrTupleLength)
}

func mustRange(t *testing.T, keyLength int) storage.RangeIndex {
	t.Helper()
	keys, err := storage.NewMemoryStorage().Index("test", keyLength)
	require.NoError(t, err)
	return keys
}

func TestClosedIndex(t *testing.T) {
	idx := newIndex(t, "SPO")
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	require.ErrorIs(t, idx.Add(tuple.Of(s1, p1, o1)), ErrClosed)
	_, err := idx.Find(tuple.Of(wild, wild, wild))
	require.ErrorIs(t, err, ErrClosed)
	_, err = idx.Size()
	require.ErrorIs(t, err, ErrClosed)
}

func TestClearAndDeleteAll(t *testing.T) {
	idx := newIndex(t, "OSP")
	batch := []tuple.Tuple{tuple.Of(s1, p1, o1), tuple.Of(s2, p2, o2)}
	require.NoError(t, idx.AddAll(batch))

	require.NoError(t, idx.DeleteAll(batch[:1]))
	size, err := idx.Size()
	require.NoError(t, err)
	require.EqualValues(t, 1, size)

	require.NoError(t, idx.Clear())
	size, err = idx.Size()
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestRecordIndexOnDisk(t *testing.T) {
	for _, backend := range []string{storage.BackendBadger, storage.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			s, err := storage.Open(backend, storage.Options{Path: t.TempDir()})
			require.NoError(t, err)
			defer s.Close()

			idx := openIndex(t, s, "GSPO", "POSG", DefaultOptions())
			g := nodeid.NewPtr(100)
			require.NoError(t, idx.AddAll([]tuple.Tuple{
				tuple.Of(g, s1, p1, o1),
				tuple.Of(g, s2, p1, o2),
				tuple.Of(g, s1, p2, o1),
			}))

			got := find(t, idx, tuple.Of(wild, wild, p1, o2))
			require.Equal(t, []tuple.Tuple{tuple.Of(g, s2, p1, o2)}, got)
			require.NoError(t, idx.Sync())
		})
	}
}
