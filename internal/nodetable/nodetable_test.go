package nodetable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/storage"
	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

func TestRoundTrip(t *testing.T) {
	table, err := Open(storage.NewMemoryStorage())
	require.NoError(t, err)

	terms := []rdf.Term{
		rdf.NewNamedNode("http://example.org/alice"),
		rdf.NewBlankNode("b0"),
		rdf.NewLiteral("hello"),
		rdf.NewLiteral(""),
		rdf.NewLiteralWithLanguage("bonjour", "fr"),
		rdf.NewLiteralWithDatatype("abc", rdf.XSDString),
		rdf.NewLiteralWithDatatype("1.50", rdf.XSDDecimal),
		rdf.NewIntegerLiteral(42),
	}

	ids := make(map[nodeid.NodeID]bool)
	for _, term := range terms {
		id, err := table.GetOrAllocate(term)
		require.NoError(t, err)
		require.True(t, id.IsConcrete())
		require.False(t, ids[id], "%s reused id %s", term, id)
		ids[id] = true

		again, err := table.GetOrAllocate(term)
		require.NoError(t, err)
		require.Equal(t, id, again)

		back, err := table.Term(id)
		require.NoError(t, err)
		require.True(t, back.Equals(term), "got %s want %s", back, term)
	}

	// the integer is inline, everything else was allocated
	require.EqualValues(t, len(terms)-1, table.Allocated())
}

func TestInlineTermsAreNotStored(t *testing.T) {
	table, err := Open(storage.NewMemoryStorage())
	require.NoError(t, err)

	id, err := table.GetOrAllocate(rdf.NewBooleanLiteral(true))
	require.NoError(t, err)
	require.Equal(t, nodeid.TypeBoolean, id.Type())
	require.Zero(t, table.Allocated())
}

func TestLookupDoesNotAllocate(t *testing.T) {
	table, err := Open(storage.NewMemoryStorage())
	require.NoError(t, err)

	term := rdf.NewNamedNode("http://example.org/p")
	_, found, err := table.Lookup(term)
	require.NoError(t, err)
	require.False(t, found)
	require.Zero(t, table.Allocated())

	id, err := table.GetOrAllocate(term)
	require.NoError(t, err)
	got, found, err := table.Lookup(term)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, id, got)
}

func TestErrors(t *testing.T) {
	table, err := Open(storage.NewMemoryStorage())
	require.NoError(t, err)

	_, err = table.GetOrAllocate(rdf.NewDefaultGraph())
	require.ErrorIs(t, err, ErrUnsupportedTerm)

	_, err = table.Term(nodeid.Any)
	require.ErrorIs(t, err, ErrNotConcrete)

	_, err = table.Term(nodeid.NewPtr(99))
	require.ErrorIs(t, err, ErrUnknownNode)
}

func TestCollisionsTakeNextSlot(t *testing.T) {
	s := storage.NewMemoryStorage()
	table, err := Open(s)
	require.NoError(t, err)

	a := rdf.NewNamedNode("http://example.org/a")
	b := rdf.NewNamedNode("http://example.org/b")
	idA, err := table.GetOrAllocate(a)
	require.NoError(t, err)

	// plant a's id under b's first slot, as if their hashes collided
	dataB, err := marshalTerm(b)
	require.NoError(t, err)
	forward, err := s.Dictionary(forwardDict)
	require.NoError(t, err)
	require.NoError(t, forward.Set(forwardKey(dataB, 0), idA.Bytes()))

	idB, err := table.GetOrAllocate(b)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	got, found, err := table.Lookup(b)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, idB, got)
}

func TestCounterSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := storage.Open(storage.BackendBadger, storage.Options{Path: dir})
	require.NoError(t, err)
	table, err := Open(s)
	require.NoError(t, err)
	first, err := table.GetOrAllocate(rdf.NewNamedNode("http://example.org/x"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = storage.Open(storage.BackendBadger, storage.Options{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	table, err = Open(s)
	require.NoError(t, err)

	again, err := table.GetOrAllocate(rdf.NewNamedNode("http://example.org/x"))
	require.NoError(t, err)
	require.Equal(t, first, again)

	second, err := table.GetOrAllocate(rdf.NewNamedNode("http://example.org/y"))
	require.NoError(t, err)
	require.Equal(t, first.Payload()+1, second.Payload())
}

var errInjected = errors.New("injected write failure")

// flakyStorage fails writes to the forward dictionary while broken is set
type flakyStorage struct {
	*storage.MemoryStorage
	broken bool
}

func (s *flakyStorage) Dictionary(name string) (storage.Dictionary, error) {
	d, err := s.MemoryStorage.Dictionary(name)
	if err != nil || name != forwardDict {
		return d, err
	}
	return &flakyDictionary{Dictionary: d, storage: s}, nil
}

type flakyDictionary struct {
	storage.Dictionary
	storage *flakyStorage
}

func (d *flakyDictionary) Set(key, value []byte) error {
	if d.storage.broken {
		return errInjected
	}
	return d.Dictionary.Set(key, value)
}

func TestFailedAllocationNeverReusesID(t *testing.T) {
	s := &flakyStorage{MemoryStorage: storage.NewMemoryStorage()}
	table, err := Open(s)
	require.NoError(t, err)

	a := rdf.NewNamedNode("http://example.org/a")
	idA, err := table.GetOrAllocate(a)
	require.NoError(t, err)

	s.broken = true
	_, err = table.GetOrAllocate(rdf.NewNamedNode("http://example.org/b"))
	require.ErrorIs(t, err, errInjected)
	s.broken = false

	// a fresh table reads the counter back from storage
	table, err = Open(s)
	require.NoError(t, err)

	c := rdf.NewNamedNode("http://example.org/c")
	idC, err := table.GetOrAllocate(c)
	require.NoError(t, err)
	require.Equal(t, idA.Payload()+2, idC.Payload())

	back, err := table.Term(idC)
	require.NoError(t, err)
	require.True(t, back.Equals(c))
}
