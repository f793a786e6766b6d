package rdfio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

const sample = `<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice"@en <http://example.org/g1> .
_:b0 <http://xmlns.com/foaf/0.1/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> <http://example.org/g1> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" .
`

func TestNewParser(t *testing.T) {
	p, err := NewParser("application/n-quads; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "application/n-quads", p.ContentType())

	p, err = NewParser("text/plain")
	require.NoError(t, err)
	require.Equal(t, "application/n-triples", p.ContentType())

	_, err = NewParser("text/turtle")
	require.Error(t, err)

	ct, err := ContentTypeFor("data/dump.nq")
	require.NoError(t, err)
	require.Equal(t, "application/n-quads", ct)
	_, err = ContentTypeFor("data/dump.ttl")
	require.Error(t, err)

	for _, ct := range ContentTypes() {
		_, err := NewParser(ct)
		require.NoError(t, err, ct)
	}
	require.Contains(t, ContentTypes(), "application/n-quads")
}

func TestStreamStopsAtCallbackError(t *testing.T) {
	stop := errors.New("stop")
	var seen []*rdf.Quad
	err := (&NQuadsParser{}).Stream(strings.NewReader(sample), func(q *rdf.Quad) error {
		seen = append(seen, q)
		if len(seen) == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Len(t, seen, 2)
}

func TestNTriplesStreamRejectsGraphBeforeLaterStatements(t *testing.T) {
	var seen int
	err := (&NTriplesParser{}).Stream(strings.NewReader(sample), func(*rdf.Quad) error {
		seen++
		return nil
	})
	require.ErrorIs(t, err, ErrGraphInTriples)
	// only the first statement precedes the labelled one
	require.Equal(t, 1, seen)
}

func TestParseNQuads(t *testing.T) {
	p := &NQuadsParser{}
	quads, err := p.Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, quads, 4)

	require.True(t, rdf.IsDefaultGraph(quads[0].Graph))
	require.True(t, quads[0].Object.Equals(rdf.NewNamedNode("http://example.org/bob")))

	require.True(t, quads[1].Graph.Equals(rdf.NewNamedNode("http://example.org/g1")))
	require.True(t, quads[1].Object.Equals(rdf.NewLiteralWithLanguage("Alice", "en")))

	require.True(t, quads[2].Subject.Equals(rdf.NewBlankNode("b0")))
	require.True(t, quads[2].Object.Equals(rdf.NewLiteralWithDatatype("30", rdf.XSDInteger)))

	require.True(t, quads[3].Object.Equals(rdf.NewLiteral("Bob")))
}

func TestNTriplesRejectsGraphs(t *testing.T) {
	_, err := (&NTriplesParser{}).Parse(strings.NewReader(sample))
	require.ErrorIs(t, err, ErrGraphInTriples)

	quads, err := (&NTriplesParser{}).Parse(strings.NewReader(
		"<http://example.org/a> <http://example.org/p> <http://example.org/b> .\n"))
	require.NoError(t, err)
	require.Len(t, quads, 1)
}

func TestQuadReaderStreams(t *testing.T) {
	r := NewQuadReader(strings.NewReader(sample))
	defer r.Close()

	n := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 4, n)
}

func TestWriteThenRead(t *testing.T) {
	quads, err := (&NQuadsParser{}).Parse(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, q := range quads {
		require.NoError(t, w.Write(q))
	}
	require.NoError(t, w.Close())

	again, err := (&NQuadsParser{}).Parse(&buf)
	require.NoError(t, err)
	require.Len(t, again, len(quads))
	for i := range quads {
		require.Equal(t, quads[i].String(), again[i].String())
	}
}

func TestWriteRejectsVariables(t *testing.T) {
	w := NewWriter(io.Discard)
	err := w.Write(rdf.NewQuad(rdf.NewVariable("s"), rdf.NewNamedNode("http://example.org/p"), rdf.NewLiteral("x"), nil))
	require.Error(t, err)
}
