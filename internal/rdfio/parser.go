package rdfio

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cayleygraph/quad"
	"github.com/cayleygraph/quad/nquads"

	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

var ErrGraphInTriples = errors.New("rdfio: graph label in N-Triples input")

// Parser reads one line-based RDF syntax
type Parser interface {
	// Stream hands each statement of r to fn in input order and stops at
	// the first error, whether from the input or from fn
	Stream(r io.Reader, fn func(*rdf.Quad) error) error

	// Parse collects every statement of r
	Parse(r io.Reader) ([]*rdf.Quad, error)

	ContentType() string
}

var parsers = map[string]func() Parser{
	"application/n-triples": func() Parser { return &NTriplesParser{} },
	"application/n-quads":   func() Parser { return &NQuadsParser{} },
	"text/plain":            func() Parser { return &NTriplesParser{} },
}

// NewParser picks the parser for a media type. Parameters such as charset
// are ignored.
func NewParser(contentType string) (Parser, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i != -1 {
		ct = strings.TrimSpace(ct[:i])
	}
	newParser, ok := parsers[ct]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
	return newParser(), nil
}

// ContentTypes lists the media types NewParser accepts, sorted
func ContentTypes() []string {
	types := make([]string, 0, len(parsers))
	for ct := range parsers {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// ContentTypeFor maps a file extension to a media type
func ContentTypeFor(fileName string) (string, error) {
	switch {
	case strings.HasSuffix(fileName, ".nt"):
		return "application/n-triples", nil
	case strings.HasSuffix(fileName, ".nq"):
		return "application/n-quads", nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", fileName)
	}
}

// NTriplesParser only accepts statements in the default graph
type NTriplesParser struct{}

func (p *NTriplesParser) ContentType() string {
	return "application/n-triples"
}

func (p *NTriplesParser) Stream(r io.Reader, fn func(*rdf.Quad) error) error {
	return stream(r, func(q *rdf.Quad) error {
		if !rdf.IsDefaultGraph(q.Graph) {
			return fmt.Errorf("%w: %s", ErrGraphInTriples, q)
		}
		return fn(q)
	})
}

func (p *NTriplesParser) Parse(r io.Reader) ([]*rdf.Quad, error) {
	return collect(p, r)
}

type NQuadsParser struct{}

func (p *NQuadsParser) ContentType() string {
	return "application/n-quads"
}

func (p *NQuadsParser) Stream(r io.Reader, fn func(*rdf.Quad) error) error {
	return stream(r, fn)
}

func (p *NQuadsParser) Parse(r io.Reader) ([]*rdf.Quad, error) {
	return collect(p, r)
}

func stream(r io.Reader, fn func(*rdf.Quad) error) error {
	reader := NewQuadReader(r)
	defer reader.Close()

	for {
		q, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(q); err != nil {
			return err
		}
	}
}

func collect(p Parser, r io.Reader) ([]*rdf.Quad, error) {
	var quads []*rdf.Quad
	err := p.Stream(r, func(q *rdf.Quad) error {
		quads = append(quads, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quads, nil
}

// QuadReader streams quads from N-Triples or N-Quads input
type QuadReader struct {
	reader *nquads.Reader
	line   int
}

// NewQuadReader reads either syntax; N-Triples is N-Quads without labels
func NewQuadReader(r io.Reader) *QuadReader {
	return &QuadReader{reader: nquads.NewReader(r, true)}
}

// Read returns the next quad, or io.EOF at the end of the input
func (r *QuadReader) Read() (*rdf.Quad, error) {
	value, err := r.reader.ReadQuad()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("statement %d: %w", r.line+1, err)
	}
	r.line++

	q, err := FromQuad(value)
	if err != nil {
		return nil, fmt.Errorf("statement %d: %w", r.line, err)
	}
	return q, nil
}

func (r *QuadReader) Close() error {
	return r.reader.Close()
}

// FromQuad converts a parsed quad. A missing label means the default graph.
func FromQuad(value quad.Quad) (*rdf.Quad, error) {
	subject, err := fromValue(value.Subject)
	if err != nil {
		return nil, err
	}
	predicate, err := fromValue(value.Predicate)
	if err != nil {
		return nil, err
	}
	object, err := fromValue(value.Object)
	if err != nil {
		return nil, err
	}

	var graph rdf.Term
	if value.Label != nil {
		if graph, err = fromValue(value.Label); err != nil {
			return nil, err
		}
	}
	return rdf.NewQuad(subject, predicate, object, graph), nil
}

func fromValue(value quad.Value) (rdf.Term, error) {
	switch v := value.(type) {
	case quad.IRI:
		return rdf.NewNamedNode(string(v)), nil
	case quad.BNode:
		return rdf.NewBlankNode(string(v)), nil
	case quad.String:
		return rdf.NewLiteral(string(v)), nil
	case quad.LangString:
		return rdf.NewLiteralWithLanguage(string(v.Value), v.Lang), nil
	case quad.TypedString:
		return rdf.NewLiteralWithDatatype(string(v.Value), rdf.NewNamedNode(string(v.Type))), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", value, value)
	}
}

// ToQuad converts a quad for writing. The default graph has no label.
func ToQuad(q *rdf.Quad) (quad.Quad, error) {
	subject, err := toValue(q.Subject)
	if err != nil {
		return quad.Quad{}, err
	}
	predicate, err := toValue(q.Predicate)
	if err != nil {
		return quad.Quad{}, err
	}
	object, err := toValue(q.Object)
	if err != nil {
		return quad.Quad{}, err
	}

	out := quad.Quad{Subject: subject, Predicate: predicate, Object: object}
	if !rdf.IsDefaultGraph(q.Graph) {
		if out.Label, err = toValue(q.Graph); err != nil {
			return quad.Quad{}, err
		}
	}
	return out, nil
}

func toValue(term rdf.Term) (quad.Value, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return quad.IRI(t.IRI), nil
	case *rdf.BlankNode:
		return quad.BNode(t.ID), nil
	case *rdf.Literal:
		switch {
		case t.Language != "":
			return quad.LangString{Value: quad.String(t.Value), Lang: t.Language}, nil
		case t.Datatype != nil && t.Datatype.IRI != rdf.XSDString.IRI:
			return quad.TypedString{Value: quad.String(t.Value), Type: quad.IRI(t.Datatype.IRI)}, nil
		default:
			return quad.String(t.Value), nil
		}
	default:
		return nil, fmt.Errorf("cannot write term %s", term)
	}
}

// Writer writes quads as N-Quads
type Writer struct {
	writer *nquads.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: nquads.NewWriter(w)}
}

func (w *Writer) Write(q *rdf.Quad) error {
	value, err := ToQuad(q)
	if err != nil {
		return err
	}
	return w.writer.WriteQuad(value)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
