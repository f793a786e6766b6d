package store

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/tupleindex/internal/index"
	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

// UnionGraph names the graph made of the triples of every named graph,
// each triple reported once
var UnionGraph = rdf.NewNamedNode("urn:x-arq:UnionGraph")

// Pattern is a quad pattern. Each position holds an rdf.Term or an
// *rdf.Variable. A nil Graph means the default graph; a variable Graph
// matches the default graph and every named graph.
type Pattern struct {
	Subject   rdf.Term
	Predicate rdf.Term
	Object    rdf.Term
	Graph     rdf.Term
}

// NewPattern builds a pattern; nil positions other than graph become
// anonymous variables
func NewPattern(subject, predicate, object, graph rdf.Term) *Pattern {
	p := &Pattern{Subject: subject, Predicate: predicate, Object: object, Graph: graph}
	for i, term := range []*rdf.Term{&p.Subject, &p.Predicate, &p.Object} {
		if *term == nil {
			*term = rdf.NewVariable(fmt.Sprintf("_%d", i))
		}
	}
	return p
}

func (p *Pattern) String() string {
	parts := []string{p.Subject.String(), p.Predicate.String(), p.Object.String()}
	if !rdf.IsDefaultGraph(p.Graph) {
		parts = append(parts, p.Graph.String())
	}
	return strings.Join(parts, " ")
}

// QuadIterator iterates over quads matching a pattern
type QuadIterator interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Err() error
	Close() error
}

// Query returns the quads matching pattern.
//
// Terms the node table has never seen cannot match, so the query returns
// nothing without scanning. A variable repeated in several positions only
// matches quads holding the same term in each of them.
func (s *TripleStore) Query(pattern *Pattern) (QuadIterator, error) {
	subj, err := s.id(pattern.Subject)
	if err != nil {
		return nil, err
	}
	pred, err := s.id(pattern.Predicate)
	if err != nil {
		return nil, err
	}
	obj, err := s.id(pattern.Object)
	if err != nil {
		return nil, err
	}
	same := sameVariables(pattern)

	graph := pattern.Graph
	if rdf.IsDefaultGraph(graph) && s.config.Query.UnionDefaultGraph {
		graph = UnionGraph
	}

	switch {
	case rdf.IsDefaultGraph(graph):
		it, err := s.triples.Find(tuple.Of(subj, pred, obj))
		if err != nil {
			return nil, err
		}
		return s.quadIterator(filterSame(it, same, 0), 0), nil

	case graph.Equals(UnionGraph):
		it, err := s.unionFind(tuple.Of(nodeid.Any, subj, pred, obj))
		if err != nil {
			return nil, err
		}
		return s.quadIterator(filterSame(it, same, 1), 1), nil
	}

	g, err := s.id(graph)
	if err != nil {
		return nil, err
	}
	named, err := s.quads.Find(tuple.Of(g, subj, pred, obj))
	if err != nil {
		return nil, err
	}
	quads := s.quadIterator(filterSame(named, same, 1), 1)
	if !g.IsAny() || sharesGraph(same) {
		return quads, nil
	}

	// a graph variable also matches the default graph
	triples, err := s.triples.Find(tuple.Of(subj, pred, obj))
	if err != nil {
		quads.Close()
		return nil, err
	}
	return &concatIterator{iters: []QuadIterator{s.quadIterator(filterSame(triples, same, 0), 0), quads}}, nil
}

// unionFind scans the quad table through an index ending in G, so that
// copies of one triple in different graphs arrive next to each other and
// can be dropped
func (s *TripleStore) unionFind(pattern tuple.Tuple) (tuple.Iterator, error) {
	if pattern.Contains(nodeid.DoesNotExist) {
		return tuple.Empty(), nil
	}

	var (
		best   index.TupleIndex
		weight = -1
	)
	for _, idx := range s.quads.Indexes() {
		if idx == nil || !strings.HasSuffix(strings.ToUpper(idx.Name()), "G") {
			continue
		}
		if w := idx.Weight(pattern); w > weight {
			best, weight = idx, w
		}
	}

	if best == nil {
		s.logger.Info("no ???G index found for union graph queries, deduplicating in memory")
		it, err := s.quads.Find(pattern)
		if err != nil {
			return nil, err
		}
		seen := make(map[[3]nodeid.NodeID]bool)
		return tuple.Filter(it, func(t tuple.Tuple) bool {
			key := [3]nodeid.NodeID{t[1], t[2], t[3]}
			if seen[key] {
				return false
			}
			seen[key] = true
			return true
		}), nil
	}

	it, err := best.Find(pattern)
	if err != nil {
		return nil, err
	}
	return &distinctTriples{src: it}, nil
}

// distinctTriples drops quads whose triple equals that of the previous quad
type distinctTriples struct {
	src  tuple.Iterator
	last tuple.Tuple
}

func (it *distinctTriples) Next() bool {
	for it.src.Next() {
		t := it.src.Tuple()
		if it.last != nil && t[1:].Equal(it.last[1:]) {
			continue
		}
		it.last = t.Clone()
		return true
	}
	return false
}

func (it *distinctTriples) Tuple() tuple.Tuple { return it.src.Tuple() }
func (it *distinctTriples) Err() error { return it.src.Err() }
func (it *distinctTriples) Close() error { return it.src.Close() }

// sameVariables lists the groups of positions (0 graph, 1 subject,
// 2 predicate, 3 object) sharing a variable
func sameVariables(p *Pattern) [][]int {
	positions := make(map[string][]int)
	var order []string
	for i, term := range []rdf.Term{p.Graph, p.Subject, p.Predicate, p.Object} {
		v, ok := term.(*rdf.Variable)
		if !ok {
			continue
		}
		if _, seen := positions[v.Name]; !seen {
			order = append(order, v.Name)
		}
		positions[v.Name] = append(positions[v.Name], i)
	}

	var groups [][]int
	for _, name := range order {
		if len(positions[name]) > 1 {
			groups = append(groups, positions[name])
		}
	}
	return groups
}

// sharesGraph reports whether the graph variable also appears in another
// position. The default graph has no term, so such a pattern only matches
// named graphs.
func sharesGraph(groups [][]int) bool {
	for _, group := range groups {
		if group[0] == 0 {
			return true
		}
	}
	return false
}

// filterSame drops tuples whose slots differ within a group of shared
// variables. offset is the slot of the subject in t; positions before it
// are absent from t.
func filterSame(it tuple.Iterator, groups [][]int, offset int) tuple.Iterator {
	if len(groups) == 0 {
		return it
	}
	return tuple.Filter(it, func(t tuple.Tuple) bool {
		for _, group := range groups {
			var first nodeid.NodeID
			have := false
			for _, pos := range group {
				slot := pos - 1 + offset
				if slot < 0 {
					continue
				}
				if !have {
					first, have = t[slot], true
				} else if t[slot] != first {
					return false
				}
			}
		}
		return true
	})
}

// quadIterator decodes tuples into quads. subject is the slot of the
// subject; a tuple with a slot before it carries the graph there.
func (s *TripleStore) quadIterator(it tuple.Iterator, subject int) QuadIterator {
	return &quadIterator{store: s, it: it, subject: subject}
}

type quadIterator struct {
	store   *TripleStore
	it      tuple.Iterator
	subject int
	closed  bool
}

func (qi *quadIterator) Next() bool {
	if qi.closed {
		return false
	}
	return qi.it.Next()
}

func (qi *quadIterator) Quad() (*rdf.Quad, error) {
	if qi.closed {
		return nil, fmt.Errorf("iterator closed")
	}

	t := qi.it.Tuple()
	if t == nil {
		return nil, fmt.Errorf("no current tuple")
	}

	terms := make([]rdf.Term, len(t))
	for i, id := range t {
		term, err := qi.store.nodes.Term(id)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", id, err)
		}
		terms[i] = term
	}

	var graph rdf.Term = rdf.NewDefaultGraph()
	if qi.subject > 0 {
		graph = terms[0]
	}
	spo := terms[qi.subject:]
	return rdf.NewQuad(spo[0], spo[1], spo[2], graph), nil
}

func (qi *quadIterator) Err() error {
	return qi.it.Err()
}

func (qi *quadIterator) Close() error {
	if qi.closed {
		return nil
	}
	qi.closed = true
	return qi.it.Close()
}

// concatIterator yields the quads of each iterator in turn
type concatIterator struct {
	iters []QuadIterator
	err   error
}

func (c *concatIterator) Next() bool {
	for len(c.iters) > 0 {
		if c.iters[0].Next() {
			return true
		}
		if err := c.iters[0].Err(); err != nil {
			c.err = err
			return false
		}
		c.iters[0].Close()
		c.iters = c.iters[1:]
	}
	return false
}

func (c *concatIterator) Quad() (*rdf.Quad, error) {
	if len(c.iters) == 0 {
		return nil, fmt.Errorf("no current quad")
	}
	return c.iters[0].Quad()
}

func (c *concatIterator) Err() error {
	return c.err
}

func (c *concatIterator) Close() error {
	var err error
	for _, it := range c.iters {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.iters = nil
	return err
}
