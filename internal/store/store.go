package store

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aleksaelezovic/tupleindex/internal/config"
	"github.com/aleksaelezovic/tupleindex/internal/index"
	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/nodetable"
	"github.com/aleksaelezovic/tupleindex/internal/storage"
	"github.com/aleksaelezovic/tupleindex/internal/table"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

var (
	ErrUnknownIndex   = errors.New("store: unknown index")
	ErrPrimaryIndex   = errors.New("store: primary index cannot be rebuilt")
	ErrCrossTableCopy = errors.New("store: indexes belong to different tables")
)

// TripleStore is one RDF dataset. Triples of the default graph live in the
// triple table (natural order SPO); quads of named graphs live in the quad
// table (natural order GSPO). Both tables share one node table.
//
// Writes to a table are not atomic across its indexes. A failed write may
// leave some indexes updated; RebuildIndex repairs a secondary index from
// the primary one.
type TripleStore struct {
	storage storage.Storage
	nodes   *nodetable.NodeTable
	triples *table.TupleTable
	quads   *table.TupleTable
	config  *config.Config
	logger  logr.Logger
}

// Options configures a TripleStore
type Options struct {
	// Config defaults to config.Default()
	Config *config.Config

	Logger logr.Logger

	// Registerer receives the index metrics when Config.Metrics is set.
	// It defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

func (o *Options) setDefaults() {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.DefaultRegisterer
	}
}

// Open opens the storage engine named by the configuration and the dataset
// inside it
func Open(opts Options) (*TripleStore, error) {
	opts.setDefaults()

	cfg := opts.Config
	s, err := storage.Open(cfg.Storage.Backend, storage.Options{
		Path:       cfg.Storage.Path,
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	st, err := NewTripleStore(s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	return st, nil
}

// NewTripleStore opens the dataset kept in s. Once it succeeds the store
// owns s and closes it in Close.
func NewTripleStore(s storage.Storage, opts Options) (*TripleStore, error) {
	opts.setDefaults()

	nodes, err := nodetable.Open(s)
	if err != nil {
		return nil, fmt.Errorf("failed to open node table: %w", err)
	}

	st := &TripleStore{
		storage: s,
		nodes:   nodes,
		config:  opts.Config,
		logger:  opts.Logger,
	}

	var metrics *index.Metrics
	if opts.Config.Metrics {
		metrics = index.NewMetrics(opts.Registerer)
	}

	st.triples, err = st.openTable(config.TripleOrder, opts.Config.Indexes.Triple, metrics)
	if err != nil {
		return nil, err
	}
	st.quads, err = st.openTable(config.QuadOrder, opts.Config.Indexes.Quad, metrics)
	if err != nil {
		st.triples.Close()
		return nil, err
	}
	return st, nil
}

// openTable opens one index per name and groups them. The first name is
// the primary index.
func (s *TripleStore) openTable(natural string, names []string, metrics *index.Metrics) (*table.TupleTable, error) {
	opts := index.Options{
		CheckLength:      s.config.Indexes.CheckLength,
		AllowFullScan:    s.config.Indexes.AllowFullScan,
		AllowPartialScan: s.config.Indexes.AllowPartialScan,
	}

	indexes := make([]index.TupleIndex, 0, len(names))
	closeAll := func() {
		for _, idx := range indexes {
			idx.Close()
		}
	}

	for _, name := range names {
		rec, err := index.Open(s.storage, natural, name, opts)
		if err != nil {
			closeAll()
			return nil, err
		}

		var idx index.TupleIndex = rec
		if s.config.Load.Bulk {
			idx = index.NewBulkIndex(rec, s.logger.WithName("bulk"))
		}
		if metrics != nil {
			idx = index.NewMetered(idx, metrics)
		}
		indexes = append(indexes, idx)
	}

	t, err := table.New(len(natural), indexes, s.logger.WithName("table").WithValues("order", natural))
	if err != nil {
		closeAll()
		return nil, err
	}
	return t, nil
}

// Close closes every index and then the storage engine
func (s *TripleStore) Close() error {
	return errors.Join(s.triples.Close(), s.quads.Close(), s.storage.Close())
}

// Sync flushes both tables and the storage engine
func (s *TripleStore) Sync() error {
	if err := s.triples.Sync(); err != nil {
		return err
	}
	if err := s.quads.Sync(); err != nil {
		return err
	}
	return s.storage.Sync()
}

// Triples returns the default graph table
func (s *TripleStore) Triples() *table.TupleTable {
	return s.triples
}

// Quads returns the named graph table
func (s *TripleStore) Quads() *table.TupleTable {
	return s.quads
}

// Nodes returns the node table
func (s *TripleStore) Nodes() *nodetable.NodeTable {
	return s.nodes
}

// encodeQuad allocates ids for every term of quad and returns the tuple for
// the table the quad belongs in
func (s *TripleStore) encodeQuad(quad *rdf.Quad) (tuple.Tuple, bool, error) {
	subj, err := s.nodes.GetOrAllocate(quad.Subject)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode subject: %w", err)
	}
	pred, err := s.nodes.GetOrAllocate(quad.Predicate)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode predicate: %w", err)
	}
	obj, err := s.nodes.GetOrAllocate(quad.Object)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode object: %w", err)
	}

	if rdf.IsDefaultGraph(quad.Graph) {
		return tuple.Of(subj, pred, obj), true, nil
	}
	graph, err := s.nodes.GetOrAllocate(quad.Graph)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode graph: %w", err)
	}
	return tuple.Of(graph, subj, pred, obj), false, nil
}

// lookupQuad is encodeQuad without allocation. The second result is false
// when some term is unknown, in which case the quad cannot be stored.
func (s *TripleStore) lookupQuad(quad *rdf.Quad) (tuple.Tuple, bool, error) {
	terms := []rdf.Term{quad.Subject, quad.Predicate, quad.Object}
	if !rdf.IsDefaultGraph(quad.Graph) {
		terms = append([]rdf.Term{quad.Graph}, terms...)
	}

	t := make(tuple.Tuple, len(terms))
	for i, term := range terms {
		id, found, err := s.nodes.Lookup(term)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		t[i] = id
	}
	return t, true, nil
}

func (s *TripleStore) tableFor(t tuple.Tuple) *table.TupleTable {
	if len(t) == 3 {
		return s.triples
	}
	return s.quads
}

// InsertQuad inserts a quad into the store
func (s *TripleStore) InsertQuad(quad *rdf.Quad) error {
	t, _, err := s.encodeQuad(quad)
	if err != nil {
		return err
	}
	return s.tableFor(t).Add(t)
}

// InsertTriple inserts a triple into the default graph
func (s *TripleStore) InsertTriple(triple *rdf.Triple) error {
	return s.InsertQuad(rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, nil))
}

// InsertQuads inserts a batch of quads with one AddAll per table
func (s *TripleStore) InsertQuads(quads []*rdf.Quad) error {
	var triples, named []tuple.Tuple
	for _, quad := range quads {
		t, isTriple, err := s.encodeQuad(quad)
		if err != nil {
			return err
		}
		if isTriple {
			triples = append(triples, t)
		} else {
			named = append(named, t)
		}
	}

	if len(triples) > 0 {
		if err := s.triples.AddAll(triples); err != nil {
			return err
		}
	}
	if len(named) > 0 {
		return s.quads.AddAll(named)
	}
	return nil
}

// DeleteQuad deletes a quad from the store. Deleting an absent quad is a no-op.
// Node table entries are never removed, as other quads may use them.
func (s *TripleStore) DeleteQuad(quad *rdf.Quad) error {
	t, found, err := s.lookupQuad(quad)
	if err != nil || !found {
		return err
	}
	return s.tableFor(t).Delete(t)
}

// DeleteTriple deletes a triple from the default graph
func (s *TripleStore) DeleteTriple(triple *rdf.Triple) error {
	return s.DeleteQuad(rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, nil))
}

// ContainsQuad checks if a quad exists in the store
func (s *TripleStore) ContainsQuad(quad *rdf.Quad) (bool, error) {
	t, found, err := s.lookupQuad(quad)
	if err != nil || !found {
		return false, err
	}

	it, err := s.tableFor(t).Find(t)
	if err != nil {
		return false, err
	}
	defer it.Close()

	ok := it.Next()
	return ok, it.Err()
}

// Count returns the number of triples in the default graph plus the number
// of quads in named graphs
func (s *TripleStore) Count() (int64, error) {
	triples, err := s.triples.Size()
	if err != nil {
		return 0, err
	}
	quads, err := s.quads.Size()
	if err != nil {
		return 0, err
	}
	return triples + quads, nil
}

// id resolves a pattern term: nil and variables become nodeid.Any and terms
// the node table has never seen become nodeid.DoesNotExist
func (s *TripleStore) id(term rdf.Term) (nodeid.NodeID, error) {
	if _, ok := term.(*rdf.Variable); ok || term == nil {
		return nodeid.Any, nil
	}
	id, found, err := s.nodes.Lookup(term)
	if err != nil {
		return 0, err
	}
	if !found {
		return nodeid.DoesNotExist, nil
	}
	return id, nil
}
