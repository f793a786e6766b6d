package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/aleksaelezovic/tupleindex/internal/index"
	"github.com/aleksaelezovic/tupleindex/internal/table"
	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

// IndexStats describes one index of a table
type IndexStats struct {
	Name    string
	Primary bool
	Size    int64
}

// Stats summarizes the store
type Stats struct {
	Nodes   uint64
	Triples []IndexStats
	Quads   []IndexStats
}

// FindIndex returns the table holding the index called name and the index
// itself. Names are case-insensitive.
func (s *TripleStore) FindIndex(name string) (*table.TupleTable, index.TupleIndex, error) {
	for _, t := range []*table.TupleTable{s.triples, s.quads} {
		for _, idx := range t.Indexes() {
			if idx != nil && strings.EqualFold(idx.Name(), name) {
				return t, idx, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
}

// CopyIndex replaces the contents of the index dst with those of src. Both
// must belong to the same table. Tuples move in batches of the configured
// load batch size.
func (s *TripleStore) CopyIndex(src, dst string) error {
	srcTable, from, err := s.FindIndex(src)
	if err != nil {
		return err
	}
	dstTable, to, err := s.FindIndex(dst)
	if err != nil {
		return err
	}
	if srcTable != dstTable {
		return fmt.Errorf("%w: %s and %s", ErrCrossTableCopy, from.Name(), to.Name())
	}
	if from == to {
		return nil
	}

	logger := s.logger.WithValues("from", from.Name(), "to", to.Name())
	start := time.Now()

	if err := to.Clear(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", to.Name(), err)
	}

	it, err := from.All()
	if err != nil {
		return err
	}
	defer it.Close()

	batchSize := s.config.Load.BatchSize
	batch := make([]tuple.Tuple, 0, batchSize)
	var copied int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := to.AddAll(batch); err != nil {
			return err
		}
		copied += int64(len(batch))
		batch = make([]tuple.Tuple, 0, batchSize)
		return nil
	}

	for it.Next() {
		batch = append(batch, it.Tuple().Clone())
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	if err := to.Sync(); err != nil {
		return err
	}

	logger.Info("index copied", "tuples", copied, "elapsed", time.Since(start))
	return nil
}

// RebuildIndex refills a secondary index from the primary index of its
// table
func (s *TripleStore) RebuildIndex(name string) error {
	t, idx, err := s.FindIndex(name)
	if err != nil {
		return err
	}
	if idx == t.Primary() {
		return fmt.Errorf("%w: %s", ErrPrimaryIndex, idx.Name())
	}
	return s.CopyIndex(t.Primary().Name(), idx.Name())
}

// Stats reports the size of every index and the number of allocated nodes
func (s *TripleStore) Stats() (*Stats, error) {
	triples, err := tableStats(s.triples)
	if err != nil {
		return nil, err
	}
	quads, err := tableStats(s.quads)
	if err != nil {
		return nil, err
	}
	return &Stats{Nodes: s.nodes.Allocated(), Triples: triples, Quads: quads}, nil
}

func tableStats(t *table.TupleTable) ([]IndexStats, error) {
	var stats []IndexStats
	for i, idx := range t.Indexes() {
		if idx == nil {
			continue
		}
		size, err := idx.Size()
		if err != nil {
			return nil, fmt.Errorf("failed to size %s: %w", idx.Name(), err)
		}
		stats = append(stats, IndexStats{Name: idx.Name(), Primary: i == 0, Size: size})
	}
	return stats, nil
}

// Scan returns every quad of the index called name in that index's order
func (s *TripleStore) Scan(name string) (QuadIterator, error) {
	_, idx, err := s.FindIndex(name)
	if err != nil {
		return nil, err
	}
	it, err := idx.All()
	if err != nil {
		return nil, err
	}
	return s.quadIterator(it, idx.TupleLength()-3), nil
}
