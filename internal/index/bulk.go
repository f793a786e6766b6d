package index

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

// BulkIndex is a TupleIndex for bulk loading. AddAll hands its batch to a
// background task and returns at once; every other operation except the
// identity accessors and Weight first waits for that task to finish.
//
// DeleteAll is not asynchronous. It waits for any pending load and then
// deletes tuple by tuple.
type BulkIndex struct {
	index  *RecordIndex
	logger logr.Logger

	// mu guards pending and is held while joining it, so callers queue up
	// behind a running load
	mu      sync.Mutex
	pending *bulkTask
}

// bulkTask is one in-flight AddAll
type bulkTask struct {
	id    uuid.UUID
	size  int
	group *errgroup.Group
}

// NewBulkIndex wraps index. Task start and completion are logged at V(1).
func NewBulkIndex(index *RecordIndex, logger logr.Logger) *BulkIndex {
	return &BulkIndex{
		index:  index,
		logger: logger.WithValues("index", index.Name()),
	}
}

// join waits for the pending task and clears the slot; mu must be held
func (b *BulkIndex) join() error {
	task := b.pending
	if task == nil {
		return nil
	}
	b.pending = nil

	if err := task.group.Wait(); err != nil {
		return fmt.Errorf("bulk load %s of %d tuples into %s: %w", task.id, task.size, b.index.Name(), err)
	}
	return nil
}

// barrier blocks until no load is in flight. It reports the error of the
// load it waited for, if any.
func (b *BulkIndex) barrier() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.join()
}

// AddAll validates the batch, copies it and loads it in the background.
// Errors of the load itself are reported by the next call that waits for it.
func (b *BulkIndex) AddAll(tuples []tuple.Tuple) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.join(); err != nil {
		return err
	}

	batch := make([]tuple.Tuple, len(tuples))
	for n, t := range tuples {
		if err := b.index.check(t, "add"); err != nil {
			return err
		}
		batch[n] = t.Clone()
	}

	task := &bulkTask{id: uuid.New(), size: len(batch), group: new(errgroup.Group)}
	logger := b.logger.WithValues("task", task.id.String(), "tuples", task.size)
	logger.V(1).Info("bulk load started")

	task.group.Go(func() error {
		start := time.Now()
		if err := b.index.AddAll(batch); err != nil {
			logger.V(1).Info("bulk load failed", "error", err.Error())
			return err
		}
		logger.V(1).Info("bulk load finished", "elapsed", time.Since(start).String())
		return nil
	})
	b.pending = task
	return nil
}

// Wait blocks until the pending load, if any, has finished
func (b *BulkIndex) Wait() error {
	return b.barrier()
}

func (b *BulkIndex) Add(t tuple.Tuple) error {
	if err := b.barrier(); err != nil {
		return err
	}
	return b.index.Add(t)
}

func (b *BulkIndex) Delete(t tuple.Tuple) error {
	if err := b.barrier(); err != nil {
		return err
	}
	return b.index.Delete(t)
}

func (b *BulkIndex) DeleteAll(tuples []tuple.Tuple) error {
	if err := b.barrier(); err != nil {
		return err
	}
	for _, t := range tuples {
		if err := b.index.Delete(t); err != nil {
			return err
		}
	}
	return nil
}

func (b *BulkIndex) Find(pattern tuple.Tuple) (tuple.Iterator, error) {
	if err := b.barrier(); err != nil {
		return nil, err
	}
	return b.index.Find(pattern)
}

func (b *BulkIndex) All() (tuple.Iterator, error) {
	if err := b.barrier(); err != nil {
		return nil, err
	}
	return b.index.All()
}

func (b *BulkIndex) Size() (int64, error) {
	if err := b.barrier(); err != nil {
		return 0, err
	}
	return b.index.Size()
}

func (b *BulkIndex) IsEmpty() (bool, error) {
	if err := b.barrier(); err != nil {
		return false, err
	}
	return b.index.IsEmpty()
}

func (b *BulkIndex) Clear() error {
	if err := b.barrier(); err != nil {
		return err
	}
	return b.index.Clear()
}

func (b *BulkIndex) Sync() error {
	if err := b.barrier(); err != nil {
		return err
	}
	return b.index.Sync()
}

// Close waits for the pending load and closes the index even if the load failed
func (b *BulkIndex) Close() error {
	return errors.Join(b.barrier(), b.index.Close())
}

func (b *BulkIndex) Weight(pattern tuple.Tuple) int { return b.index.Weight(pattern) }
func (b *BulkIndex) Mapping() *tuple.ColumnMap { return b.index.Mapping() }
func (b *BulkIndex) Name() string { return b.index.Name() }
func (b *BulkIndex) TupleLength() int { return b.index.TupleLength() }
