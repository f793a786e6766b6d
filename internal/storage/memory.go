package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

func lessKey(a, b []byte) bool {
	return bytes.Compare(a, b) < 0
}

// MemoryStorage implements Storage with in-memory B-trees.
// Nothing survives Close; it backs tests and throwaway datasets.
type MemoryStorage struct {
	mu      sync.Mutex
	indexes map[string]*memoryIndex
	dicts   map[string]*memoryDictionary
	closed  bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		indexes: make(map[string]*memoryIndex),
		dicts:   make(map[string]*memoryDictionary),
	}
}

// Index returns the tree called name, creating it on first use.
// Reopening a closed index returns a fresh handle on the same keys.
func (s *MemoryStorage) Index(name string, keyLength int) (RangeIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	idx, ok := s.indexes[name]
	if !ok || idx.isClosed() {
		var tree *btree.BTreeG[[]byte]
		if ok {
			tree = idx.tree
		} else {
			tree = btree.NewG(btreeDegree, lessKey)
		}
		idx = &memoryIndex{tree: tree, keyLength: keyLength}
		s.indexes[name] = idx
	}
	return idx, nil
}

func (s *MemoryStorage) Dictionary(name string) (Dictionary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	dict, ok := s.dicts[name]
	if !ok {
		dict = &memoryDictionary{values: make(map[string][]byte)}
		s.dicts[name] = dict
	}
	return dict, nil
}

func (s *MemoryStorage) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, idx := range s.indexes {
		idx.Close()
	}
	for _, dict := range s.dicts {
		dict.close()
	}
	return nil
}

// memoryIndex implements RangeIndex with a B-tree of keys
type memoryIndex struct {
	mu        sync.RWMutex
	tree      *btree.BTreeG[[]byte]
	keyLength int
	closed    bool
}

func (i *memoryIndex) isClosed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.closed
}

func (i *memoryIndex) KeyLength() int {
	return i.keyLength
}

func (i *memoryIndex) Insert(key []byte) error {
	if err := checkKey(key, i.keyLength); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	i.tree.ReplaceOrInsert(append([]byte(nil), key...))
	return nil
}

func (i *memoryIndex) InsertBatch(keys [][]byte) error {
	for _, key := range keys {
		if err := checkKey(key, i.keyLength); err != nil {
			return err
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	for _, key := range keys {
		i.tree.ReplaceOrInsert(append([]byte(nil), key...))
	}
	return nil
}

func (i *memoryIndex) Delete(key []byte) error {
	if err := checkKey(key, i.keyLength); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	i.tree.Delete(key)
	return nil
}

func (i *memoryIndex) Contains(key []byte) (bool, error) {
	if err := checkKey(key, i.keyLength); err != nil {
		return false, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return false, ErrClosed
	}
	return i.tree.Has(key), nil
}

func (i *memoryIndex) Iterator() (Iterator, error) {
	return i.Range(nil, nil)
}

// Range copies the matching keys out of the tree, so the iterator is not
// affected by later writes.
func (i *memoryIndex) Range(min, max []byte) (Iterator, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, ErrClosed
	}

	var keys [][]byte
	collect := func(key []byte) bool {
		keys = append(keys, key)
		return true
	}
	switch {
	case min != nil && max != nil:
		i.tree.AscendRange(min, max, collect)
	case min != nil:
		i.tree.AscendGreaterOrEqual(min, collect)
	case max != nil:
		i.tree.AscendLessThan(max, collect)
	default:
		i.tree.Ascend(collect)
	}
	return &memoryIterator{keys: keys, pos: -1}, nil
}

func (i *memoryIndex) Size() (int64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return 0, ErrClosed
	}
	return int64(i.tree.Len()), nil
}

func (i *memoryIndex) IsEmpty() (bool, error) {
	size, err := i.Size()
	return size == 0, err
}

func (i *memoryIndex) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	i.tree.Clear(false)
	return nil
}

func (i *memoryIndex) Sync() error {
	if i.isClosed() {
		return ErrClosed
	}
	return nil
}

func (i *memoryIndex) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.closed = true
	return nil
}

type memoryIterator struct {
	keys [][]byte
	pos  int
}

func (i *memoryIterator) Next() bool {
	if i.pos+1 >= len(i.keys) {
		i.pos = len(i.keys)
		return false
	}
	i.pos++
	return true
}

func (i *memoryIterator) Key() []byte {
	if i.pos < 0 || i.pos >= len(i.keys) {
		return nil
	}
	return append([]byte(nil), i.keys[i.pos]...)
}

func (i *memoryIterator) Err() error { return nil }
func (i *memoryIterator) Close() error { i.keys = nil; return nil }

// memoryDictionary implements Dictionary with a map
type memoryDictionary struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

func (d *memoryDictionary) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	value, ok := d.values[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (d *memoryDictionary) Set(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.values[string(key)] = append([]byte(nil), value...)
	return nil
}

func (d *memoryDictionary) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}
