package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"
)

// emptyValue is stored for every index key; indexes are key-only
var emptyValue = []byte{}

// BadgerStorage implements Storage using BadgerDB.
// All indexes and dictionaries share one database and are kept apart by
// key prefixes.
type BadgerStorage struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewBadgerStorage creates a new BadgerDB-backed storage
func NewBadgerStorage(o Options) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(o.Path)
	if o.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(o.SyncWrites)
	if o.Logger.GetSink() != nil {
		opts.Logger = badgerLogger{o.Logger.WithName("badger")}
	} else {
		opts.Logger = nil // Disable default logger
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// Index opens a range index stored under its own key prefix
func (s *BadgerStorage) Index(name string, keyLength int) (RangeIndex, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &badgerIndex{
		storage:   s,
		prefix:    namespacePrefix(namespaceIndex, name),
		keyLength: keyLength,
	}, nil
}

// Dictionary opens a key/value dictionary stored under its own key prefix
func (s *BadgerStorage) Dictionary(name string) (Dictionary, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &badgerDictionary{
		storage: s,
		prefix:  namespacePrefix(namespaceDictionary, name),
	}, nil
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Sync()
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// badgerIndex implements RangeIndex on a prefix of a BadgerDB
type badgerIndex struct {
	storage   *BadgerStorage
	prefix    []byte
	keyLength int
	closed    atomic.Bool
}

func (i *badgerIndex) check() error {
	if i.closed.Load() || i.storage.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (i *badgerIndex) KeyLength() int {
	return i.keyLength
}

func (i *badgerIndex) Insert(key []byte) error {
	if err := i.check(); err != nil {
		return err
	}
	if err := checkKey(key, i.keyLength); err != nil {
		return err
	}
	return i.storage.db.Update(func(txn *badger.Txn) error {
		return txn.Set(PrefixKey(i.prefix, key), emptyValue)
	})
}

// InsertBatch writes all keys through a badger write batch
func (i *badgerIndex) InsertBatch(keys [][]byte) error {
	if err := i.check(); err != nil {
		return err
	}

	wb := i.storage.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := checkKey(key, i.keyLength); err != nil {
			return err
		}
		if err := wb.Set(PrefixKey(i.prefix, key), emptyValue); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (i *badgerIndex) Delete(key []byte) error {
	if err := i.check(); err != nil {
		return err
	}
	if err := checkKey(key, i.keyLength); err != nil {
		return err
	}
	return i.storage.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(PrefixKey(i.prefix, key))
	})
}

func (i *badgerIndex) Contains(key []byte) (bool, error) {
	if err := i.check(); err != nil {
		return false, err
	}
	if err := checkKey(key, i.keyLength); err != nil {
		return false, err
	}

	found := false
	err := i.storage.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(PrefixKey(i.prefix, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (i *badgerIndex) Iterator() (Iterator, error) {
	return i.Range(nil, nil)
}

// Range iterates over a key range [min, max) inside a read-only transaction
// that lives as long as the iterator.
func (i *badgerIndex) Range(min, max []byte) (Iterator, error) {
	if err := i.check(); err != nil {
		return nil, err
	}

	txn := i.storage.db.NewTransaction(false)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = i.prefix

	var endKey []byte
	if max != nil {
		endKey = PrefixKey(i.prefix, max)
	}

	return &badgerIterator{
		txn:     txn,
		it:      txn.NewIterator(opts),
		prefix:  i.prefix,
		seekKey: PrefixKey(i.prefix, min),
		endKey:  endKey,
	}, nil
}

func (i *badgerIndex) Size() (int64, error) {
	it, err := i.Range(nil, nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	count := int64(0)
	for it.Next() {
		count++
	}
	return count, it.Err()
}

func (i *badgerIndex) IsEmpty() (bool, error) {
	it, err := i.Range(nil, nil)
	if err != nil {
		return false, err
	}
	defer it.Close()

	return !it.Next(), it.Err()
}

func (i *badgerIndex) Clear() error {
	if err := i.check(); err != nil {
		return err
	}
	return i.storage.db.DropPrefix(i.prefix)
}

func (i *badgerIndex) Sync() error {
	if err := i.check(); err != nil {
		return err
	}
	return i.storage.db.Sync()
}

func (i *badgerIndex) Close() error {
	i.closed.Store(true)
	return nil
}

// badgerIterator implements Iterator using BadgerDB
type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte // namespace prefix stripped from keys
	seekKey []byte
	endKey  []byte
	started bool
	key     []byte
	closed  bool
}

// Next advances to the next item
func (i *badgerIterator) Next() bool {
	if i.closed {
		return false
	}
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else {
		i.it.Next()
	}

	// Check if iterator is still valid
	if !i.it.Valid() {
		i.key = nil
		return false
	}

	key := i.it.Item().KeyCopy(nil)

	// Check if we've reached the end key
	if i.endKey != nil && bytes.Compare(key, i.endKey) >= 0 {
		i.key = nil
		return false
	}

	i.key = key[len(i.prefix):]
	return true
}

// Key returns the current key (without the namespace prefix)
func (i *badgerIterator) Key() []byte {
	return i.key
}

func (i *badgerIterator) Err() error {
	return nil
}

// Close closes the iterator and discards its read transaction
func (i *badgerIterator) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.it.Close()
	i.txn.Discard()
	return nil
}

// badgerDictionary implements Dictionary on a prefix of a BadgerDB
type badgerDictionary struct {
	storage *BadgerStorage
	prefix  []byte
}

// Get retrieves a value by key
func (d *badgerDictionary) Get(key []byte) ([]byte, error) {
	if d.storage.closed.Load() {
		return nil, ErrClosed
	}

	var value []byte
	err := d.storage.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(PrefixKey(d.prefix, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair
func (d *badgerDictionary) Set(key, value []byte) error {
	if d.storage.closed.Load() {
		return ErrClosed
	}
	return d.storage.db.Update(func(txn *badger.Txn) error {
		return txn.Set(PrefixKey(d.prefix, key), value)
	})
}

// badgerLogger forwards badger diagnostics to a logr.Logger
type badgerLogger struct {
	logger logr.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(nil, fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.V(1).Info(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.V(2).Info(fmt.Sprintf(format, args...))
}
