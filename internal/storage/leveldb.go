package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// syncMarker is rewritten with a synchronous write to flush the journal
var syncMarker = []byte{0xFF, 's', 'y', 'n', 'c'}

// LevelDBStorage implements Storage using LevelDB.
// Like BadgerStorage, all indexes share one database under distinct prefixes.
type LevelDBStorage struct {
	db     *leveldb.DB
	write  *opt.WriteOptions
	closed atomic.Bool
}

// NewLevelDBStorage opens (or creates) a LevelDB database
func NewLevelDBStorage(o Options) (*LevelDBStorage, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if o.InMemory {
		db, err = leveldb.Open(lvlstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(o.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	return &LevelDBStorage{
		db:    db,
		write: &opt.WriteOptions{Sync: o.SyncWrites},
	}, nil
}

func (s *LevelDBStorage) Index(name string, keyLength int) (RangeIndex, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &levelIndex{
		storage:   s,
		prefix:    namespacePrefix(namespaceIndex, name),
		keyLength: keyLength,
	}, nil
}

func (s *LevelDBStorage) Dictionary(name string) (Dictionary, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return &levelDictionary{
		storage: s,
		prefix:  namespacePrefix(namespaceDictionary, name),
	}, nil
}

// Sync forces the LevelDB journal to disk
func (s *LevelDBStorage) Sync() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Put(syncMarker, emptyValue, &opt.WriteOptions{Sync: true})
}

func (s *LevelDBStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// levelIndex implements RangeIndex on a prefix of a LevelDB
type levelIndex struct {
	storage   *LevelDBStorage
	prefix    []byte
	keyLength int
	closed    atomic.Bool
}

func (i *levelIndex) check() error {
	if i.closed.Load() || i.storage.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (i *levelIndex) KeyLength() int {
	return i.keyLength
}

func (i *levelIndex) Insert(key []byte) error {
	if err := i.check(); err != nil {
		return err
	}
	if err := checkKey(key, i.keyLength); err != nil {
		return err
	}
	return i.storage.db.Put(PrefixKey(i.prefix, key), emptyValue, i.storage.write)
}

// InsertBatch writes all keys in a single LevelDB batch
func (i *levelIndex) InsertBatch(keys [][]byte) error {
	if err := i.check(); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for _, key := range keys {
		if err := checkKey(key, i.keyLength); err != nil {
			return err
		}
		batch.Put(PrefixKey(i.prefix, key), emptyValue)
	}
	return i.storage.db.Write(batch, i.storage.write)
}

func (i *levelIndex) Delete(key []byte) error {
	if err := i.check(); err != nil {
		return err
	}
	if err := checkKey(key, i.keyLength); err != nil {
		return err
	}
	return i.storage.db.Delete(PrefixKey(i.prefix, key), i.storage.write)
}

func (i *levelIndex) Contains(key []byte) (bool, error) {
	if err := i.check(); err != nil {
		return false, err
	}
	if err := checkKey(key, i.keyLength); err != nil {
		return false, err
	}
	return i.storage.db.Has(PrefixKey(i.prefix, key), nil)
}

func (i *levelIndex) Iterator() (Iterator, error) {
	return i.Range(nil, nil)
}

func (i *levelIndex) Range(min, max []byte) (Iterator, error) {
	if err := i.check(); err != nil {
		return nil, err
	}

	rng := util.BytesPrefix(i.prefix)
	if min != nil {
		rng.Start = PrefixKey(i.prefix, min)
	}
	if max != nil {
		rng.Limit = PrefixKey(i.prefix, max)
	}

	return &levelIterator{
		it:     i.storage.db.NewIterator(rng, nil),
		prefix: len(i.prefix),
	}, nil
}

func (i *levelIndex) Size() (int64, error) {
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

func (i *levelIndex) IsEmpty() (bool, error) {
	it, err := i.Range(nil, nil)
	if err != nil {
		return false, err
	}
	defer it.Close()

	return !it.Next(), it.Err()
}

// Clear deletes every key under the index prefix in one batch
func (i *levelIndex) Clear() error {
	if err := i.check(); err != nil {
		return err
	}

	it := i.storage.db.NewIterator(util.BytesPrefix(i.prefix), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	return i.storage.db.Write(batch, i.storage.write)
}

func (i *levelIndex) Sync() error {
	if err := i.check(); err != nil {
		return err
	}
	return i.storage.Sync()
}

func (i *levelIndex) Close() error {
	i.closed.Store(true)
	return nil
}

// levelIterator adapts a LevelDB iterator, stripping the namespace prefix
type levelIterator struct {
	it     iterator.Iterator
	prefix int
	key    []byte
	closed bool
}

func (i *levelIterator) Next() bool {
	if i.closed || !i.it.Next() {
		i.key = nil
		return false
	}
	i.key = append([]byte(nil), i.it.Key()[i.prefix:]...)
	return true
}

func (i *levelIterator) Key() []byte {
	return i.key
}

func (i *levelIterator) Err() error {
	if i.closed {
		return nil
	}
	return i.it.Error()
}

func (i *levelIterator) Close() error {
	if i.closed {
		return nil
	}
	err := i.it.Error()
	i.closed = true
	i.it.Release()
	return err
}

// levelDictionary implements Dictionary on a prefix of a LevelDB
type levelDictionary struct {
	storage *LevelDBStorage
	prefix  []byte
}

func (d *levelDictionary) Get(key []byte) ([]byte, error) {
	if d.storage.closed.Load() {
		return nil, ErrClosed
	}
	value, err := d.storage.db.Get(PrefixKey(d.prefix, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (d *levelDictionary) Set(key, value []byte) error {
	if d.storage.closed.Load() {
		return ErrClosed
	}
	return d.storage.db.Put(PrefixKey(d.prefix, key), value, d.storage.write)
}
