// Package storage provides the ordered, byte-keyed range indexes that tuple
// indexes are built on, and the small key/value dictionaries the node table
// uses.
//
// Three engines are available: BadgerDB, LevelDB and an in-memory B-tree.
// All of them order keys by unsigned byte-wise comparison.
package storage

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrClosed         = errors.New("storage: closed")
	ErrKeyLength      = errors.New("storage: key length mismatch")
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// Backend names accepted by Open
const (
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Storage owns the engine that all range indexes and dictionaries of one
// dataset live in.
type Storage interface {
	// Index opens the range index with the given name. Every key stored in
	// it is exactly keyLength bytes long.
	Index(name string, keyLength int) (RangeIndex, error)

	// Dictionary opens the key/value dictionary with the given name
	Dictionary(name string) (Dictionary, error)

	// Sync flushes writes to disk
	Sync() error

	// Close closes the storage and every index opened from it
	Close() error
}

// RangeIndex is an ordered set of fixed-length keys
type RangeIndex interface {
	// Insert adds key to the index; inserting a present key is a no-op
	Insert(key []byte) error

	// Delete removes key from the index; deleting an absent key is a no-op
	Delete(key []byte) error

	// Contains reports whether key is present
	Contains(key []byte) (bool, error)

	// Iterator iterates over every key in ascending order
	Iterator() (Iterator, error)

	// Range iterates over the keys in [min, max).
	// A nil min starts at the first key, a nil max runs to the last key.
	Range(min, max []byte) (Iterator, error)

	// Size returns the number of keys
	Size() (int64, error)

	// IsEmpty reports whether the index holds no keys
	IsEmpty() (bool, error)

	// Clear removes every key
	Clear() error

	// Sync flushes writes to disk
	Sync() error

	// Close releases the index; further calls fail with ErrClosed
	Close() error

	// KeyLength returns the length of every key in the index
	KeyLength() int
}

// Batcher is implemented by range indexes with a faster bulk insert path
type Batcher interface {
	// InsertBatch inserts all keys, with the same semantics as calling Insert on each
	InsertBatch(keys [][]byte) error
}

// Iterator iterates over keys in ascending order
type Iterator interface {
	// Next advances to the next key
	Next() bool

	// Key returns the current key. The slice is owned by the caller.
	Key() []byte

	// Err returns the error that ended iteration, if any
	Err() error

	// Close closes the iterator
	Close() error
}

// Dictionary is a plain key/value map
type Dictionary interface {
	// Get retrieves a value by key, or ErrNotFound
	Get(key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(key, value []byte) error
}

// Options configures an engine opened with Open
type Options struct {
	// Path is the directory holding the database files.
	// It is ignored when InMemory is set.
	Path string

	// InMemory keeps every byte in memory
	InMemory bool

	// SyncWrites makes every write durable before it returns
	SyncWrites bool

	// Logger receives engine diagnostics
	Logger logr.Logger
}

// Open opens the storage engine called backend
func Open(backend string, opts Options) (Storage, error) {
	switch backend {
	case BackendBadger:
		return NewBadgerStorage(opts)
	case BackendLevelDB:
		return NewLevelDBStorage(opts)
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Key namespaces inside a single engine
const (
	namespaceIndex      byte = 'i'
	namespaceDictionary byte = 'd'
)

// namespacePrefix returns the byte prefix that keeps the keys of one named
// index or dictionary apart from all others
func namespacePrefix(namespace byte, name string) []byte {
	prefix := make([]byte, 0, len(name)+2)
	prefix = append(prefix, namespace)
	prefix = append(prefix, name...)
	return append(prefix, 0)
}

// PrefixKey adds a namespace prefix to a key
func PrefixKey(prefix, key []byte) []byte {
	result := make([]byte, len(prefix)+len(key))
	copy(result, prefix)
	copy(result[len(prefix):], key)
	return result
}

func checkKey(key []byte, keyLength int) error {
	if len(key) != keyLength {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrKeyLength, len(key), keyLength)
	}
	return nil
}
