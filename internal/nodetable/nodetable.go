// Package nodetable assigns NodeIDs to RDF terms.
//
// Literals whose value fits in 56 bits are encoded inline and never stored.
// Every other term gets a pointer id allocated from a persistent counter and
// is recorded in two dictionaries: one keyed by the 128-bit xxh3 hash of the
// serialized term, one keyed by the id.
package nodetable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/tupleindex/internal/nodeid"
	"github.com/aleksaelezovic/tupleindex/internal/storage"
	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

var (
	ErrUnknownNode     = errors.New("nodetable: unknown node id")
	ErrNotConcrete     = errors.New("nodetable: id does not denote a term")
	ErrUnsupportedTerm = errors.New("nodetable: term cannot be stored")
	ErrCorrupt         = errors.New("nodetable: corrupt entry")
)

// Dictionary names inside the storage engine
const (
	forwardDict = "nodes.forward"
	reverseDict = "nodes.reverse"
	metaDict    = "nodes.meta"
)

// maxSlots bounds the slots tried in turn when two terms share a hash
const maxSlots = 16

var nextKey = []byte("next")

// Serialized term kinds
const (
	kindIRI     byte = 'I'
	kindBlank   byte = 'B'
	kindLiteral byte = 'L'
)

// NodeTable is safe for concurrent use
type NodeTable struct {
	forward storage.Dictionary
	reverse storage.Dictionary
	meta    storage.Dictionary

	// mu serialises allocation; lookups of stored terms do not take it
	mu   sync.Mutex
	next uint64
}

// Open loads the node table kept in s
func Open(s storage.Storage) (*NodeTable, error) {
	t := &NodeTable{}

	var err error
	if t.forward, err = s.Dictionary(forwardDict); err != nil {
		return nil, err
	}
	if t.reverse, err = s.Dictionary(reverseDict); err != nil {
		return nil, err
	}
	if t.meta, err = s.Dictionary(metaDict); err != nil {
		return nil, err
	}

	value, err := t.meta.Get(nextKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		t.next = 0
	case err != nil:
		return nil, fmt.Errorf("failed to read node counter: %w", err)
	case len(value) != 8:
		return nil, fmt.Errorf("%w: node counter has %d bytes", ErrCorrupt, len(value))
	default:
		t.next = binary.BigEndian.Uint64(value)
	}
	return t, nil
}

// Allocated returns the number of pointer ids handed out so far
func (t *NodeTable) Allocated() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// GetOrAllocate returns the id of term, allocating one if the term is new
func (t *NodeTable) GetOrAllocate(term rdf.Term) (nodeid.NodeID, error) {
	if id, ok := nodeid.Inline(term); ok {
		return id, nil
	}

	data, err := marshalTerm(term)
	if err != nil {
		return 0, err
	}

	if id, _, found, err := t.find(data); err != nil || found {
		return id, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// another caller may have stored the term while we waited
	id, slot, found, err := t.find(data)
	if err != nil || found {
		return id, err
	}
	if slot == maxSlots {
		return 0, fmt.Errorf("%w: too many hash collisions for %s", ErrUnsupportedTerm, term)
	}
	if t.next > nodeid.MaxPayload {
		return 0, fmt.Errorf("%w: node ids exhausted", ErrUnsupportedTerm)
	}

	// the counter moves first: a failure below leaks the id, never reuses it
	id = nodeid.NewPtr(t.next)
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, t.next+1)
	if err := t.meta.Set(nextKey, counter); err != nil {
		return 0, err
	}
	t.next++

	if err := t.reverse.Set(id.Bytes(), data); err != nil {
		return 0, err
	}
	if err := t.forward.Set(forwardKey(data, slot), id.Bytes()); err != nil {
		return 0, err
	}
	return id, nil
}

// Lookup returns the id of term without allocating. The second result is
// false when the term has never been stored.
func (t *NodeTable) Lookup(term rdf.Term) (nodeid.NodeID, bool, error) {
	if id, ok := nodeid.Inline(term); ok {
		return id, true, nil
	}

	data, err := marshalTerm(term)
	if err != nil {
		return 0, false, err
	}
	id, _, found, err := t.find(data)
	return id, found, err
}

// Term returns the term an id stands for
func (t *NodeTable) Term(id nodeid.NodeID) (rdf.Term, error) {
	if !id.IsConcrete() {
		return nil, fmt.Errorf("%w: %s", ErrNotConcrete, id)
	}
	if id.IsInline() {
		return nodeid.Term(id)
	}

	data, err := t.reverse.Get(id.Bytes())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalTerm(data)
}

// find walks the slots of data. It returns the stored id when the
// term is present, otherwise the first free slot.
func (t *NodeTable) find(data []byte) (nodeid.NodeID, int, bool, error) {
	for slot := 0; slot < maxSlots; slot++ {
		value, err := t.forward.Get(forwardKey(data, slot))
		if errors.Is(err, storage.ErrNotFound) {
			return 0, slot, false, nil
		}
		if err != nil {
			return 0, slot, false, err
		}

		id, err := nodeid.Unmarshal(value)
		if err != nil {
			return 0, slot, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		stored, err := t.reverse.Get(id.Bytes())
		if err != nil {
			return 0, slot, false, fmt.Errorf("%w: forward entry %s has no term: %v", ErrCorrupt, id, err)
		}
		if bytes.Equal(stored, data) {
			return id, slot, true, nil
		}
	}
	return 0, maxSlots, false, nil
}

// forwardKey is the xxh3 hash of the serialized term followed by the slot number
func forwardKey(data []byte, slot int) []byte {
	hash := xxh3.Hash128(data)
	key := make([]byte, 17)
	binary.BigEndian.PutUint64(key[0:8], hash.Hi)
	binary.BigEndian.PutUint64(key[8:16], hash.Lo)
	key[16] = byte(slot)
	return key
}

// marshalTerm serializes a term as a kind byte followed by length-prefixed
// strings
func marshalTerm(term rdf.Term) ([]byte, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return appendString([]byte{kindIRI}, t.IRI), nil
	case *rdf.BlankNode:
		return appendString([]byte{kindBlank}, t.ID), nil
	case *rdf.Literal:
		data := appendString([]byte{kindLiteral}, t.Value)
		data = appendString(data, t.Language)
		return appendString(data, t.DatatypeIRI()), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTerm, term)
	}
}

func unmarshalTerm(data []byte) (rdf.Term, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty term", ErrCorrupt)
	}

	kind, rest := data[0], data[1:]
	first, rest, err := readString(rest)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindIRI:
		return rdf.NewNamedNode(first), nil
	case kindBlank:
		return rdf.NewBlankNode(first), nil
	case kindLiteral:
		language, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		datatype, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		lit := &rdf.Literal{Value: first, Language: language}
		if datatype != "" {
			lit.Datatype = rdf.NewNamedNode(datatype)
		}
		return lit, nil
	default:
		return nil, fmt.Errorf("%w: term kind %q", ErrCorrupt, kind)
	}
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func readString(src []byte) (string, []byte, error) {
	n, size := binary.Uvarint(src)
	if size <= 0 || uint64(len(src)-size) < n {
		return "", nil, fmt.Errorf("%w: truncated term", ErrCorrupt)
	}
	end := size + int(n) // #nosec G115 - bounded by len(src) above
	return string(src[size:end]), src[end:], nil
}
