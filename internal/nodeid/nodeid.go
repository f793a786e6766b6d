// Package nodeid implements the fixed-width surrogate identifiers that stand in
// for RDF terms inside tuple indexes.
//
// A NodeID is a 64-bit value. The top 8 bits carry a type tag and the low 56
// bits carry the payload. For pointer ids the payload is an allocation number
// handed out by the node table; for inline ids the payload is the value itself.
// Index ordering never interprets the payload: ids compare by their raw 64-bit
// value, which is also the order of their big-endian byte encoding.
package nodeid

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Size is the number of bytes of an encoded NodeID
	Size = 8

	// PayloadBits is the width of the payload field
	PayloadBits = 56

	// MaxPayload is the largest payload a NodeID can carry
	MaxPayload = 1<<PayloadBits - 1
)

// Type is the tag stored in the top byte of a NodeID
type Type byte

const (
	// TypePtr ids reference an entry in the node table
	TypePtr Type = 0x00

	// Inline types, the payload is the value
	TypeInteger  Type = 0x01
	TypeDecimal  Type = 0x02
	TypeDouble   Type = 0x03
	TypeBoolean  Type = 0x04
	TypeDateTime Type = 0x05
	TypeDate     Type = 0x06

	// TypeSpecial marks the sentinel values Any and DoesNotExist
	TypeSpecial Type = 0xFF
)

func (t Type) String() string {
	switch t {
	case TypePtr:
		return "PTR"
	case TypeInteger:
		return "INT"
	case TypeDecimal:
		return "DEC"
	case TypeDouble:
		return "DBL"
	case TypeBoolean:
		return "BOOL"
	case TypeDateTime:
		return "DATETIME"
	case TypeDate:
		return "DATE"
	case TypeSpecial:
		return "SPECIAL"
	default:
		return fmt.Sprintf("TYPE(%#02x)", byte(t))
	}
}

// IsInline reports whether ids of this type carry their value in the payload
func (t Type) IsInline() bool {
	return t >= TypeInteger && t <= TypeDate
}

// NodeID is a surrogate identifier for an RDF term
type NodeID uint64

var (
	// Any matches every value when used in a pattern slot
	Any = New(TypeSpecial, MaxPayload)

	// DoesNotExist stands for a term that is not in the node table.
	// A pattern containing it can never match.
	DoesNotExist = New(TypeSpecial, MaxPayload-1)
)

var ErrInvalidLength = errors.New("nodeid: invalid encoded length")

// New builds a NodeID from a type tag and a payload.
// Payload bits above PayloadBits are discarded.
func New(t Type, payload uint64) NodeID {
	return NodeID(uint64(t)<<PayloadBits | payload&MaxPayload)
}

// NewPtr returns the pointer id for node table allocation n
func NewPtr(n uint64) NodeID {
	return New(TypePtr, n)
}

// Type returns the type tag of id
func (id NodeID) Type() Type {
	return Type(id >> PayloadBits)
}

// Payload returns the low 56 bits of id
func (id NodeID) Payload() uint64 {
	return uint64(id) & MaxPayload
}

// IsConcrete reports whether id denotes a real term, i.e. it is neither
// Any nor DoesNotExist.
func (id NodeID) IsConcrete() bool {
	return id != Any && id != DoesNotExist
}

// IsAny reports whether id is the wildcard
func (id NodeID) IsAny() bool {
	return id == Any
}

// IsInline reports whether the term can be rebuilt from id alone
func (id NodeID) IsInline() bool {
	return id.Type().IsInline()
}

// IsPtr reports whether id references the node table
func (id NodeID) IsPtr() bool {
	return id.Type() == TypePtr
}

func (id NodeID) String() string {
	switch id {
	case Any:
		return "NodeID[ANY]"
	case DoesNotExist:
		return "NodeID[DNE]"
	}
	if id.Type() == TypeInteger {
		return fmt.Sprintf("NodeID[INT:%d]", integerValue(id.Payload()))
	}
	return fmt.Sprintf("NodeID[%s:%#x]", id.Type(), id.Payload())
}

// Encode writes id big-endian into dst, which must hold at least Size bytes.
// bytes.Compare on two encodings agrees with comparing the ids.
func (id NodeID) Encode(dst []byte) {
	binary.BigEndian.PutUint64(dst, uint64(id))
}

// Bytes returns a fresh encoding of id
func (id NodeID) Bytes() []byte {
	dst := make([]byte, Size)
	id.Encode(dst)
	return dst
}

// Decode reads an id encoded with Encode from the first Size bytes of src.
// It panics when src is too short; use Unmarshal for untrusted input.
func Decode(src []byte) NodeID {
	return NodeID(binary.BigEndian.Uint64(src))
}

// Unmarshal is like Decode but requires src to be exactly Size bytes long
func Unmarshal(src []byte) (NodeID, error) {
	if len(src) != Size {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLength, len(src))
	}
	return Decode(src), nil
}
