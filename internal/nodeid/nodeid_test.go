package nodeid

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []NodeID{
		0,
		1,
		NewPtr(42),
		NewPtr(MaxPayload),
		New(TypeInteger, MaxPayload),
		New(TypeDate, 0),
		Any,
		DoesNotExist,
		NodeID(math.MaxUint64),
	}

	for _, id := range values {
		encoded := id.Bytes()
		require.Len(t, encoded, Size)
		require.Equal(t, id, Decode(encoded), "round trip of %s", id)

		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)
		require.Equal(t, id, decoded)
	}

	_, err := Unmarshal([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestPayloadMasking(t *testing.T) {
	id := New(TypeInteger, math.MaxUint64)
	require.Equal(t, TypeInteger, id.Type())
	require.Equal(t, uint64(MaxPayload), id.Payload())

	ptr := NewPtr(7)
	require.True(t, ptr.IsPtr())
	require.False(t, ptr.IsInline())
	require.Equal(t, uint64(7), ptr.Payload())
}

func TestSentinels(t *testing.T) {
	require.False(t, Any.IsConcrete())
	require.False(t, DoesNotExist.IsConcrete())
	require.True(t, Any.IsAny())
	require.False(t, DoesNotExist.IsAny())
	require.NotEqual(t, Any, DoesNotExist)
	require.Equal(t, TypeSpecial, Any.Type())
	require.Equal(t, TypeSpecial, DoesNotExist.Type())

	require.True(t, NewPtr(0).IsConcrete())
	require.True(t, New(TypeInteger, 0).IsConcrete())

	require.Equal(t, "NodeID[ANY]", Any.String())
	require.Equal(t, "NodeID[DNE]", DoesNotExist.String())
}

func TestByteOrderMatchesIDOrder(t *testing.T) {
	ids := []NodeID{NewPtr(300), New(TypeInteger, 5), NewPtr(1), New(TypeDouble, 9), NewPtr(256)}
	encoded := make([][]byte, len(ids))
	for i, id := range ids {
		encoded[i] = id.Bytes()
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	for i := range ids {
		require.Equal(t, ids[i], Decode(encoded[i]))
	}
}

func TestInlineRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		term *rdf.Literal
		typ  Type
	}{
		{"integer", rdf.NewIntegerLiteral(42), TypeInteger},
		{"negative integer", rdf.NewIntegerLiteral(-17), TypeInteger},
		{"largest integer", rdf.NewIntegerLiteral(maxInlineInteger), TypeInteger},
		{"smallest integer", rdf.NewIntegerLiteral(minInlineInteger), TypeInteger},
		{"decimal", rdf.NewLiteralWithDatatype("123.45", rdf.XSDDecimal), TypeDecimal},
		{"small decimal", rdf.NewLiteralWithDatatype("-0.05", rdf.XSDDecimal), TypeDecimal},
		{"whole decimal", rdf.NewLiteralWithDatatype("7.0", rdf.XSDDecimal), TypeDecimal},
		{"double", rdf.NewDoubleLiteral(0.5), TypeDouble},
		{"infinite double", rdf.NewLiteralWithDatatype("-INF", rdf.XSDDouble), TypeDouble},
		{"boolean", rdf.NewBooleanLiteral(true), TypeBoolean},
		{"false", rdf.NewBooleanLiteral(false), TypeBoolean},
		{"dateTime", rdf.NewLiteralWithDatatype("2025-01-01T12:00:00.5Z", rdf.XSDDateTime), TypeDateTime},
		{"date", rdf.NewLiteralWithDatatype("1969-07-20", rdf.XSDDate), TypeDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := Inline(tt.term)
			require.True(t, ok)
			require.Equal(t, tt.typ, id.Type())
			require.True(t, id.IsInline())

			term, err := Term(id)
			require.NoError(t, err)
			require.True(t, term.Equals(tt.term), "got %s want %s", term, tt.term)
		})
	}
}

func TestInlineRejects(t *testing.T) {
	rejected := []rdf.Term{
		rdf.NewNamedNode("http://example.org/a"),
		rdf.NewBlankNode("b0"),
		rdf.NewLiteral("plain"),
		rdf.NewLiteralWithLanguage("42", "en"),
		rdf.NewLiteralWithDatatype("+5", rdf.XSDInteger),
		rdf.NewLiteralWithDatatype("007", rdf.XSDInteger),
		rdf.NewLiteralWithDatatype("36028797018963968", rdf.XSDInteger), // 2^55
		rdf.NewLiteralWithDatatype("1.50", rdf.XSDDecimal),
		rdf.NewLiteralWithDatatype("12", rdf.XSDDecimal),
		rdf.NewLiteralWithDatatype("0.1", rdf.XSDDouble),
		rdf.NewLiteralWithDatatype("1", rdf.XSDBoolean),
		rdf.NewLiteralWithDatatype("2025-01-01T12:00:00+01:00", rdf.XSDDateTime),
		rdf.NewLiteralWithDatatype("not a date", rdf.XSDDate),
	}

	for _, term := range rejected {
		_, ok := Inline(term)
		require.False(t, ok, "%s should not be inlined", term)
	}
}

func TestTermRejectsNonInline(t *testing.T) {
	_, err := Term(NewPtr(1))
	require.ErrorIs(t, err, ErrNotInline)

	_, err = Term(Any)
	require.ErrorIs(t, err, ErrNotInline)
}
