package nodeid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

const (
	// integers are stored as 56-bit two's complement
	minInlineInteger = -(1 << (PayloadBits - 1))
	maxInlineInteger = 1<<(PayloadBits-1) - 1

	// decimals: 8-bit scale followed by a 48-bit two's complement unscaled value
	decimalValueBits = 48
	decimalValueMask = 1<<decimalValueBits - 1
	minDecimalValue  = -(1 << (decimalValueBits - 1))
	maxDecimalValue  = 1<<(decimalValueBits-1) - 1

	dateLayout = "2006-01-02"
)

var ErrNotInline = errors.New("nodeid: not an inline id")

// Inline encodes term directly into a NodeID when its value fits.
// The second result is false for terms that must be stored in the node table.
//
// A literal is only inlined when decoding the id reproduces its exact lexical
// form, so two terms never share an id.
func Inline(term rdf.Term) (NodeID, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Language != "" || lit.Datatype == nil {
		return 0, false
	}

	var id NodeID
	switch lit.Datatype.IRI {
	case rdf.XSDInteger.IRI:
		id, ok = inlineInteger(lit.Value)
	case rdf.XSDDecimal.IRI:
		id, ok = inlineDecimal(lit.Value)
	case rdf.XSDDouble.IRI:
		id, ok = inlineDouble(lit.Value)
	case rdf.XSDBoolean.IRI:
		id, ok = inlineBoolean(lit.Value)
	case rdf.XSDDateTime.IRI:
		id, ok = inlineDateTime(lit.Value)
	case rdf.XSDDate.IRI:
		id, ok = inlineDate(lit.Value)
	default:
		return 0, false
	}
	if !ok {
		return 0, false
	}

	// Non-canonical lexical forms ("+5", "007", "1.50") keep their identity in the node table
	decoded, err := Term(id)
	if err != nil || !decoded.Equals(lit) {
		return 0, false
	}
	return id, true
}

// Term rebuilds the literal represented by an inline id
func Term(id NodeID) (rdf.Term, error) {
	payload := id.Payload()

	switch id.Type() {
	case TypeInteger:
		return rdf.NewIntegerLiteral(integerValue(payload)), nil

	case TypeDecimal:
		scale := int(int8(payload >> decimalValueBits)) // #nosec G115 - scale is stored as a signed byte
		value := signExtend(payload&decimalValueMask, decimalValueBits)
		return rdf.NewLiteralWithDatatype(formatDecimal(value, scale), rdf.XSDDecimal), nil

	case TypeDouble:
		value := math.Float64frombits(payload << 8)
		return rdf.NewLiteralWithDatatype(formatDouble(value), rdf.XSDDouble), nil

	case TypeBoolean:
		return rdf.NewBooleanLiteral(payload != 0), nil

	case TypeDateTime:
		millis := signExtend(payload, PayloadBits)
		return rdf.NewDateTimeLiteral(time.UnixMilli(millis)), nil

	case TypeDate:
		days := signExtend(payload, PayloadBits)
		return rdf.NewDateLiteral(time.Unix(days*86400, 0)), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrNotInline, id)
	}
}

func integerValue(payload uint64) int64 {
	return signExtend(payload, PayloadBits)
}

// signExtend interprets the low bits of v as a two's complement number
func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift // #nosec G115 - intentional bit-pattern conversion
}

func inlineInteger(lexical string) (NodeID, bool) {
	value, err := strconv.ParseInt(lexical, 10, 64)
	if err != nil || value < minInlineInteger || value > maxInlineInteger {
		return 0, false
	}
	return New(TypeInteger, uint64(value)), true // #nosec G115 - two's complement, masked to 56 bits
}

func inlineDecimal(lexical string) (NodeID, bool) {
	negative := false
	switch {
	case strings.HasPrefix(lexical, "-"):
		negative = true
		lexical = lexical[1:]
	case strings.HasPrefix(lexical, "+"):
		lexical = lexical[1:]
	}

	intPart, fracPart, _ := strings.Cut(lexical, ".")
	fracPart = strings.TrimRight(fracPart, "0")
	digits := intPart + fracPart
	if digits == "" || len(fracPart) > math.MaxInt8 {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		value = -value
	}
	if value < minDecimalValue || value > maxDecimalValue {
		return 0, false
	}

	scale := uint64(uint8(len(fracPart))) // #nosec G115 - bounded by MaxInt8 above
	return New(TypeDecimal, scale<<decimalValueBits|uint64(value)&decimalValueMask), true // #nosec G115 - two's complement, masked
}

func formatDecimal(value int64, scale int) string {
	negative := value < 0
	if negative {
		value = -value
	}
	digits := strconv.FormatInt(value, 10)

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	if scale <= 0 {
		b.WriteString(digits)
		b.WriteString(".0")
		return b.String()
	}
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	b.WriteString(digits[:len(digits)-scale])
	b.WriteByte('.')
	b.WriteString(digits[len(digits)-scale:])
	return b.String()
}

func inlineDouble(lexical string) (NodeID, bool) {
	var value float64
	switch lexical {
	case "INF":
		value = math.Inf(1)
	case "-INF":
		value = math.Inf(-1)
	case "NaN":
		value = math.NaN()
	default:
		v, err := strconv.ParseFloat(lexical, 64)
		if err != nil {
			return 0, false
		}
		value = v
	}

	bits := math.Float64bits(value)
	if bits&0xFF != 0 {
		// low mantissa bits do not fit into the payload
		return 0, false
	}
	return New(TypeDouble, bits>>8), true
}

func formatDouble(value float64) string {
	switch {
	case math.IsInf(value, 1):
		return "INF"
	case math.IsInf(value, -1):
		return "-INF"
	case math.IsNaN(value):
		return "NaN"
	}
	return strconv.FormatFloat(value, 'g', -1, 64)
}

func inlineBoolean(lexical string) (NodeID, bool) {
	switch lexical {
	case "true":
		return New(TypeBoolean, 1), true
	case "false":
		return New(TypeBoolean, 0), true
	default:
		return 0, false
	}
}

func inlineDateTime(lexical string) (NodeID, bool) {
	t, err := time.Parse(time.RFC3339Nano, lexical)
	if err != nil {
		return 0, false
	}
	millis := t.UnixMilli()
	if millis < minInlineInteger || millis > maxInlineInteger {
		return 0, false
	}
	return New(TypeDateTime, uint64(millis)), true // #nosec G115 - two's complement, masked to 56 bits
}

func inlineDate(lexical string) (NodeID, bool) {
	t, err := time.Parse(dateLayout, lexical)
	if err != nil {
		return 0, false
	}
	days := t.Unix() / 86400
	return New(TypeDate, uint64(days)), true // #nosec G115 - two's complement, masked to 56 bits
}
