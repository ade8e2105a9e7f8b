package answer

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind tags a Value.
type Kind int

const (
	Null Kind = iota
	Integer
	Decimal
	Text
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Value is a result cell reduced to the four shapes the formatter renders
// differently. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	Int  int64
	Dec  decimal.Decimal
	Str  string
}

var printer = message.NewPrinter(language.English)

// String renders the value: integers grouped with no decimals, decimals
// grouped with exactly two decimals, null as "0", text as is.
func (v Value) String() string {
	switch v.Kind {
	case Integer:
		return printer.Sprintf("%d", v.Int)
	case Decimal:
		return groupDecimal(v.Dec.StringFixed(2))
	case Text:
		return v.Str
	default:
		return "0"
	}
}

// groupDecimal inserts thousands separators into the integer part of a fixed
// point string such as "-1234567.50". Digits are never reparsed, so
// NUMERIC values keep full precision.
func groupDecimal(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// ValueOf converts a driver value (as returned by pgx Rows.Values) into a
// Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{Kind: Null}
	case int:
		return intValue(int64(t))
	case int8:
		return intValue(int64(t))
	case int16:
		return intValue(int64(t))
	case int32:
		return intValue(int64(t))
	case int64:
		return intValue(t)
	case uint:
		return uintValue(uint64(t))
	case uint8:
		return intValue(int64(t))
	case uint16:
		return intValue(int64(t))
	case uint32:
		return intValue(int64(t))
	case uint64:
		return uintValue(t)
	case float32:
		return floatValue(float64(t))
	case float64:
		return floatValue(t)
	case decimal.Decimal:
		return Value{Kind: Decimal, Dec: t}
	case *decimal.Decimal:
		if t == nil {
			return Value{Kind: Null}
		}
		return Value{Kind: Decimal, Dec: *t}
	case pgtype.Numeric:
		return numericValue(t)
	case *big.Int:
		if t == nil {
			return Value{Kind: Null}
		}
		if t.IsInt64() {
			return intValue(t.Int64())
		}
		return Value{Kind: Text, Str: t.String()}
	case bool:
		if t {
			return Value{Kind: Text, Str: "true"}
		}
		return Value{Kind: Text, Str: "false"}
	case string:
		return Value{Kind: Text, Str: t}
	case []byte:
		return Value{Kind: Text, Str: string(t)}
	case [16]byte:
		return Value{Kind: Text, Str: uuid.UUID(t).String()}
	case uuid.UUID:
		return Value{Kind: Text, Str: t.String()}
	case time.Time:
		return Value{Kind: Text, Str: formatTime(t)}
	case pgtype.Date:
		if !t.Valid {
			return Value{Kind: Null}
		}
		return Value{Kind: Text, Str: formatTime(t.Time)}
	case pgtype.Text:
		if !t.Valid {
			return Value{Kind: Null}
		}
		return Value{Kind: Text, Str: t.String}
	case fmt.Stringer:
		return Value{Kind: Text, Str: t.String()}
	default:
		return Value{Kind: Text, Str: fmt.Sprint(x)}
	}
}

func intValue(i int64) Value {
	return Value{Kind: Integer, Int: i}
}

func uintValue(u uint64) Value {
	if u > math.MaxInt64 {
		return Value{Kind: Decimal, Dec: decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)}
	}
	return intValue(int64(u))
}

func floatValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{Kind: Text, Str: fmt.Sprint(f)}
	}
	return Value{Kind: Decimal, Dec: decimal.NewFromFloat(f)}
}

// numericValue keeps NUMERIC columns as decimals even when the stored value
// is whole, so money renders with cents.
func numericValue(n pgtype.Numeric) Value {
	switch {
	case !n.Valid:
		return Value{Kind: Null}
	case n.NaN:
		return Value{Kind: Text, Str: "NaN"}
	case n.InfinityModifier == pgtype.Infinity:
		return Value{Kind: Text, Str: "Infinity"}
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return Value{Kind: Text, Str: "-Infinity"}
	case n.Int == nil:
		return Value{Kind: Decimal, Dec: decimal.Zero}
	default:
		return Value{Kind: Decimal, Dec: decimal.NewFromBigInt(n.Int, n.Exp)}
	}
}

// formatTime renders midnight UTC (a DATE column) as YYYY-MM-DD and
// anything else as RFC 3339.
func formatTime(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
