package answer

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		wantKind Kind
		want     string
	}{
		{"nil", nil, Null, "0"},
		{"int64", int64(1234567), Integer, "1,234,567"},
		{"int32", int32(42), Integer, "42"},
		{"negative int", -9876, Integer, "-9,876"},
		{"float64", 1234.5, Decimal, "1,234.50"},
		{"whole float", float64(3), Decimal, "3.00"},
		{"float rounds", 2.345678, Decimal, "2.35"},
		{"decimal", decimal.RequireFromString("98765.4321"), Decimal, "98,765.43"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(123450), Exp: -2, Valid: true}, Decimal, "1,234.50"},
		{"whole numeric", pgtype.Numeric{Int: big.NewInt(5), Exp: 0, Valid: true}, Decimal, "5.00"},
		{"null numeric", pgtype.Numeric{}, Null, "0"},
		{"NaN numeric", pgtype.Numeric{NaN: true, Valid: true}, Text, "NaN"},
		{"NaN float", math.NaN(), Text, "NaN"},
		{"string", "bonnet", Text, "bonnet"},
		{"bytes", []byte("raw"), Text, "raw"},
		{"bool true", true, Text, "true"},
		{"bool false", false, Text, "false"},
		{"date", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), Text, "2025-03-14"},
		{"timestamp", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), Text, "2025-03-14T09:30:00Z"},
		{"uuid bytes", [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}, Text, "12345678-9abc-def0-1234-56789abcdef0"},
		{"big uint", uint64(math.MaxUint64), Decimal, "18,446,744,073,709,551,615.00"},
		{"wide numeric", pgtype.Numeric{Int: mustBigInt(t, "1234567890123456789"), Exp: -2, Valid: true}, Decimal, "12,345,678,901,234,567.89"},
		{"negative decimal", decimal.RequireFromString("-1234567.5"), Decimal, "-1,234,567.50"},
		{"fractional decimal", decimal.RequireFromString("0.5"), Decimal, "0.50"},
		{"three digit decimal", decimal.RequireFromString("999.999"), Decimal, "1,000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValueOf(tt.in)
			assert.Equal(t, tt.wantKind, v.Kind)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "null", Null.String())
	assert.Equal(t, "integer", Integer.String())
	assert.Equal(t, "decimal", Decimal.String())
	assert.Equal(t, "text", Text.String())
}

func mustBigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid integer %q", s)
	}
	return n
}
