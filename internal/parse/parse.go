// Package parse holds the explicit "coerce or miss" value parsers used across
// cleaning and enrichment. A failed parse is a missing value, never an error:
// downstream arithmetic (Importe, PENA) propagates the miss instead of
// aborting a batch over one malformed cell.
package parse

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Numeric parses v into a float64. Accepts native numeric types and numeric
// strings (leading/trailing space tolerated). Returns ok=false on anything
// else, including nil and the empty string.
func Numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case decimal.Decimal:
		f, _ := t.Float64()
		return f, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Date parses v against layout. time.Time values pass through regardless of
// layout. Returns ok=false on parse failure.
func Date(v any, layout string) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		d, err := time.Parse(layout, s)
		if err != nil {
			return time.Time{}, false
		}
		return d, true
	default:
		return time.Time{}, false
	}
}

// Money parses a currency-formatted value ("$1,234.50") into a decimal,
// stripping currency symbols, thousands separators and whitespace. Plain
// numerics pass through.
func Money(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		s := strings.TrimSpace(t)
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
