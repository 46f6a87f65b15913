package warehouse

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// nullMarkers are string spellings of "no value" that upstream spreadsheet
// tooling leaks into exports. Matched case-insensitively after trimming.
var nullMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"nat":  true,
	"none": true,
	"null": true,
	"n/a":  true,
	"<na>": true,
}

// DummyDate replaces null values in date-like columns so those columns are
// never NULL in the warehouse. Semantic purity traded for simpler downstream
// date arithmetic.
var DummyDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// dateLike reports whether a normalized column name denotes a date column.
func dateLike(normCol string) bool {
	return strings.Contains(normCol, "fecha") || strings.Contains(normCol, "date")
}

// SanitizeValue coerces one cell to a SQL-safe value for the named
// (normalized) column: null markers collapse to nil, wide numerics to native
// ones, decimals to float64, and nil in a date-like column becomes DummyDate.
func SanitizeValue(v any, normCol string) any {
	isDate := dateLike(normCol)
	out := sanitize(v)
	if out == nil && isDate {
		return DummyDate
	}
	return out
}

func sanitize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		cleaned := strings.TrimSpace(t)
		if nullMarkers[strings.ToLower(cleaned)] {
			return nil
		}
		return cleaned
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case decimal.Decimal:
		f, _ := t.Float64()
		return f
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t
	default:
		return v
	}
}
