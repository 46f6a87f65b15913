package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"integrador/pkg/records"
)

// ColumnDef is one column of a warehouse table.
type ColumnDef struct {
	Name    string // normalized
	SQLType string
}

// TableDef describes a warehouse table to be created lazily on first upsert.
// All identifiers are already normalized. Once the table exists it is never
// altered; schema drift is out of contract.
type TableDef struct {
	Schema  string
	Table   string
	Columns []ColumnDef
	Keys    []string // primary key subset of Columns
}

// SQL types emitted by inference, in decreasing precedence.
const (
	typeBigint    = "BIGINT"
	typeDouble    = "DOUBLE PRECISION"
	typeTimestamp = "TIMESTAMP"
	typeBoolean   = "BOOLEAN"
	typeText      = "TEXT"
)

// InferTable derives a TableDef from the runtime values of a frame whose
// columns are already normalized. Per column: all-integer values infer
// BIGINT, any float infers DOUBLE PRECISION, time values infer TIMESTAMP,
// bools BOOLEAN, anything else (or mixed) TEXT. A column with no non-nil
// values is TEXT. This is one-time, best-effort inference; it is never
// revisited after the table exists.
func InferTable(f records.Frame, schema, table string, keys []string) TableDef {
	def := TableDef{Schema: schema, Table: table, Keys: keys}
	for _, col := range f.Columns {
		def.Columns = append(def.Columns, ColumnDef{Name: col, SQLType: inferColumn(f, col)})
	}
	return def
}

func inferColumn(f records.Frame, col string) string {
	kind := ""
	for _, r := range f.Rows {
		v, ok := r[col]
		if !ok || v == nil {
			continue
		}
		var k string
		switch v.(type) {
		case int, int32, int64:
			k = typeBigint
		case float32, float64, decimal.Decimal:
			k = typeDouble
		case time.Time:
			k = typeTimestamp
		case bool:
			k = typeBoolean
		default:
			return typeText
		}
		switch {
		case kind == "" || kind == k:
			kind = k
		case kind == typeBigint && k == typeDouble, kind == typeDouble && k == typeBigint:
			// Ints widen into a float column.
			kind = typeDouble
		default:
			return typeText
		}
	}
	if kind == "" {
		return typeText
	}
	return kind
}

// RenderCreate builds a CREATE TABLE IF NOT EXISTS statement for def, with
// fqn supplied by the backend (dialects disagree on how a schema-qualified
// name is written). Identifiers in def are normalized, so they are emitted
// as-is.
func RenderCreate(fqn string, def TableDef) (string, error) {
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("warehouse: table %s has no columns", fqn)
	}
	parts := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		if c.Name == "" || c.SQLType == "" {
			return "", fmt.Errorf("warehouse: table %s has an unnamed or untyped column", fqn)
		}
		parts = append(parts, c.Name+" "+c.SQLType)
	}
	if len(def.Keys) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(def.Keys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", fqn, strings.Join(parts, ",\n  ")), nil
}
