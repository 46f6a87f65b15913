// Package warehouse persists enriched record sets into a relational store
// with an idempotent insert-or-ignore protocol.
//
// The engine normalizes identifiers, infers a table schema from runtime
// values on first contact, coerces cells to SQL-safe form, deduplicates
// client-side on the primary key (last occurrence wins), and bulk-inserts
// with a do-nothing conflict policy (first row in the table wins across
// runs). The two dedup directions are intentionally asymmetric; see
// DESIGN.md. Each upsert call is one transaction: backends page the work
// internally, and a failure on any page rolls back every page.
//
// Backends register themselves by kind; callers select one through the
// connection configuration and never see dialect SQL.
package warehouse

import (
	"context"
	"fmt"
	"log"
	"sync"

	"integrador/internal/metrics"
	"integrador/pkg/records"
)

// PageSize is the bulk-insert page size backends use when chunking a row set.
// There is no partial-page retry; a failure rolls back the whole upsert call.
const PageSize = 10000

// Repository is a dialect-specific warehouse connection.
type Repository interface {
	// EnsureSchema creates the schema if the dialect has schemas; otherwise a
	// no-op.
	EnsureSchema(ctx context.Context, schema string) error
	// EnsureTable creates def's table if absent. Existing tables are left
	// untouched even when def differs.
	EnsureTable(ctx context.Context, def TableDef) error
	// InsertIgnore bulk-inserts rows (aligned to columns) inside a single
	// transaction, skipping rows whose key already exists. Backends page the
	// rows internally; an error means nothing was persisted. Returns the
	// number of rows actually inserted.
	InsertIgnore(ctx context.Context, schema, table string, columns, keys []string, rows [][]any) (int64, error)
	Close()
}

// OpenFn opens a backend repository from a connection string.
type OpenFn func(ctx context.Context, dsn string) (Repository, error)

var (
	openMu  sync.RWMutex
	openFns = map[string]OpenFn{}
)

// Register installs (or replaces) a backend for the given kind. Called from
// backend packages' init functions.
func Register(kind string, fn OpenFn) {
	openMu.Lock()
	defer openMu.Unlock()
	openFns[kind] = fn
}

// Open connects using the backend registered for kind.
func Open(ctx context.Context, kind, dsn string) (Repository, error) {
	openMu.RLock()
	fn, ok := openFns[kind]
	openMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("warehouse: no backend registered for kind %q", kind)
	}
	return fn(ctx, dsn)
}

// Upsert writes f into schema.table keyed by primaryKeys, creating schema and
// table on first contact. Column names, schema, table and keys are normalized
// before any SQL is emitted. Returns the number of rows newly inserted.
//
// Idempotent by construction: re-running with identical rows inserts nothing.
func Upsert(ctx context.Context, repo Repository, f records.Frame, schema, table string, primaryKeys []string) (int64, error) {
	if len(primaryKeys) == 0 {
		return 0, fmt.Errorf("warehouse: primary keys are required")
	}
	schema = NormalizeIdentifier(schema)
	table = NormalizeIdentifier(table)
	if schema == "" || table == "" {
		return 0, fmt.Errorf("warehouse: schema and table are required")
	}

	nf := f.RenameColumns(NormalizeIdentifier)
	keys := make([]string, len(primaryKeys))
	for i, pk := range primaryKeys {
		keys[i] = NormalizeIdentifier(pk)
	}
	if missing := nf.Missing(keys...); missing != nil {
		return 0, fmt.Errorf("warehouse: primary keys %v not present after normalization", missing)
	}

	// Sanitize before dedup so key comparison sees canonical values.
	for _, r := range nf.Rows {
		for _, c := range nf.Columns {
			r[c] = SanitizeValue(r[c], c)
		}
	}
	nf = dedupLast(nf, keys)
	if nf.Empty() {
		log.Printf("warehouse: %s.%s: nothing to insert", schema, table)
		return 0, nil
	}

	if err := repo.EnsureSchema(ctx, schema); err != nil {
		return 0, fmt.Errorf("warehouse: ensure schema %s: %w", schema, err)
	}
	def := InferTable(nf, schema, table, keys)
	if err := repo.EnsureTable(ctx, def); err != nil {
		return 0, fmt.Errorf("warehouse: ensure table %s.%s: %w", schema, table, err)
	}

	rows := make([][]any, 0, len(nf.Rows))
	for _, r := range nf.Rows {
		row := make([]any, len(nf.Columns))
		for j, c := range nf.Columns {
			row[j] = r[c]
		}
		rows = append(rows, row)
	}
	inserted, err := repo.InsertIgnore(ctx, schema, table, nf.Columns, keys, rows)
	if err != nil {
		return 0, fmt.Errorf("warehouse: insert into %s.%s: %w", schema, table, err)
	}
	log.Printf("warehouse: %s.%s: %d of %d rows inserted (conflicts skipped)", schema, table, inserted, len(nf.Rows))
	metrics.RecordRows("upserted", inserted)
	return inserted, nil
}

// dedupLast collapses rows sharing a primary key, keeping the LAST
// occurrence: within a freshly generated batch the newest version of a row is
// authoritative. Output keeps the position of each winner's last appearance.
func dedupLast(f records.Frame, keys []string) records.Frame {
	last := map[string]int{}
	for i, r := range f.Rows {
		last[records.Key(r, keys)] = i
	}
	out := records.Frame{Columns: f.Columns}
	for i, r := range f.Rows {
		if last[records.Key(r, keys)] == i {
			out.Append(r)
		}
	}
	if dropped := len(f.Rows) - len(out.Rows); dropped > 0 {
		log.Printf("warehouse: dropped %d intra-batch duplicate rows on %v (last wins)", dropped, keys)
	}
	return out
}
