// Package sqlite implements a SQLite warehouse backend using database/sql.
// SQLite has no schemas, so "schema.table" is stored as a single quoted
// identifier containing a dot; the layout of warehouse tables stays the same
// across backends. Used in production for local runs and throughout the test
// suite, where a file in t.TempDir() stands in for the real warehouse.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"integrador/internal/warehouse"
)

func init() {
	warehouse.Register("sqlite", func(ctx context.Context, dsn string) (warehouse.Repository, error) {
		return New(ctx, dsn)
	})
}

// Repository is a SQLite-backed warehouse.Repository.
type Repository struct {
	db *sql.DB
}

// New opens the database at dsn. The DSN is passed straight to database/sql,
// e.g. "file:warehouse.db" or a bare path.
func New(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the database handle.
func (r *Repository) Close() { _ = r.db.Close() }

// EnsureSchema is a no-op; SQLite has no schemas.
func (r *Repository) EnsureSchema(ctx context.Context, schema string) error { return nil }

// EnsureTable creates def's table if absent.
func (r *Repository) EnsureTable(ctx context.Context, def warehouse.TableDef) error {
	stmt, err := warehouse.RenderCreate(sqIdent(def.Schema+"."+def.Table), def)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// InsertIgnore inserts rows one statement at a time inside a single
// transaction, so a failure on any row persists nothing. INSERT OR IGNORE
// carries the conflict policy; keys are unused here because the table's
// primary key makes OR IGNORE do the right thing.
func (r *Repository) InsertIgnore(ctx context.Context, schema, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(columns))
	quoted := make([]string, len(columns))
	for i, c := range columns {
		placeholders[i] = "?"
		quoted[i] = sqIdent(c)
	}
	stmtSQL := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		sqIdent(schema+"."+table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns))
		}
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// sqIdent quotes an identifier for SQLite.
func sqIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
