// Package postgres implements a Postgres warehouse backend using pgx v5.
// Bulk inserts go through COPY into a temporary table followed by an
// INSERT ... SELECT with ON CONFLICT DO NOTHING; a plain multi-VALUES insert
// would hit the wire protocol's parameter limit well below one page of rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"integrador/internal/warehouse"
)

func init() {
	warehouse.Register("postgres", func(ctx context.Context, dsn string) (warehouse.Repository, error) {
		return New(ctx, dsn)
	})
}

// Repository is a Postgres-backed warehouse.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// New opens a connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// EnsureSchema creates the schema if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context, schema string) error {
	_, err := r.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(schema))
	return err
}

// EnsureTable creates def's table if absent.
func (r *Repository) EnsureTable(ctx context.Context, def warehouse.TableDef) error {
	stmt, err := warehouse.RenderCreate(pgFQN(def.Schema, def.Table), def)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, stmt)
	return err
}

// InsertIgnore COPYs rows into a session-local temp table in PageSize chunks,
// then moves them into the target with ON CONFLICT (keys) DO NOTHING. The
// whole call runs inside one transaction, so a failure on any chunk persists
// nothing. The returned count is the number of rows the final INSERT landed.
func (r *Repository) InsertIgnore(ctx context.Context, schema, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fq := pgFQN(schema, table)
	tmp := "tmp_" + schema + "_" + table
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WHERE false",
		pgIdent(tmp), strings.Join(mapIdent(columns), ", "), fq,
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}

	for start := 0; start < len(rows); start += warehouse.PageSize {
		end := start + warehouse.PageSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, columns, pgx.CopyFromRows(rows[start:end])); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return 0, fmt.Errorf("copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
			}
			return 0, fmt.Errorf("copy into temp: %w", err)
		}
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
		fq,
		strings.Join(mapIdent(columns), ", "),
		strings.Join(mapIdent(columns), ", "),
		pgIdent(tmp),
		strings.Join(mapIdent(keys), ", "),
	)
	tag, err := tx.Exec(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("insert phase: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN renders schema.table with both segments quoted.
func pgFQN(schema, table string) string { return pgIdent(schema) + "." + pgIdent(table) }

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
