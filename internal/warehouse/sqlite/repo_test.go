package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"integrador/internal/warehouse"
	"integrador/internal/warehouse/sqlite"
	"integrador/pkg/records"
)

func openTestRepo(t *testing.T) (*sqlite.Repository, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "warehouse.db")
	repo, err := sqlite.New(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(repo.Close)
	return repo, dsn
}

func sampleFrame() records.Frame {
	f := records.NewFrame("numero_orden_suministro", "importe")
	f.Append(records.Record{"numero_orden_suministro": "OS-1", "importe": 10.0})
	f.Append(records.Record{"numero_orden_suministro": "OS-2", "importe": 20.0})
	return f
}

func countRows(t *testing.T, dsn, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestUpsertIsIdempotent(t *testing.T) {
	repo, dsn := openTestRepo(t)
	ctx := context.Background()
	keys := []string{"numero_orden_suministro"}

	n, err := warehouse.Upsert(ctx, repo, sampleFrame(), "imss", "historico", keys)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("first run inserted %d, want 2", n)
	}

	// Re-running the same frame must insert nothing and leave rows untouched.
	n, err = warehouse.Upsert(ctx, repo, sampleFrame(), "imss", "historico", keys)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second run inserted %d, want 0", n)
	}
	if got := countRows(t, dsn, "imss.historico"); got != 2 {
		t.Fatalf("table holds %d rows, want 2", got)
	}
}

func TestUpsertFirstRowWinsAcrossRuns(t *testing.T) {
	repo, dsn := openTestRepo(t)
	ctx := context.Background()
	keys := []string{"numero_orden_suministro"}

	if _, err := warehouse.Upsert(ctx, repo, sampleFrame(), "imss", "historico", keys); err != nil {
		t.Fatal(err)
	}

	// A later run with a conflicting key is ignored; the stored row survives.
	f := records.NewFrame("numero_orden_suministro", "importe")
	f.Append(records.Record{"numero_orden_suministro": "OS-1", "importe": 999.0})
	n, err := warehouse.Upsert(ctx, repo, f, "imss", "historico", keys)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("conflicting run inserted %d, want 0", n)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var importe float64
	if err := db.QueryRow(`SELECT importe FROM "imss.historico" WHERE numero_orden_suministro = 'OS-1'`).Scan(&importe); err != nil {
		t.Fatal(err)
	}
	if importe != 10.0 {
		t.Fatalf("stored importe = %v, want the original 10", importe)
	}
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	repo, dsn := openTestRepo(t)
	ctx := context.Background()
	keys := []string{"numero_orden_suministro"}

	// The second row carries a value no driver can bind, so the insert fails
	// after the first row has already executed inside the transaction. Nothing
	// may survive the rollback.
	f := records.NewFrame("numero_orden_suministro", "importe")
	f.Append(records.Record{"numero_orden_suministro": "OS-1", "importe": 10.0})
	f.Append(records.Record{"numero_orden_suministro": "OS-2", "importe": struct{}{}})

	n, err := warehouse.Upsert(ctx, repo, f, "imss", "historico", keys)
	if err == nil {
		t.Fatal("expected the upsert to fail")
	}
	if n != 0 {
		t.Fatalf("reported %d inserted rows from a failed upsert", n)
	}
	if got := countRows(t, dsn, "imss.historico"); got != 0 {
		t.Fatalf("table holds %d rows after rollback, want 0", got)
	}
}

func TestUpsertCreatesTableLazily(t *testing.T) {
	repo, dsn := openTestRepo(t)
	if _, err := warehouse.Upsert(context.Background(), repo, sampleFrame(), "imss", "historico", []string{"numero_orden_suministro"}); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'imss.historico'`).Scan(&name)
	if err != nil {
		t.Fatalf("table not created: %v", err)
	}
}
