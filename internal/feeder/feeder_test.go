package feeder

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"integrador/internal/warehouse/sqlite"
)

func writeCamunda(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "CAMUNDA"); err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("CAMUNDA", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func TestFeedConcatsCoercesAndUpserts(t *testing.T) {
	dir := t.TempDir()
	writeCamunda(t, filepath.Join(dir, "2025-01-01 08h_integracion.xlsx"), [][]any{
		{"numero_orden_suministro", "precio_unitario", "fecha_autorizacion", "rfc_proveedor"},
		{"OS-1", "10", "15/03/2025", "XAXX010101000"},
	})
	writeCamunda(t, filepath.Join(dir, "2025-01-02 09h_integracion.xlsx"), [][]any{
		{"numero_orden_suministro", "precio_unitario", "fecha_autorizacion"},
		{"OS-2", "junk", "not a date"},
	})
	// Spreadsheet lock files must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "~$2025-01-01 08h_integracion.xlsx"), []byte("lock"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "wh.db")
	repo, err := sqlite.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	n, err := Feed(ctx, repo, dir, "imss")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("inserted %d, want 2", n)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Dropped column must not reach the table.
	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('imss.imssb_historico') WHERE name = 'rfc_proveedor'`).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("rfc_proveedor should have been dropped before upsert")
	}

	// Unparseable date lands as the dummy date, unparseable int as NULL.
	var precio any
	var fecha string
	err = db.QueryRow(`SELECT precio_unitario, fecha_autorizacion FROM "imss.imssb_historico" WHERE numero_orden_suministro = 'OS-2'`).Scan(&precio, &fecha)
	if err != nil {
		t.Fatal(err)
	}
	if precio != nil {
		t.Errorf("precio_unitario = %v, want NULL", precio)
	}
	if !strings.HasPrefix(fecha, "1900-01-01") {
		t.Errorf("fecha_autorizacion = %q, want dummy date", fecha)
	}

	// Feeding again inserts nothing.
	n, err = Feed(ctx, repo, dir, "imss")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second feed inserted %d, want 0", n)
	}
}

func TestFeedEmptyDirIsNoOp(t *testing.T) {
	repo, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "wh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	n, err := Feed(context.Background(), repo, t.TempDir(), "imss")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("inserted %d from empty dir", n)
	}
}
