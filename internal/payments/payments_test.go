package payments

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"integrador/internal/warehouse/sqlite"
)

func writeDrop(t *testing.T, dir, name string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	in, err := os.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		t.Fatal(err)
	}
}

func TestConsolidate(t *testing.T) {
	dir := t.TempDir()
	// Header buried under a cover row, drifted spelling, null-marker rows.
	writeDrop(t, dir, "2025-03-01 10-30 Eseotres pagos.xlsx", [][]any{
		{"Oficina de Atención a Proveedores"},
		{"FOLIO  FISCAL", "Importe"},
		{"FF-001", "10"},
		{"nan", "20"},
		{"FF-002", "30"},
	})
	writeDrop(t, dir, "2025-03-02 11-00 Eseotres pagos.xlsx", [][]any{
		{"Folio Fiscal"},
		{"FF-003"},
	})
	// Re-mailed byte-identical drop under a new prefix: must be read once.
	copyFile(t, filepath.Join(dir, "2025-03-02 11-00 Eseotres pagos.xlsx"),
		filepath.Join(dir, "2025-03-03 09-00 Eseotres pagos.xlsx"))
	// Ignored: wrong prefix, wrong extension, lock file.
	writeDrop(t, dir, "resumen.xlsx", [][]any{{"Folio Fiscal"}, {"FF-999"}})
	if err := os.WriteFile(filepath.Join(dir, "2025-03-01 10-30 Eseotres pagos.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "~$2025-03-01 10-30 Eseotres pagos.xlsx"), []byte("lock"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Consolidate(dir)
	if err != nil {
		t.Fatal(err)
	}
	var folios []string
	for _, r := range f.Rows {
		folios = append(folios, r["folio_fiscal"].(string))
	}
	want := []string{"FF-001", "FF-002", "FF-003"}
	if len(folios) != len(want) {
		t.Fatalf("folios = %v, want %v", folios, want)
	}
	for i := range want {
		if folios[i] != want[i] {
			t.Fatalf("folios = %v, want %v", folios, want)
		}
	}
	if f.Rows[0]["file_name"] != "2025-03-01 10-30 Eseotres pagos.xlsx" {
		t.Errorf("file_name = %v", f.Rows[0]["file_name"])
	}
}

func TestConsolidateEmptyDir(t *testing.T) {
	f, err := Consolidate(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !f.Empty() {
		t.Fatalf("rows = %d", len(f.Rows))
	}
}

func TestFeedUpsertsAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeDrop(t, dir, "2025-03-01 10-30 Eseotres pagos.xlsx", [][]any{
		{"Folio Fiscal"},
		{"FF-001"},
		{"FF-002"},
	})

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

	// Same drop plus one new folio: only the new one lands.
	writeDrop(t, dir, "2025-03-04 12-00 Eseotres pagos.xlsx", [][]any{
		{"Folio Fiscal"},
		{"FF-002"},
		{"FF-004"},
	})
	n, err = Feed(ctx, repo, dir, "imss")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("second feed inserted %d, want 1", n)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "imss.imssb_pago_proveedores"`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("table holds %d folios, want 3", count)
	}
}
