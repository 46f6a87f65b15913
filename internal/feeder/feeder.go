// Package feeder loads the accumulated integration workbooks into the
// warehouse history table. It is the bridge between the spreadsheet artifacts
// and SQL: every CAMUNDA sheet found in the integration directory is
// concatenated, coerced to typed columns, and upserted keyed by supply-order
// number, so re-feeding after a new integration run only adds the new rows.
package feeder

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"integrador/internal/parse"
	"integrador/internal/warehouse"
	"integrador/internal/xlsxio"
	"integrador/pkg/records"
)

const (
	sheetName = "CAMUNDA"
	tableName = "imssb_historico"
)

// dateLayout matches the dd/mm/yyyy cells the integration artifacts carry.
const dateLayout = "02/01/2006"

var (
	primaryKeys = []string{"numero_orden_suministro"}

	// Columns of no analytical value downstream.
	dropColumns = []string{"rfc_proveedor", "razon_social", "almacen_entrega", "entidad_destino", "nombre_unidad"}

	dateColumns   = []string{"fecha_autorizacion", "fecha_limite_entrega"}
	intColumns    = []string{"precio_unitario", "cantidad_solicitada"}
	floatColumns  = []string{"Importe", "PENA"}
	stringColumns = []string{"numero_orden_suministro", "numero_contrato"}
)

// Feed concatenates the CAMUNDA sheet of every workbook under integrationDir
// and upserts the result into schema.imssb_historico. Returns the number of
// rows newly inserted. A directory with no loadable sheet is not an error;
// there is simply nothing to feed.
func Feed(ctx context.Context, repo warehouse.Repository, integrationDir, schema string) (int64, error) {
	f, err := loadAll(integrationDir)
	if err != nil {
		return 0, err
	}
	if f.Empty() {
		log.Printf("feeder: no %s sheets under %s", sheetName, integrationDir)
		return 0, nil
	}
	coerce(&f)
	n, err := warehouse.Upsert(ctx, repo, f, schema, tableName, primaryKeys)
	if err != nil {
		return n, fmt.Errorf("feed %s: %w", tableName, err)
	}
	return n, nil
}

// loadAll reads the CAMUNDA sheet of every workbook in dir and concatenates
// by column name. Unreadable workbooks are logged and skipped.
func loadAll(dir string) (records.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read integration dir: %w", err)
	}
	var out records.Frame
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		path := filepath.Join(dir, name)
		f, err := xlsxio.ReadSheet(path, sheetName)
		if err != nil {
			log.Printf("feeder: skipping %s: %v", name, err)
			continue
		}
		log.Printf("feeder: read %s sheet of %s (%d rows)", sheetName, name, len(f.Rows))
		for _, c := range f.Columns {
			out.AddColumn(c)
		}
		for _, r := range f.Rows {
			out.Append(r)
		}
	}
	return out, nil
}

// coerce applies the history table's column typing in place: noise columns
// dropped, date columns parsed dd/mm/yyyy with invalid cells pinned to the
// dummy date, numeric columns parsed with missing on failure, string keys
// trimmed. Absent columns are skipped.
func coerce(f *records.Frame) {
	var keep []string
	for _, c := range f.Columns {
		if !contains(dropColumns, c) {
			keep = append(keep, c)
		}
	}
	*f = f.Select(keep...)

	for _, col := range dateColumns {
		if !f.HasColumn(col) {
			continue
		}
		for _, r := range f.Rows {
			if t, ok := parse.Date(r[col], dateLayout); ok {
				r[col] = t
			} else {
				r[col] = warehouse.DummyDate
			}
		}
	}
	for _, col := range intColumns {
		if !f.HasColumn(col) {
			continue
		}
		for _, r := range f.Rows {
			if n, ok := parse.Numeric(r[col]); ok {
				r[col] = int64(n)
			} else {
				r[col] = nil
			}
		}
	}
	for _, col := range floatColumns {
		if !f.HasColumn(col) {
			continue
		}
		for _, r := range f.Rows {
			if n, ok := parse.Numeric(r[col]); ok {
				r[col] = n
			} else {
				r[col] = nil
			}
		}
	}
	for _, col := range stringColumns {
		if !f.HasColumn(col) {
			continue
		}
		for _, r := range f.Rows {
			s := strings.TrimSpace(records.CellString(r[col]))
			if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "none") {
				r[col] = nil
			} else {
				r[col] = s
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
