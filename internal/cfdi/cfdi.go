// Package cfdi extracts invoice data from CFDI comprobante XML files (SAT
// versions 3 and 4) and maintains an append-only workbook of everything seen
// so far. Re-running over the same folders adds only documents whose UUID (or
// folio+filename, when the digital stamp is missing) is not already recorded.
package cfdi

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"integrador/internal/parse"
	"integrador/internal/xlsxio"
	"integrador/pkg/records"
)

// DefaultWorkers is the XML parse pool size. The work is I/O bound; a small
// fixed pool shortens wall clock without reordering anything observable.
const DefaultWorkers = 4

// Columns of the extraction workbook, in sheet order.
var Columns = []string{"UUID", "Folio", "Fecha", "Nombre", "Rfc", "Descripcion", "Cantidad", "Importe", "Archivo"}

const sheetName = "Sheet1"

// comprobante mirrors the CFDI attributes we keep. Field matching is by local
// element name; the namespace is checked separately so both cfd/3 and cfd/4
// documents parse with one shape.
type comprobante struct {
	XMLName  xml.Name `xml:"Comprobante"`
	Folio    string   `xml:"Folio,attr"`
	Serie    string   `xml:"Serie,attr"`
	Fecha    string   `xml:"Fecha,attr"`
	Receptor struct {
		Nombre string `xml:"Nombre,attr"`
		Rfc    string `xml:"Rfc,attr"`
	} `xml:"Receptor"`
	Complemento struct {
		Timbre struct {
			UUID string `xml:"UUID,attr"`
		} `xml:"TimbreFiscalDigital"`
	} `xml:"Complemento"`
	Conceptos struct {
		Concepto []struct {
			Descripcion string `xml:"Descripcion,attr"`
			Cantidad    string `xml:"Cantidad,attr"`
			Importe     string `xml:"Importe,attr"`
		} `xml:"Concepto"`
	} `xml:"Conceptos"`
}

// Extract walks folders for .xml files, parses them across a worker pool, and
// appends unseen documents to the workbook at databasePath (one row per
// concepto line). Returns the full database frame and how many rows were
// added. Unparseable files are logged and skipped.
func Extract(ctx context.Context, folders []string, databasePath string, workers int) (records.Frame, int, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	db := loadDatabase(databasePath)
	seenUUIDs := map[string]bool{}
	seenFolioFile := map[string]bool{}
	for _, r := range db.Rows {
		if u := records.CellString(r["UUID"]); u != "" {
			seenUUIDs[u] = true
		}
		seenFolioFile[records.Key(r, []string{"Folio", "Archivo"})] = true
	}

	var files []string
	for _, folder := range folders {
		err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".xml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			log.Printf("cfdi: walk %s: %v (skipping)", folder, err)
		}
	}
	log.Printf("cfdi: %d xml files under %d folders", len(files), len(folders))

	// Each worker fills its own slot; merging happens after Wait, so no
	// state is shared while parsing.
	results := make([][]records.Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := parseFile(path)
			if err != nil {
				log.Printf("cfdi: %s: %v", filepath.Base(path), err)
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return db, 0, err
	}

	added := 0
	for _, rows := range results {
		for _, r := range rows {
			uuid := records.CellString(r["UUID"])
			if uuid != "" && seenUUIDs[uuid] {
				continue
			}
			if seenFolioFile[records.Key(r, []string{"Folio", "Archivo"})] {
				continue
			}
			db.Append(r)
			added++
		}
		// Mark after the whole document so its concepto lines all land.
		for _, r := range rows {
			if u := records.CellString(r["UUID"]); u != "" {
				seenUUIDs[u] = true
			}
			seenFolioFile[records.Key(r, []string{"Folio", "Archivo"})] = true
		}
	}

	if added == 0 {
		log.Printf("cfdi: no new documents")
		return db, 0, nil
	}
	if err := xlsxio.WriteWorkbook(databasePath, []xlsxio.Sheet{{Name: sheetName, Frame: db}}); err != nil {
		return db, 0, fmt.Errorf("cfdi: write database: %w", err)
	}
	log.Printf("cfdi: added %d rows to %s (total %d)", added, filepath.Base(databasePath), len(db.Rows))
	return db, added, nil
}

func loadDatabase(path string) records.Frame {
	if _, err := os.Stat(path); err != nil {
		return records.NewFrame(Columns...)
	}
	f, err := xlsxio.ReadFirstSheet(path)
	if err != nil {
		log.Printf("cfdi: database %s unreadable, starting fresh: %v", filepath.Base(path), err)
		return records.NewFrame(Columns...)
	}
	for _, c := range Columns {
		f.AddColumn(c)
	}
	return f
}

// parseFile returns one record per concepto line of the document, or nil for
// documents outside the cfd/3 and cfd/4 namespaces.
func parseFile(path string) ([]records.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c comprobante
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if !strings.Contains(c.XMLName.Space, "cfd/3") && !strings.Contains(c.XMLName.Space, "cfd/4") {
		return nil, nil
	}

	folio := c.Folio
	if c.Serie != "" && c.Folio != "" {
		folio = c.Serie + "-" + c.Folio
	} else if c.Serie != "" {
		folio = c.Serie
	}
	if c.Receptor.Rfc == "" && c.Receptor.Nombre == "" {
		return nil, nil
	}

	file := filepath.Base(path)
	out := make([]records.Record, 0, len(c.Conceptos.Concepto))
	for _, con := range c.Conceptos.Concepto {
		r := records.Record{
			"UUID":        c.Complemento.Timbre.UUID,
			"Folio":       folio,
			"Fecha":       c.Fecha,
			"Nombre":      c.Receptor.Nombre,
			"Rfc":         c.Receptor.Rfc,
			"Descripcion": con.Descripcion,
			"Archivo":     file,
		}
		if n, ok := parse.Numeric(con.Cantidad); ok {
			r["Cantidad"] = n
		}
		if n, ok := parse.Numeric(con.Importe); ok {
			r["Importe"] = n
		}
		out = append(out, r)
	}
	return out, nil
}
