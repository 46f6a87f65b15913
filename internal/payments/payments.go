// Package payments ingests the supplier-payment confirmations mailed by the
// provider attention office (OAP). Each mail drop is an xlsx/pdf pair named
// with a "YYYY-MM-DD HH-MM Eseotres" prefix; the xlsx carries the fiscal
// folios confirmed as paid. The feed consolidates every folio into the
// warehouse payments table, where insert-or-ignore makes re-ingestion free.
package payments

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"integrador/internal/warehouse"
	"integrador/internal/xlsxio"
	"integrador/pkg/records"
)

const tableName = "imssb_pago_proveedores"

var primaryKeys = []string{"folio_fiscal"}

// PrefixPattern matches the OAP mail drop naming convention.
var PrefixPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}-\d{2} Eseotres`)

// headerPattern locates the folio column header; the exports are not
// consistent about spacing or case.
var headerPattern = regexp.MustCompile(`(?i)folio\s*fiscal`)

// headerScanRows bounds the search for the header row; some drops bury it
// under cover sheets.
const headerScanRows = 30

// Feed consolidates every folio under emailDir and upserts them into
// schema.imssb_pago_proveedores. Returns the number of newly recorded folios.
// An empty or unusable directory is not an error; there is nothing to feed.
func Feed(ctx context.Context, repo warehouse.Repository, emailDir, schema string) (int64, error) {
	f, err := Consolidate(emailDir)
	if err != nil {
		return 0, err
	}
	if f.Empty() {
		log.Printf("payments: no new folios under %s", emailDir)
		return 0, nil
	}
	n, err := warehouse.Upsert(ctx, repo, f, schema, tableName, primaryKeys)
	if err != nil {
		return n, fmt.Errorf("feed %s: %w", tableName, err)
	}
	return n, nil
}

// Consolidate scans emailDir for prefixed drops, validates the xlsx/pdf
// pairing (advisory only), and returns a frame of (folio_fiscal, file_name)
// rows with null-marker folios dropped. Byte-identical workbooks are read
// once; the OAP occasionally re-mails the same attachment under a new name.
func Consolidate(emailDir string) (records.Frame, error) {
	entries, err := os.ReadDir(emailDir)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read email dir: %w", err)
	}

	pdfByPrefix := map[string][]string{}
	xlsxByPrefix := map[string][]string{}
	var unprefixed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".xlsx" && ext != ".pdf" {
			continue
		}
		m := PrefixPattern.FindString(name)
		if m == "" {
			unprefixed = append(unprefixed, name)
			continue
		}
		if ext == ".pdf" {
			pdfByPrefix[m] = append(pdfByPrefix[m], name)
		} else {
			xlsxByPrefix[m] = append(xlsxByPrefix[m], name)
		}
	}
	reportPairing(pdfByPrefix, xlsxByPrefix, unprefixed)

	prefixes := make([]string, 0, len(xlsxByPrefix))
	for p := range xlsxByPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	out := records.NewFrame("folio_fiscal", "file_name")
	seen := map[uint64]string{} // content fingerprint -> first file name
	for _, prefix := range prefixes {
		files := xlsxByPrefix[prefix]
		sort.Strings(files)
		if len(files) > 1 {
			log.Printf("payments: %d workbooks for prefix %q, taking %s", len(files), prefix, files[0])
		}
		file := files[0]
		path := filepath.Join(emailDir, file)

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("payments: read %s: %v (skipping)", file, err)
			continue
		}
		sum := xxh3.Hash(data)
		if first, dup := seen[sum]; dup {
			log.Printf("payments: %s is byte-identical to %s, skipping", file, first)
			continue
		}
		seen[sum] = file

		folios, err := readFolios(path)
		if err != nil {
			log.Printf("payments: %s: %v (skipping)", file, err)
			continue
		}
		for _, folio := range folios {
			out.Append(records.Record{"folio_fiscal": folio, "file_name": file})
		}
		log.Printf("payments: %s contributed %d folios", file, len(folios))
	}
	return out, nil
}

// readFolios extracts the cleaned folio list from one workbook. The header
// row is discovered by content; the folio column by normalized name, with a
// fallback to any column mentioning both "folio" and "fiscal".
func readFolios(path string) ([]string, error) {
	sheet, headerRow, ok, err := xlsxio.FindHeaderRow(path, headerPattern, headerScanRows)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no %q header in the first %d rows", "folio fiscal", headerScanRows)
	}
	f, err := xlsxio.ReadSheetAt(path, sheet, headerRow)
	if err != nil {
		return nil, err
	}
	f = f.RenameColumns(warehouse.NormalizeIdentifier)

	col := "folio_fiscal"
	if !f.HasColumn(col) {
		col = ""
		for _, c := range f.Columns {
			if strings.Contains(c, "folio") && strings.Contains(c, "fiscal") {
				col = c
				break
			}
		}
		if col == "" {
			return nil, fmt.Errorf("no folio_fiscal column (have %v)", f.Columns)
		}
	}

	var out []string
	for _, r := range f.Rows {
		folio := strings.TrimSpace(records.CellString(r[col]))
		switch strings.ToLower(folio) {
		case "", "nan", "nat", "none", "null":
			continue
		}
		out = append(out, folio)
	}
	return out, nil
}

// reportPairing logs the xlsx/pdf pairing health per prefix. Advisory: a
// missing pdf does not block ingestion of its xlsx.
func reportPairing(pdfs, xlsxs map[string][]string, unprefixed []string) {
	all := map[string]bool{}
	for p := range pdfs {
		all[p] = true
	}
	for p := range xlsxs {
		all[p] = true
	}
	ordered := make([]string, 0, len(all))
	for p := range all {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)
	for _, p := range ordered {
		np, nx := len(pdfs[p]), len(xlsxs[p])
		switch {
		case np == 0:
			log.Printf("payments: prefix %q: missing pdf (xlsx=%d)", p, nx)
		case nx == 0:
			log.Printf("payments: prefix %q: missing xlsx (pdf=%d)", p, np)
		case np > 1 || nx > 1:
			log.Printf("payments: prefix %q: extra attachments (pdf=%d xlsx=%d)", p, np, nx)
		}
	}
	for _, f := range unprefixed {
		log.Printf("payments: unprefixed file ignored: %s", f)
	}
}
