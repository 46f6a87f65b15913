package xlsxio

import (
	"fmt"
	"log"
	"sort"

	"github.com/xuri/excelize/v2"

	"integrador/pkg/records"
)

// Source describes one spreadsheet feeding a concatenated record set: the
// workbook, the sheet, and the column names expected in its header. The
// header's row position is unknown; it is discovered by content.
type Source struct {
	Path    string   `json:"path"`
	Sheet   string   `json:"sheet"`
	Columns []string `json:"columns"`
}

// headerScanRows is how deep the header search goes. Historical exports have
// been observed with up to ten banner rows above the real header.
const headerScanRows = 11

// LoadAndConcat loads every source, finds each one's header row by content,
// restricts it to the expected columns, and concatenates everything by column
// POSITION. Exact header text drifts across historical files (accents,
// capitalization, double spaces), so names are matched folded, rows are
// stacked positionally, and the first loaded file's actual header names are
// restored on the result.
//
// Sources are processed in name order for determinism. A source whose header
// cannot be located, or that fails to read, is logged and skipped; it does not
// abort the rest.
func LoadAndConcat(sources map[string]Source) records.Frame {
	names := make([]string, 0, len(sources))
	for n := range sources {
		names = append(names, n)
	}
	sort.Strings(names)

	var out records.Frame
	var standard []string // positional col_0.. names
	for _, name := range names {
		src := sources[name]
		if src.Path == "" || src.Sheet == "" {
			log.Printf("xlsxio: skipping %s: missing path or sheet", name)
			continue
		}
		fr, err := loadWithHeaderDiscovery(src)
		if err != nil {
			log.Printf("xlsxio: skipping %s: %v", name, err)
			continue
		}
		log.Printf("xlsxio: %s: %d rows, %d cols from %s!%s", name, len(fr.Rows), len(fr.Columns), src.Path, src.Sheet)
		if standard == nil {
			standard = make([]string, len(fr.Columns))
			for i := range fr.Columns {
				standard[i] = fmt.Sprintf("col_%d", i)
			}
			out.Columns = append([]string(nil), fr.Columns...)
		}
		// Re-map this file's columns to positional identifiers, then append
		// under the first file's names.
		for _, r := range fr.Rows {
			nr := make(records.Record, len(out.Columns))
			for i, c := range fr.Columns {
				if i >= len(out.Columns) {
					break
				}
				if v, ok := r[c]; ok {
					nr[out.Columns[i]] = v
				}
			}
			out.Append(nr)
		}
	}
	if out.Columns == nil {
		log.Printf("xlsxio: no sources loaded")
	}
	return out
}

// loadWithHeaderDiscovery scans the first headerScanRows rows for one that
// contains every expected column (folded comparison), then returns the frame
// restricted to the expected columns in their expected order.
func loadWithHeaderDiscovery(src Source) (records.Frame, error) {
	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return records.Frame{}, fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(src.Sheet)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read %s!%s: %w", src.Path, src.Sheet, err)
	}

	headerRow := -1
	limit := headerScanRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		if rowHasAll(rows[i], src.Columns) {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return records.Frame{}, fmt.Errorf("no row in first %d contains all of %v", headerScanRows, src.Columns)
	}

	fr := frameFromRows(rows, headerRow)
	// Restrict to the expected columns, folded-matched, keeping the sheet's
	// actual header text as the column names.
	var actual []string
	for _, want := range src.Columns {
		for _, have := range fr.Columns {
			if Fold(have) == Fold(want) {
				actual = append(actual, have)
				break
			}
		}
	}
	return fr.Select(actual...), nil
}

func rowHasAll(row []string, want []string) bool {
	have := make(map[string]bool, len(row))
	for _, c := range row {
		have[Fold(c)] = true
	}
	for _, w := range want {
		if !have[Fold(w)] {
			return false
		}
	}
	return true
}
