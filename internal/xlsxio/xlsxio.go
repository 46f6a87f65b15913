// Package xlsxio reads and writes the xlsx artifacts the pipeline lives on.
//
// All cell values surface as strings (excelize's formatted values); numeric
// and date interpretation is explicit and happens downstream via the parse
// package. Header rows are normalized on read: whitespace collapsed, unnamed
// filler columns dropped.
package xlsxio

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"integrador/pkg/records"
)

// ReadSheet loads the named sheet into a frame. Row 0 is the header.
func ReadSheet(path, sheet string) (records.Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return records.Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read %s!%s: %w", path, sheet, err)
	}
	return frameFromRows(rows, 0), nil
}

// ReadFirstSheet loads the workbook's first sheet.
func ReadFirstSheet(path string) (records.Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return records.Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return records.Frame{}, fmt.Errorf("read %s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return records.Frame{}, fmt.Errorf("read %s!%s: %w", path, sheets[0], err)
	}
	return frameFromRows(rows, 0), nil
}

// ReadSheetAt loads sheet using headerRow (0-based) as the header, ignoring
// everything above it. Used when exports bury their header under banner rows.
func ReadSheetAt(path, sheet string, headerRow int) (records.Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return records.Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read %s!%s: %w", path, sheet, err)
	}
	if headerRow >= len(rows) {
		return records.Frame{}, fmt.Errorf("read %s!%s: header row %d beyond sheet end", path, sheet, headerRow)
	}
	return frameFromRows(rows, headerRow), nil
}

// FindHeaderRow scans the first sheet's leading scanRows rows for one whose
// cell matches pattern, returning the sheet name and the 0-based row index.
// ok is false when no row matches.
func FindHeaderRow(path string, pattern *regexp.Regexp, scanRows int) (sheet string, row int, ok bool, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", 0, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", 0, false, fmt.Errorf("read %s: workbook has no sheets", path)
	}
	sheet = sheets[0]
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", 0, false, fmt.Errorf("read %s!%s: %w", path, sheet, err)
	}
	for i, r := range rows {
		if i >= scanRows {
			break
		}
		for _, cell := range r {
			if pattern.MatchString(strings.TrimSpace(cell)) {
				return sheet, i, true, nil
			}
		}
	}
	return sheet, 0, false, nil
}

// frameFromRows converts raw sheet rows to a frame. Header cells are
// whitespace-collapsed; empty headers become positional "Unnamed: N" names and
// are then dropped along with their cells, matching how upstream exports pad
// sheets with filler columns. Cells beyond the header width are ignored;
// missing trailing cells read as nil.
func frameFromRows(rows [][]string, headerRow int) records.Frame {
	if headerRow >= len(rows) {
		return records.Frame{}
	}
	header := rows[headerRow]
	var cols []string
	var keep []int
	for i, h := range header {
		name := strings.Join(strings.Fields(h), " ")
		if name == "" || strings.HasPrefix(name, "Unnamed") {
			continue
		}
		cols = append(cols, name)
		keep = append(keep, i)
	}
	out := records.Frame{Columns: cols}
	for _, row := range rows[headerRow+1:] {
		empty := true
		r := make(records.Record, len(cols))
		for j, i := range keep {
			if i < len(row) && row[i] != "" {
				r[cols[j]] = row[i]
				empty = false
			}
		}
		if !empty {
			out.Append(r)
		}
	}
	return out
}

// Sheet pairs a sheet name with its contents for workbook writing.
type Sheet struct {
	Name  string
	Frame records.Frame
}

// WriteWorkbook writes sheets to path as one workbook. Sheets with empty
// frames are omitted entirely rather than written blank. Writing zero
// non-empty sheets is an error: a workbook needs at least one sheet.
func WriteWorkbook(path string, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()
	wrote := 0
	for _, s := range sheets {
		if s.Frame.Empty() {
			continue
		}
		if wrote == 0 {
			// Reuse the default sheet for the first payload.
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := writeFrame(f, s.Name, s.Frame); err != nil {
			return fmt.Errorf("write %s!%s: %w", path, s.Name, err)
		}
		wrote++
	}
	if wrote == 0 {
		return fmt.Errorf("write %s: no non-empty sheets", path)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeFrame(f *excelize.File, sheet string, fr records.Frame) error {
	header := make([]any, len(fr.Columns))
	for i, c := range fr.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range fr.Rows {
		row := make([]any, len(fr.Columns))
		for j, c := range fr.Columns {
			row[j] = r[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
