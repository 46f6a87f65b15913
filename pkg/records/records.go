// Package records defines the row and table types shared by the whole
// pipeline.
//
// Source exports arrive with inconsistent, evolving column sets, so a Record
// is a plain name→value map. A Frame pairs a slice of Records with an ordered
// column list: the order is what survives into written workbooks and into
// position-based concatenation, where header text cannot be trusted across
// historical files.
package records

import "fmt"

// Record is a single row keyed by column name. Values are whatever the reader
// produced: string cells, parsed numerics, time.Time, or nil for missing.
type Record map[string]any

// Frame is an ordered-column, row-oriented table.
type Frame struct {
	Columns []string
	Rows    []Record
}

// NewFrame returns an empty frame with the given column order.
func NewFrame(columns ...string) Frame {
	return Frame{Columns: append([]string(nil), columns...)}
}

// Empty reports whether the frame has no rows.
func (f Frame) Empty() bool { return len(f.Rows) == 0 }

// HasColumn reports whether name is one of the frame's columns.
func (f Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Missing returns the subset of names not present in the frame's columns,
// preserving input order. An empty result means all names are present.
func (f Frame) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !f.HasColumn(n) {
			out = append(out, n)
		}
	}
	return out
}

// AddColumn appends name to the column order if absent. Rows are not touched;
// missing cells read as nil.
func (f *Frame) AddColumn(name string) {
	if !f.HasColumn(name) {
		f.Columns = append(f.Columns, name)
	}
}

// Append adds a row. Columns referenced by the row but unknown to the frame
// are NOT added implicitly; readers decide the column set.
func (f *Frame) Append(r Record) { f.Rows = append(f.Rows, r) }

// Clone returns a deep copy: new column slice, new row slice, new row maps.
// Cell values are shared (they are treated as immutable by the pipeline).
func (f Frame) Clone() Frame {
	out := Frame{Columns: append([]string(nil), f.Columns...)}
	out.Rows = make([]Record, 0, len(f.Rows))
	for _, r := range f.Rows {
		nr := make(Record, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// RenameColumns applies rename to every column name and every row key.
// Identical output names collapse: the later column wins the slot order of
// its first occurrence.
func (f Frame) RenameColumns(rename func(string) string) Frame {
	out := Frame{}
	seen := map[string]bool{}
	for _, c := range f.Columns {
		nc := rename(c)
		if !seen[nc] {
			seen[nc] = true
			out.Columns = append(out.Columns, nc)
		}
	}
	out.Rows = make([]Record, 0, len(f.Rows))
	for _, r := range f.Rows {
		nr := make(Record, len(r))
		for k, v := range r {
			nr[rename(k)] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Select returns a frame restricted to the named columns, in the given order.
// Names absent from the frame are skipped entirely.
func (f Frame) Select(names ...string) Frame {
	var keep []string
	for _, n := range names {
		if f.HasColumn(n) {
			keep = append(keep, n)
		}
	}
	out := Frame{Columns: keep}
	out.Rows = make([]Record, 0, len(f.Rows))
	for _, r := range f.Rows {
		nr := make(Record, len(keep))
		for _, c := range keep {
			if v, ok := r[c]; ok {
				nr[c] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// CellString renders a cell for key building and comma aggregation.
// nil renders as the empty string.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Key builds a composite lookup key from the named columns of r, separated by
// an unlikely byte so adjacent fields cannot alias each other.
func Key(r Record, cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "\x1f"
		}
		out += CellString(r[c])
	}
	return out
}
