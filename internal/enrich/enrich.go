// Package enrich implements the generic many-to-one left-join used to pull
// invoice, payment-status and penalty columns onto order records.
//
// The engine is deliberately forgiving about schemas: source exports evolve,
// and a missing column must degrade to "this join contributed nothing this
// run", not abort the batch. The only hard error is a malformed key spec,
// which is a configuration bug.
package enrich

import (
	"fmt"
	"log"
	"strings"

	"integrador/pkg/records"
)

// Sentinel is written into every return column of an unmatched primary row.
// Never nil: a sentinel means "joined, absent upstream"; nil would be
// indistinguishable from "not yet joined".
const Sentinel = "no localizado"

// KeySpec maps primary key columns to secondary key columns (same arity) and
// names the secondary columns to pull across.
type KeySpec struct {
	Left   []string `json:"left"`
	Right  []string `json:"right"`
	Return []string `json:"return"`
}

// SpecError is a configuration-level fault in a KeySpec. Fatal, never retried.
type SpecError struct{ msg string }

func (e *SpecError) Error() string { return e.msg }

// Stats reports join diagnostics. Advisory only.
type Stats struct {
	Matched   int
	Unmatched int
}

// Enrich left-joins primary to secondary on spec and returns primary extended
// with spec.Return columns.
//
// Behavior:
//   - len(Left) != len(Right) is a *SpecError.
//   - Any declared key or return column absent from its frame: the exact
//     missing names are logged and primary is returned unchanged (no-op).
//   - secondary is grouped by its key columns; each return column aggregates
//     the group's values as a comma-separated string, so one-to-many matches
//     lose nothing.
//   - Unmatched primary rows get Sentinel in every return column.
//   - A return column colliding with an existing primary column is written
//     under "<name>_right" instead.
func Enrich(primary, secondary records.Frame, spec KeySpec) (records.Frame, Stats, error) {
	if len(spec.Left) != len(spec.Right) {
		return primary, Stats{}, &SpecError{fmt.Sprintf(
			"enrich: key arity mismatch: left=%v right=%v", spec.Left, spec.Right)}
	}
	if len(spec.Return) == 0 {
		log.Printf("enrich: no return columns declared for keys %v; join skipped", spec.Left)
		return primary, Stats{}, nil
	}

	if missing := primary.Missing(spec.Left...); missing != nil {
		log.Printf("enrich: columns missing in primary: %s; join skipped", strings.Join(missing, ", "))
		return primary, Stats{}, nil
	}
	if missing := secondary.Missing(spec.Right...); missing != nil {
		log.Printf("enrich: key columns missing in secondary: %s; join skipped", strings.Join(missing, ", "))
		return primary, Stats{}, nil
	}
	if missing := secondary.Missing(spec.Return...); missing != nil {
		log.Printf("enrich: return columns missing in secondary: %s; join skipped", strings.Join(missing, ", "))
		return primary, Stats{}, nil
	}

	// Group secondary by key, comma-aggregating each return column.
	type group map[string][]string // return column -> values in row order
	index := map[string]group{}
	for _, r := range secondary.Rows {
		k := records.Key(r, spec.Right)
		g, ok := index[k]
		if !ok {
			g = group{}
			index[k] = g
		}
		for _, col := range spec.Return {
			g[col] = append(g[col], records.CellString(r[col]))
		}
	}

	// Destination column name per return column, avoiding collisions with
	// primary's own columns.
	dest := make(map[string]string, len(spec.Return))
	for _, col := range spec.Return {
		name := col
		if primary.HasColumn(name) {
			name = col + "_right"
		}
		dest[col] = name
	}

	out := primary.Clone()
	for _, col := range spec.Return {
		out.AddColumn(dest[col])
	}
	var st Stats
	for _, r := range out.Rows {
		g, ok := index[records.Key(r, spec.Left)]
		if !ok {
			st.Unmatched++
			for _, col := range spec.Return {
				r[dest[col]] = Sentinel
			}
			continue
		}
		st.Matched++
		for _, col := range spec.Return {
			r[dest[col]] = strings.Join(g[col], ",")
		}
	}
	log.Printf("enrich: keys=%v matched=%d unmatched=%d", spec.Left, st.Matched, st.Unmatched)
	return out, st, nil
}
