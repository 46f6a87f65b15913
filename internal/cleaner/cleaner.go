// Package cleaner normalizes raw category record sets into analysis-ready
// form before any join runs: cancelled rows out, key whitespace stripped,
// duplicates collapsed, missing cross-references recovered.
//
// Failure policy: a step whose expected column is absent logs a warning and
// returns its input unmodified. The downstream joins hit the same missing
// column and no-op in turn, so a schema drift degrades to incomplete output
// instead of a crashed batch.
package cleaner

import (
	"log"
	"regexp"
	"strings"

	"integrador/internal/enrich"
	"integrador/internal/parse"
	"integrador/pkg/records"
)

// Column names as produced by the upstream exports.
const (
	ColReferencia    = "Referencia"
	ColFactura       = "Factura"
	ColFolio         = "Folio"
	ColUUID          = "UUID"
	ColUUIDState     = "UUID Descripción"
	ColInvoiceTotal  = "Total"
	ColOrderNumber   = "numero_orden_suministro"
	ColOrderImporte  = "Importe"
	ColOrderRemision = "orden_remision"
	ColSupplyOrder   = "Orden de suministro"
	ColInvoiceState  = "Estado de la factura"
	ColFiscalFolio   = "Folio fiscal"
)

const (
	stateCurrent   = "Vigente"
	stateCancelled = "Cancelado"
)

var spaceRun = regexp.MustCompile(`\s+`)

// Invoices returns the cleaned invoice set: only current (non-cancelled)
// rows, whitespace stripped from the (Referencia, Factura) natural key,
// duplicates on that key dropped keeping the first occurrence.
//
// If orders is non-empty, each invoice is cross-checked against it on
// (Referencia, Total)↔(numero_orden_suministro, Importe); orphaned invoices
// end up with the join sentinel in orden_remision. Advisory only.
func Invoices(raw, orders records.Frame) records.Frame {
	out := raw
	if !out.HasColumn(ColUUIDState) {
		log.Printf("cleaner: invoices: column %q missing; returning input unmodified", ColUUIDState)
		return out
	}
	filtered := records.Frame{Columns: append([]string(nil), out.Columns...)}
	for _, r := range out.Rows {
		if records.CellString(r[ColUUIDState]) == stateCurrent {
			filtered.Append(r)
		}
	}
	log.Printf("cleaner: invoices: %d current of %d", len(filtered.Rows), len(out.Rows))
	out = filtered

	keys := []string{ColReferencia, ColFactura}
	if missing := out.Missing(keys...); missing != nil {
		log.Printf("cleaner: invoices: key columns missing: %s; skipping key cleanup", strings.Join(missing, ", "))
		return out
	}
	out = out.Clone()
	for _, r := range out.Rows {
		for _, k := range keys {
			r[k] = spaceRun.ReplaceAllString(records.CellString(r[k]), "")
		}
	}
	out = dedupFirst(out, keys)

	if !orders.Empty() {
		out = crossCheckOrders(out, orders)
	}
	return out
}

// crossCheckOrders flags orphaned invoices: each invoice is joined against the
// orders on (Referencia, Total)↔(numero_orden_suministro, Importe) and misses
// get the sentinel in orden_remision. Total is matched as a number, since the
// export formats it as a currency string while Importe is computed. The
// original Total cells are kept in the output. Advisory only.
func crossCheckOrders(invoices, orders records.Frame) records.Frame {
	keyed := invoices.Clone()
	if keyed.HasColumn(ColInvoiceTotal) {
		for _, r := range keyed.Rows {
			if d, ok := parse.Money(r[ColInvoiceTotal]); ok {
				f, _ := d.Float64()
				r[ColInvoiceTotal] = f
			}
		}
	}
	checked, _, err := enrich.Enrich(keyed, orders, enrich.KeySpec{
		Left:   []string{ColReferencia, ColInvoiceTotal},
		Right:  []string{ColOrderNumber, ColOrderImporte},
		Return: []string{ColOrderRemision},
	})
	if err != nil {
		log.Printf("cleaner: invoices: order cross-check failed: %v", err)
		return invoices
	}
	if invoices.HasColumn(ColInvoiceTotal) {
		for i, r := range checked.Rows {
			r[ColInvoiceTotal] = invoices.Rows[i][ColInvoiceTotal]
		}
	}
	return checked
}

// Accounts returns the cleaned treasury/accounts set: cancelled rows dropped,
// missing supply-order references recovered by joining fiscal folio against
// the cleaned invoice set, and the currency-formatted Total normalized to a
// numeric value (unparseable totals become nil).
func Accounts(raw, invoices records.Frame) records.Frame {
	out := raw
	if !out.HasColumn(ColInvoiceState) {
		log.Printf("cleaner: accounts: column %q missing; returning input unmodified", ColInvoiceState)
		return out
	}
	filtered := records.Frame{Columns: append([]string(nil), out.Columns...)}
	for _, r := range out.Rows {
		if records.CellString(r[ColInvoiceState]) != stateCancelled {
			filtered.Append(r)
		}
	}
	log.Printf("cleaner: accounts: %d kept of %d", len(filtered.Rows), len(out.Rows))
	out = filtered.Clone()

	backfillReferences(&out, invoices)

	if out.HasColumn(ColInvoiceTotal) {
		for _, r := range out.Rows {
			if d, ok := parse.Money(r[ColInvoiceTotal]); ok {
				f, _ := d.Float64()
				r[ColInvoiceTotal] = f
			} else {
				r[ColInvoiceTotal] = nil
			}
		}
	} else {
		log.Printf("cleaner: accounts: column %q missing; total left as-is", ColInvoiceTotal)
	}
	return out
}

// backfillReferences recovers the supply-order key for rows that lack it:
// the subset with an empty Orden de suministro is joined on
// Folio fiscal→UUID against the invoices, and every recovered Referencia is
// written back in place for all rows sharing that folio.
func backfillReferences(accounts *records.Frame, invoices records.Frame) {
	if missing := accounts.Missing(ColSupplyOrder, ColFiscalFolio); missing != nil {
		log.Printf("cleaner: accounts: columns missing: %s; skipping reference backfill", strings.Join(missing, ", "))
		return
	}
	blank := records.Frame{Columns: accounts.Columns}
	for _, r := range accounts.Rows {
		if records.CellString(r[ColSupplyOrder]) == "" {
			blank.Append(r)
		}
	}
	if blank.Empty() {
		return
	}
	joined, _, err := enrich.Enrich(blank, invoices, enrich.KeySpec{
		Left:   []string{ColFiscalFolio},
		Right:  []string{ColUUID},
		Return: []string{ColReferencia},
	})
	if err != nil || !joined.HasColumn(ColReferencia) {
		log.Printf("cleaner: accounts: reference backfill join skipped (err=%v)", err)
		return
	}
	recovered := map[string]string{} // folio -> referencia
	for _, r := range joined.Rows {
		ref := records.CellString(r[ColReferencia])
		if ref == "" || ref == enrich.Sentinel {
			continue
		}
		recovered[records.CellString(r[ColFiscalFolio])] = ref
	}
	if len(recovered) == 0 {
		return
	}
	n := 0
	for _, r := range accounts.Rows {
		if ref, ok := recovered[records.CellString(r[ColFiscalFolio])]; ok && records.CellString(r[ColSupplyOrder]) == "" {
			r[ColSupplyOrder] = ref
			n++
		}
	}
	log.Printf("cleaner: accounts: backfilled %d supply-order references", n)
}

// dedupFirst drops duplicate rows on the composite key, keeping the first
// occurrence. Rows are kept in input order.
func dedupFirst(f records.Frame, keys []string) records.Frame {
	out := records.Frame{Columns: f.Columns}
	seen := map[string]bool{}
	for _, r := range f.Rows {
		k := records.Key(r, keys)
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Append(r)
	}
	if dropped := len(f.Rows) - len(out.Rows); dropped > 0 {
		log.Printf("cleaner: dropped %d duplicate rows on %v", dropped, keys)
	}
	return out
}
