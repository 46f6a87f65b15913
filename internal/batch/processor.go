// Package batch runs one discovered file cluster through the integration
// pipeline: load the member workbooks, clean them, enrich orders from the
// other categories, and write the merged workbook unless an identical run
// already produced it.
package batch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"integrador/internal/cleaner"
	"integrador/internal/enrich"
	"integrador/internal/fileindex"
	"integrador/internal/ledger"
	"integrador/internal/metrics"
	"integrador/internal/parse"
	"integrador/internal/xlsxio"
	"integrador/pkg/records"
)

// State is where a batch ended up in the pipeline.
type State string

const (
	StateDiscovered       State = "discovered"
	StateLoaded           State = "loaded"
	StateCleaned          State = "cleaned"
	StateEnriched         State = "enriched"
	StateOutputComputed   State = "output_computed"
	StateWritten          State = "written"
	StateSkippedUnchanged State = "skipped_unchanged"
)

// LedgerTolerance absorbs filesystem timestamp truncation when comparing a
// file's modification time against its ledger entry. Anything beyond it is a
// real change.
const LedgerTolerance = time.Second

// Column names computed or stamped by the processor.
const (
	ColFileDate   = "file_date"
	ColUnitPrice  = "precio_unitario"
	ColQuantity   = "cantidad_solicitada"
	ColPenalty    = "PENA"
	ColPenaltyRef = "OFICIO"
)

// Sheet names of the written workbook, one per category.
const (
	SheetOrders    = "CAMUNDA"
	SheetInvoices  = "FACTURAS"
	SheetAccounts  = "SAGI"
	SheetLogistics = "PAQ"
)

// Processor integrates complete batches. OutputDir receives the merged
// workbooks; Penalties points at the long-lived penalty schedules, which are
// not part of any batch and are reloaded per run.
type Processor struct {
	OutputDir string
	Ledger    ledger.Store
	Penalties map[string]xlsxio.Source
}

// Result reports what Process did with a batch.
type Result struct {
	State      State
	OutputPath string
	Orders     records.Frame // enriched orders, populated once enrichment succeeds, also on skip
}

// OutputPath is the deterministic artifact path for a batch anchor.
func (p *Processor) OutputPath(anchor time.Time) string {
	return filepath.Join(p.OutputDir, anchor.Format("2006-01-02 15")+"h_integracion.xlsx")
}

// Process runs the state machine for one batch. Only a key-arity
// misconfiguration or a write failure is an error; per-file read problems
// degrade to empty record sets so a bad member cannot sink the whole batch.
func (p *Processor) Process(b fileindex.Batch) (Result, error) {
	res := Result{State: StateDiscovered}

	start := time.Now()
	orders := p.loadMember(b, fileindex.Orders)
	invoices := p.loadMember(b, fileindex.Invoices)
	accounts := p.loadMember(b, fileindex.Accounts)
	logistics := p.loadMember(b, fileindex.Logistics)
	res.State = StateLoaded
	metrics.RecordStep("load", nil, time.Since(start))

	start = time.Now()
	computeImporte(&orders)
	stampFileDate(&orders, b.Anchor)
	invoices = cleaner.Invoices(invoices, orders)
	accounts = cleaner.Accounts(accounts, invoices)
	penalties := xlsxio.LoadAndConcat(p.Penalties)
	res.State = StateCleaned
	metrics.RecordStep("clean", nil, time.Since(start))

	start = time.Now()
	enriched, err := p.enrichOrders(orders, invoices, accounts, penalties)
	metrics.RecordStep("enrich", err, time.Since(start))
	if err != nil {
		metrics.RecordBatch("failed")
		return res, err
	}
	res.State = StateEnriched
	res.Orders = enriched

	res.OutputPath = p.OutputPath(b.Anchor)
	res.State = StateOutputComputed
	if p.unchanged(res.OutputPath) {
		log.Printf("batch: %s unchanged, skipping %s", b.GroupID, filepath.Base(res.OutputPath))
		res.State = StateSkippedUnchanged
		metrics.RecordBatch("skipped")
		return res, nil
	}

	start = time.Now()
	err = p.write(res.OutputPath, enriched, invoices, accounts, logistics)
	metrics.RecordStep("write", err, time.Since(start))
	if err != nil {
		metrics.RecordBatch("failed")
		return res, fmt.Errorf("batch %s: %w", b.GroupID, err)
	}
	res.State = StateWritten
	metrics.RecordRows("integrated", int64(len(enriched.Rows)))
	metrics.RecordBatch("written")
	log.Printf("batch: %s written to %s (%d orders)", b.GroupID, filepath.Base(res.OutputPath), len(enriched.Rows))
	return res, nil
}

// loadMember reads the first sheet of the batch's file for cat. Absent or
// unreadable members degrade to an empty frame.
func (p *Processor) loadMember(b fileindex.Batch, cat fileindex.Category) records.Frame {
	m, ok := b.Members[cat]
	if !ok {
		return records.Frame{}
	}
	f, err := xlsxio.ReadFirstSheet(m.Path)
	if err != nil {
		log.Printf("batch: read %s member %s: %v (proceeding empty)", cat, filepath.Base(m.Path), err)
		return records.Frame{}
	}
	return f
}

// computeImporte derives Importe from unit price and requested quantity.
// Either factor failing to parse leaves the product missing, not zero.
func computeImporte(orders *records.Frame) {
	if missing := orders.Missing(ColUnitPrice, ColQuantity); missing != nil {
		log.Printf("batch: cannot compute %s, columns missing: %v", cleaner.ColOrderImporte, missing)
		return
	}
	orders.AddColumn(cleaner.ColOrderImporte)
	for _, r := range orders.Rows {
		price, okP := parse.Numeric(r[ColUnitPrice])
		qty, okQ := parse.Numeric(r[ColQuantity])
		if okP && okQ {
			r[cleaner.ColOrderImporte] = price * qty
		} else {
			r[cleaner.ColOrderImporte] = nil
		}
	}
}

// stampFileDate marks every order row with the batch it came from.
func stampFileDate(orders *records.Frame, anchor time.Time) {
	if orders.Empty() {
		return
	}
	orders.AddColumn(ColFileDate)
	for _, r := range orders.Rows {
		r[ColFileDate] = anchor
	}
}

// enrichOrders applies the three joins in sequence. Each is individually
// soft-failing on missing columns; only a key-arity mismatch aborts.
func (p *Processor) enrichOrders(orders, invoices, accounts, penalties records.Frame) (records.Frame, error) {
	out, stats, err := enrich.Enrich(orders, invoices, enrich.KeySpec{
		Left:   []string{cleaner.ColOrderNumber},
		Right:  []string{cleaner.ColReferencia},
		Return: []string{cleaner.ColUUID, cleaner.ColFolio},
	})
	if err != nil {
		return records.Frame{}, fmt.Errorf("orders<-invoices: %w", err)
	}
	log.Printf("batch: orders<-invoices matched=%d unmatched=%d", stats.Matched, stats.Unmatched)

	out, stats, err = enrich.Enrich(out, accounts, enrich.KeySpec{
		Left:   []string{cleaner.ColOrderNumber},
		Right:  []string{cleaner.ColSupplyOrder},
		Return: []string{cleaner.ColInvoiceState},
	})
	if err != nil {
		return records.Frame{}, fmt.Errorf("orders<-accounts: %w", err)
	}
	log.Printf("batch: orders<-accounts matched=%d unmatched=%d", stats.Matched, stats.Unmatched)

	out, stats, err = enrich.Enrich(out, penalties, enrich.KeySpec{
		Left:   []string{cleaner.ColOrderNumber},
		Right:  []string{"ORDEN DE SUMINISTRO"},
		Return: []string{ColPenalty, ColPenaltyRef},
	})
	if err != nil {
		return records.Frame{}, fmt.Errorf("orders<-penalties: %w", err)
	}
	log.Printf("batch: orders<-penalties matched=%d unmatched=%d", stats.Matched, stats.Unmatched)

	// The penalty amount is numeric downstream; unmatched sentinels and
	// malformed cells both read as missing.
	if out.HasColumn(ColPenalty) {
		for _, r := range out.Rows {
			if n, ok := parse.Numeric(r[ColPenalty]); ok {
				r[ColPenalty] = n
			} else {
				r[ColPenalty] = nil
			}
		}
	}
	return out, nil
}

// unchanged reports whether path exists with a modification time matching its
// ledger entry within LedgerTolerance. Checked after output-path computation
// and before the write, never after.
func (p *Processor) unchanged(path string) bool {
	recorded, ok := p.Ledger.Get(path)
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	drift := info.ModTime().Sub(recorded)
	if drift < 0 {
		drift = -drift
	}
	return drift <= LedgerTolerance
}

// write persists the multi-sheet artifact and records its new modification
// time in the ledger.
func (p *Processor) write(path string, orders, invoices, accounts, logistics records.Frame) error {
	sheets := []xlsxio.Sheet{
		{Name: SheetOrders, Frame: orders},
		{Name: SheetInvoices, Frame: invoices},
		{Name: SheetAccounts, Frame: accounts},
		{Name: SheetLogistics, Frame: logistics},
	}
	if err := xlsxio.WriteWorkbook(path, sheets); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat written artifact: %w", err)
	}
	if err := p.Ledger.Put(path, info.ModTime()); err != nil {
		return fmt.Errorf("ledger update: %w", err)
	}
	return nil
}
