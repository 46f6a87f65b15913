// Package fileindex discovers timestamped spreadsheet exports and clusters
// them into processing batches.
//
// Upstream download sessions stamp every file with a YYYY-MM-DD-HH prefix, but
// each portal is scraped independently, so the members of one logical session
// rarely share the exact hour. Grouping therefore sorts every discovered file
// by its embedded timestamp and partitions into runs where each member is
// within BatchWindow of the run's FIRST file (the anchor), not its immediate
// predecessor. That keeps batches anchored to their earliest member's clock
// and makes the partition independent of discovery order.
package fileindex

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Category identifies which upstream export a file belongs to.
type Category string

const (
	Accounts  Category = "accounts"  // treasury/accounts records (SAGI)
	Invoices  Category = "invoices"  // fiscal invoices (FACTURAS)
	Orders    Category = "orders"    // purchase orders (CAMUNDA)
	Logistics Category = "logistics" // delivery/logistics records (PAQ)
)

// RequiredCategories are the members a batch must have to be processed.
// Logistics is advisory: a batch without it still integrates, with an empty
// logistics record set.
var RequiredCategories = []Category{Orders, Invoices, Accounts}

// BatchWindow is the maximum distance between a batch's anchor timestamp and
// any later member. Download sessions take well under two hours end to end.
const BatchWindow = 2 * time.Hour

// SourceFile is one discovered export. Immutable after discovery.
type SourceFile struct {
	Category  Category
	Path      string
	Timestamp time.Time // date+hour embedded in the filename
}

// Batch is a cluster of files produced by (what is believed to be) one
// download session.
type Batch struct {
	GroupID string
	Anchor  time.Time
	Members map[Category]SourceFile
}

// Complete reports whether every required category has a member.
func (b Batch) Complete() bool {
	for _, c := range RequiredCategories {
		if _, ok := b.Members[c]; !ok {
			return false
		}
	}
	return true
}

// ParseTimestamp extracts the YYYY-MM-DD-HH prefix from a filename. The hour
// component may carry a trailing label joined by '_' or ' ' (e.g.
// "2025-08-25-13_PAQ_IMSS.xlsx"); only its leading digits count.
func ParseTimestamp(filename string) (time.Time, bool) {
	parts := strings.SplitN(filepath.Base(filename), "-", 5)
	if len(parts) < 4 {
		return time.Time{}, false
	}
	hour := parts[3]
	if i := strings.IndexAny(hour, "_ ."); i >= 0 {
		hour = hour[:i]
	}
	digits := strings.Builder{}
	for _, r := range hour {
		if r < '0' || r > '9' {
			break
		}
		digits.WriteRune(r)
	}
	hour = digits.String()
	if hour == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-1-2-15", strings.Join([]string{parts[0], parts[1], parts[2], hour}, "-"))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Scan walks each category directory and returns every .xlsx file whose name
// carries a parseable timestamp prefix. Files without one are skipped
// silently; they are not part of the batch protocol. A missing directory is
// logged and treated as empty.
func Scan(dirs map[Category]string) ([]SourceFile, error) {
	var out []SourceFile
	for cat, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				log.Printf("fileindex: directory missing for %s: %s", cat, dir)
				continue
			}
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if strings.HasPrefix(name, "~") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
				continue
			}
			ts, ok := ParseTimestamp(name)
			if !ok {
				continue
			}
			out = append(out, SourceFile{Category: cat, Path: filepath.Join(dir, name), Timestamp: ts})
		}
	}
	return out, nil
}
