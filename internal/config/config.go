// Package config defines the JSON-serializable configuration model for the
// integration application: where the timestamped exports land, where the
// merged artifacts go, how to reach the warehouse, and which long-lived
// schedules feed the joins.
//
// Decoding is performed by the standard library; no third-party config
// libraries. Field names in Go mirror the JSON structure of the config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"integrador/internal/fileindex"
	"integrador/internal/xlsxio"
)

// Config is the top-level object decoded from the config file.
type Config struct {
	// Job names this deployment; used for metrics labeling.
	Job string `json:"job"`

	// Sources maps each export category to the directory its timestamped
	// files are downloaded into.
	Sources Sources `json:"sources"`

	// Integration controls the merged-workbook output.
	Integration Integration `json:"integration"`

	// Penalties lists the long-lived penalty schedules concatenated into
	// every run. Keyed by a free-form label used only in logs.
	Penalties map[string]xlsxio.Source `json:"penalties"`

	// Warehouse configures the SQL sink.
	Warehouse Warehouse `json:"warehouse"`

	// Invoices configures CFDI XML extraction.
	Invoices Invoices `json:"invoices"`

	// Payments configures the OAP payment-confirmation feed.
	Payments Payments `json:"payments"`

	// Metrics selects the metrics backend.
	Metrics Metrics `json:"metrics"`
}

// Sources holds one directory per export category.
type Sources struct {
	Orders    string `json:"orders"`
	Invoices  string `json:"invoices"`
	Accounts  string `json:"accounts"`
	Logistics string `json:"logistics"`
}

// Dirs returns the category→directory mapping consumed by the file index.
// Empty entries are omitted; a category without a directory simply never
// contributes files.
func (s Sources) Dirs() map[fileindex.Category]string {
	out := map[fileindex.Category]string{}
	for cat, dir := range map[fileindex.Category]string{
		fileindex.Orders:    s.Orders,
		fileindex.Invoices:  s.Invoices,
		fileindex.Accounts:  s.Accounts,
		fileindex.Logistics: s.Logistics,
	} {
		if dir != "" {
			out[cat] = dir
		}
	}
	return out
}

// Integration controls where merged workbooks are written and where the
// processed-batch ledger lives.
type Integration struct {
	// Dir receives the "<anchor>h_integracion.xlsx" artifacts.
	Dir string `json:"dir"`

	// LedgerPath is the JSON file recording each artifact's modification
	// time for the skip-if-unchanged check. Empty means
	// "<dir>/processed_batches.json"; see ResolvedLedgerPath.
	LedgerPath string `json:"ledger_path"`
}

// ResolvedLedgerPath applies the default ledger location.
func (i Integration) ResolvedLedgerPath() string {
	if i.LedgerPath != "" {
		return i.LedgerPath
	}
	return filepath.Join(i.Dir, "processed_batches.json")
}

// Warehouse configures the SQL sink.
type Warehouse struct {
	// Kind selects the registered backend: "postgres" or "sqlite".
	Kind string `json:"kind"`

	// DSN is the backend connection string.
	DSN string `json:"dsn"`

	// Schema is the warehouse schema holding the integration tables.
	Schema string `json:"schema"`
}

// Invoices configures CFDI XML extraction.
type Invoices struct {
	// Folders are walked recursively for .xml comprobantes.
	Folders []string `json:"folders"`

	// Database is the workbook accumulating extracted rows.
	Database string `json:"database"`

	// Workers sizes the parse pool; 0 means the default.
	Workers int `json:"workers"`
}

// Payments configures the OAP payment feed.
type Payments struct {
	// EmailDir holds the prefixed xlsx/pdf mail drops.
	EmailDir string `json:"email_dir"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "nop" (default) or "prometheus".
	Backend string `json:"backend"`

	// PushgatewayURL is required for the "prometheus" backend.
	PushgatewayURL string `json:"pushgateway_url"`
}

// Load reads and decodes the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return c, nil
}
