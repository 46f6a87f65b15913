// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"

	"integrador/internal/xlsxio"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "warehouse.kind",
// "penalties[convenio].path"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static validation of a Config. It does not mutate the
// config; callers decide whether warnings are fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will be labeled with the default job name",
		})
	}

	issues = append(issues, validateSources(c.Sources)...)
	issues = append(issues, validateIntegration(c.Integration)...)
	issues = append(issues, validatePenalties(c.Penalties)...)
	issues = append(issues, validateWarehouse(c.Warehouse)...)
	issues = append(issues, validateMetrics(c.Metrics)...)

	return issues
}

func validateSources(s Sources) []Issue {
	var issues []Issue
	required := []struct {
		path, dir string
	}{
		{"sources.orders", s.Orders},
		{"sources.invoices", s.Invoices},
		{"sources.accounts", s.Accounts},
	}
	for _, r := range required {
		if strings.TrimSpace(r.dir) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     r.path,
				Message:  "directory must not be empty; no batch can ever be complete without it",
			})
		}
	}
	if strings.TrimSpace(s.Logistics) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sources.logistics",
			Message:  "logistics directory is empty; integrated workbooks will have no PAQ sheet",
		})
	}
	return issues
}

func validateIntegration(i Integration) []Issue {
	var issues []Issue
	if strings.TrimSpace(i.Dir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "integration.dir",
			Message:  "integration.dir must not be empty",
		})
	}
	return issues
}

func validatePenalties(p map[string]xlsxio.Source) []Issue {
	var issues []Issue
	for label, src := range p {
		if strings.TrimSpace(src.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("penalties[%s].path", label),
				Message:  "penalty source requires a path",
			})
		}
		if strings.TrimSpace(src.Sheet) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("penalties[%s].sheet", label),
				Message:  "penalty source requires a sheet name",
			})
		}
		if len(src.Columns) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("penalties[%s].columns", label),
				Message:  "penalty source requires the expected column names for header discovery",
			})
		}
	}
	return issues
}

func validateWarehouse(w Warehouse) []Issue {
	var issues []Issue

	if strings.TrimSpace(w.Kind) == "" {
		// The spreadsheet pipeline runs fine without a warehouse; only the
		// feed subcommands need one.
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.kind",
			Message:  "warehouse.kind is empty; feed, payments and invoices subcommands will fail",
		})
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
	}
	if _, ok := known[w.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unknown warehouse kind %q; ensure a matching backend is registered", w.Kind),
		})
	}
	if strings.TrimSpace(w.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.dsn",
			Message:  "warehouse.dsn must not be empty when a kind is set",
		})
	}
	if strings.TrimSpace(w.Schema) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.schema",
			Message:  "warehouse.schema must not be empty when a kind is set",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "nop":
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires a pushgateway URL",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; falling back to nop", m.Backend),
		})
	}
	return issues
}
