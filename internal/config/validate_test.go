package config

import (
	"strings"
	"testing"

	"integrador/internal/xlsxio"
)

func validConfig() Config {
	return Config{
		Job: "test",
		Sources: Sources{
			Orders:    "/a",
			Invoices:  "/b",
			Accounts:  "/c",
			Logistics: "/d",
		},
		Integration: Integration{Dir: "/out"},
		Penalties: map[string]xlsxio.Source{
			"convenio": {Path: "/p.xlsx", Sheet: "PENAS", Columns: []string{"ORDEN DE SUMINISTRO"}},
		},
		Warehouse: Warehouse{Kind: "sqlite", DSN: "file:wh.db", Schema: "imss"},
	}
}

func hasIssue(issues []Issue, severity IssueSeverity, pathFragment string) bool {
	for _, i := range issues {
		if i.Severity == severity && strings.Contains(i.Path, pathFragment) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	for _, i := range Validate(validConfig()) {
		if i.Severity == SeverityError {
			t.Errorf("unexpected error: %v", i)
		}
	}
}

func TestValidateRequiresSourceDirectories(t *testing.T) {
	c := validConfig()
	c.Sources.Orders = ""
	c.Sources.Logistics = ""
	issues := Validate(c)
	if !hasIssue(issues, SeverityError, "sources.orders") {
		t.Error("missing orders dir should be an error")
	}
	if !hasIssue(issues, SeverityWarning, "sources.logistics") {
		t.Error("missing logistics dir should only warn")
	}
}

func TestValidateWarehouse(t *testing.T) {
	c := validConfig()
	c.Warehouse = Warehouse{}
	if !hasIssue(Validate(c), SeverityWarning, "warehouse.kind") {
		t.Error("empty warehouse should warn, not error")
	}

	c.Warehouse = Warehouse{Kind: "oracle", DSN: "x", Schema: "s"}
	if !hasIssue(Validate(c), SeverityWarning, "warehouse.kind") {
		t.Error("unknown kind should warn")
	}

	c.Warehouse = Warehouse{Kind: "postgres"}
	issues := Validate(c)
	if !hasIssue(issues, SeverityError, "warehouse.dsn") || !hasIssue(issues, SeverityError, "warehouse.schema") {
		t.Errorf("kind without dsn/schema should error: %v", issues)
	}
}

func TestValidatePenalties(t *testing.T) {
	c := validConfig()
	c.Penalties["roto"] = xlsxio.Source{Path: "", Sheet: "", Columns: nil}
	issues := Validate(c)
	for _, frag := range []string{"penalties[roto].path", "penalties[roto].sheet", "penalties[roto].columns"} {
		if !hasIssue(issues, SeverityError, frag) {
			t.Errorf("expected error for %s", frag)
		}
	}
}

func TestValidateMetrics(t *testing.T) {
	c := validConfig()
	c.Metrics = Metrics{Backend: "prometheus"}
	if !hasIssue(Validate(c), SeverityError, "metrics.pushgateway_url") {
		t.Error("prometheus without URL should error")
	}
	c.Metrics = Metrics{Backend: "statsd"}
	if !hasIssue(Validate(c), SeverityWarning, "metrics.backend") {
		t.Error("unknown backend should warn")
	}
}
