// Command integrador drives the IMSS supply-order integration pipeline. It
// loads the JSON config, optionally initializes a metrics backend, and runs
// one of the subcommands:
//
//	integrate   group the downloaded exports into batches and write the
//	            merged workbook for every complete batch (the default)
//	feed        load the accumulated integration workbooks into the
//	            warehouse history table
//	payments    ingest OAP payment confirmations into the warehouse
//	invoices    extract CFDI XML data into the invoice workbook
//
// The -validate flag checks the configuration and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"integrador/internal/batch"
	"integrador/internal/cfdi"
	"integrador/internal/config"
	"integrador/internal/feeder"
	"integrador/internal/fileindex"
	"integrador/internal/ledger"
	"integrador/internal/metrics"
	"integrador/internal/metrics/prompush"
	"integrador/internal/payments"
	"integrador/internal/warehouse"

	// register all warehouse backends; the config selects which to use.
	_ "integrador/internal/warehouse/all"
)

func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "config.json", "config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (prometheus, none; empty = config)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides config and env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fatalf("configuration is invalid: %v", cfgPath)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		return
	}

	setupMetrics(cfg, metricsBackendFlg, pushGatewayURLFlg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	cmd := "integrate"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	ctx := context.Background()
	start := time.Now()
	switch cmd {
	case "integrate":
		err = runIntegrate(cfg)
	case "feed":
		err = withWarehouse(ctx, cfg, func(repo warehouse.Repository) error {
			_, err := feeder.Feed(ctx, repo, cfg.Integration.Dir, cfg.Warehouse.Schema)
			return err
		})
	case "payments":
		err = withWarehouse(ctx, cfg, func(repo warehouse.Repository) error {
			_, err := payments.Feed(ctx, repo, cfg.Payments.EmailDir, cfg.Warehouse.Schema)
			return err
		})
	case "invoices":
		_, _, err = cfdi.Extract(ctx, cfg.Invoices.Folders, cfg.Invoices.Database, cfg.Invoices.Workers)
	default:
		fatalf("unknown subcommand %q (want integrate, feed, payments or invoices)", cmd)
	}
	if err != nil {
		fatalf("%s: %v", cmd, err)
	}
	log.Printf("%s finished in %s", cmd, time.Since(start).Round(time.Millisecond))
}

// runIntegrate processes every complete batch found under the source
// directories. A failing batch is logged and does not stop the others; the
// command fails if any batch failed.
func runIntegrate(cfg config.Config) error {
	files, err := fileindex.Scan(cfg.Sources.Dirs())
	if err != nil {
		return err
	}
	grouping := fileindex.Group(files)
	log.Printf("integrate: %d groups found, %d complete", len(grouping.All), len(grouping.Complete))
	if len(grouping.Complete) == 0 {
		return nil
	}

	store, err := ledger.OpenFile(cfg.Integration.ResolvedLedgerPath())
	if err != nil {
		return err
	}
	proc := &batch.Processor{
		OutputDir: cfg.Integration.Dir,
		Ledger:    store,
		Penalties: cfg.Penalties,
	}

	failed := 0
	for _, b := range grouping.Complete {
		if _, err := proc.Process(b); err != nil {
			log.Printf("integrate: batch %s failed: %v", b.GroupID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed", failed, len(grouping.Complete))
	}
	return nil
}

func withWarehouse(ctx context.Context, cfg config.Config, fn func(warehouse.Repository) error) error {
	if cfg.Warehouse.Kind == "" {
		return fmt.Errorf("no warehouse configured")
	}
	repo, err := warehouse.Open(ctx, cfg.Warehouse.Kind, cfg.Warehouse.DSN)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}

// setupMetrics decides the backend: flag → config → env. The nop backend
// stays in place unless a pushgateway is reachable to configure.
func setupMetrics(cfg config.Config, backendFlag, gwFlag string, verbose bool) {
	backendName := backendFlag
	if backendName == "" {
		backendName = cfg.Metrics.Backend
	}
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "prometheus", "pushgateway":
		gwURL := gwFlag
		if gwURL == "" {
			gwURL = cfg.Metrics.PushgatewayURL
		}
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		jobName := cfg.Job
		if jobName == "" {
			jobName = "integrador"
		}
		b, err := prompush.New(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v backend=%v job=%v", gwURL, backendName, jobName)
		metrics.SetBackend(b)
	case "", "none", "nop":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
