package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/aouyang1/go-moodarima/config"
	"github.com/aouyang1/go-moodarima/series"
)

// runImport copies the csv cohort into a sqlite or mysql table
func runImport(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("moodarima import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	dataDir := fs.String("data", "", "directory of per patient csv files")
	driver := fs.String("driver", series.DriverSQLite, "sql driver, sqlite or mysql")
	dsn := fs.String("dsn", "", "data source name of the target database")
	table := fs.String("table", "", "target table")
	first := fs.Int("first", -1, "first patient index, defaults to experiment.first_patient")
	last := fs.Int("last", -1, "last patient index, defaults to experiment.last_patient")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dsn == "" {
		fmt.Fprintln(stderr, "import requires -dsn")
		fs.Usage()
		return 2
	}

	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	cfg, err := config.Decode(v)
	if err != nil {
		fmt.Fprintf(stderr, "failed to decode configuration: %v\n", err)
		return 1
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *table != "" {
		cfg.Data.Table = *table
	}
	if *first < 0 {
		*first = cfg.Experiment.FirstPatient
	}
	if *last < 0 {
		*last = cfg.Experiment.LastPatient
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	src := series.NewCSVProvider(cfg.Data.Dir)
	src.Pattern = cfg.Data.Pattern

	db, err := series.OpenSQL(*driver, *dsn)
	if err != nil {
		fmt.Fprintf(stderr, "moodarima import: %v\n", err)
		return 1
	}
	defer db.Close()

	dst, err := series.NewSQLProvider(db, cfg.Data.Table)
	if err != nil {
		fmt.Fprintf(stderr, "moodarima import: %v\n", err)
		return 1
	}

	res, err := series.ImportCSV(ctx, src, dst, *first, *last)
	if err != nil {
		logger.Error("import failed", "error", err.Error())
		fmt.Fprintf(stderr, "moodarima import: %v\n", err)
		return 1
	}
	for _, patient := range res.Skipped {
		logger.Warn("no data for patient", "patient", series.PatientID(patient))
	}
	fmt.Fprintf(stdout, "imported %d patients into %s, %d without data\n", len(res.Imported), dst.Table, len(res.Skipped))
	return 0
}
