// Command moodarima backtests ARIMA(k,1,0) one step ahead mood forecasts over a patient cohort and
// prints the cohort mean squared error with its confidence interval for every lag order.
//
// Usage:
//
//	moodarima [flags]
//	moodarima import -dsn moods.db [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aouyang1/go-moodarima"
	"github.com/aouyang1/go-moodarima/config"
	"github.com/aouyang1/go-moodarima/metrics"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

var errUnknownProfile = errors.New("unknown profile mode")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Subcommand dispatch (before flag parsing).
	if len(args) > 0 && args[0] == "import" {
		return runImport(ctx, args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("moodarima", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	dataDir := fs.String("data", "", "directory of per patient csv files")
	lags := fs.String("lags", "", "comma separated lag orders, e.g. 1,3,5")
	mode := fs.String("mode", "", "evaluation window, validation or test")
	workers := fs.Int("workers", 0, "number of patients evaluated concurrently")
	policy := fs.String("policy", "", "fit failure policy, abort, skip-step or skip-patient")
	jsonPath := fs.String("json", "", "write the full report as json to this path")
	plotPath := fs.String("plot", "", "write an html chart of the report to this path")
	metricsPath := fs.String("metrics", "", "write prometheus metrics in textfile format to this path")
	profileMode := fs.String("profile", "", "write a cpu or mem profile to the working directory")
	table := fs.Bool("table", false, "print per patient tables")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	flagKeys := map[string]string{
		"data":    "data.dir",
		"lags":    "experiment.lags",
		"mode":    "experiment.mode",
		"workers": "experiment.workers",
		"policy":  "backtest.failure_policy",
		"json":    "report.json",
		"plot":    "report.plot",
		"metrics": "report.metrics",
	}
	flagValues := map[string]any{
		"data":    *dataDir,
		"lags":    *lags,
		"mode":    *mode,
		"workers": *workers,
		"policy":  *policy,
		"json":    *jsonPath,
		"plot":    *plotPath,
		"metrics": *metricsPath,
	}
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, flagValues[f.Name])
		}
	})

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	default:
		fmt.Fprintf(stderr, "%q, %v\n", *profileMode, errUnknownProfile)
		return 2
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	if err := experiment(ctx, v, logger, stdout, *table); err != nil {
		logger.Error("experiment failed", "error", err.Error())
		fmt.Fprintf(stderr, "moodarima: %v\n", err)
		return 1
	}
	return 0
}

func experiment(ctx context.Context, v *viper.Viper, logger *slog.Logger, stdout io.Writer, table bool) error {
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	opt, err := cfg.Options()
	if err != nil {
		return err
	}

	provider, closeProvider, err := config.OpenProvider(cfg.Data)
	if err != nil {
		return fmt.Errorf("unable to open %s data source, %w", cfg.Data.Source, err)
	}
	defer closeProvider()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	d, err := moodarima.New(provider, nil, opt, moodarima.WithLogger(logger), moodarima.WithMetrics(m))
	if err != nil {
		return err
	}

	report, runErr := d.Run(ctx)
	if cfg.Report.Metrics != "" {
		if err := metrics.WriteTextfile(cfg.Report.Metrics, reg); err != nil {
			logger.Warn("unable to write metrics", "path", cfg.Report.Metrics, "error", err.Error())
		}
	}
	if runErr != nil {
		return runErr
	}

	if err := report.WriteText(stdout); err != nil {
		return err
	}
	if table {
		for _, res := range report.Results {
			if err := res.TablePrint(stdout, "", "  "); err != nil {
				return err
			}
		}
	}

	if cfg.Report.JSON != "" {
		if err := writeJSON(cfg.Report.JSON, report); err != nil {
			return err
		}
	}
	if cfg.Report.Plot != "" {
		if err := moodarima.PlotReport(cfg.Report.Plot, report); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, report *moodarima.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create report file, %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
