// Package moodarima runs walk forward ARIMA(k,1,0) backtests over a cohort of patient mood
// series and summarizes the per patient mean squared errors with a confidence interval.
package moodarima

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aouyang1/go-moodarima/arima"
	"github.com/aouyang1/go-moodarima/backtest"
	"github.com/aouyang1/go-moodarima/cohort"
	"github.com/aouyang1/go-moodarima/metrics"
	"github.com/aouyang1/go-moodarima/series"
	"github.com/aouyang1/go-moodarima/split"
	"github.com/aouyang1/go-moodarima/timedataset"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Driver evaluates every configured lag order across the patient cohort
type Driver struct {
	provider  series.Provider
	opt       *Options
	evaluator *backtest.Evaluator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option customizes a Driver
type Option func(*Driver)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMetrics records fits and patient outcomes in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// New creates a Driver reading patients from provider. A nil fitter uses an arima.Model built from
// opt.ARIMA. If no options are provided a default is used.
func New(provider series.Provider, fitter arima.Fitter, opt *Options, opts ...Option) (*Driver, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	opt, err := opt.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid experiment options, %w", err)
	}

	d := &Driver{
		provider: provider,
		opt:      opt,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	if fitter == nil {
		model, err := arima.New(opt.ARIMA)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize arima model, %w", err)
		}
		fitter = model
	}

	d.evaluator, err = backtest.NewEvaluator(fitter, opt.Backtest, backtest.WithFitObserver(d.metrics.ObserveFit))
	if err != nil {
		return nil, fmt.Errorf("unable to initialize evaluator, %w", err)
	}
	return d, nil
}

// Options returns a copy of the validated options
func (d *Driver) Options() Options {
	return *d.opt
}

// Run evaluates every lag order in turn. The first lag that fails ends the run.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Options:   d.opt,
		Results:   make([]*LagResult, 0, len(d.opt.Lags)),
	}
	d.logger.Info("starting run",
		"run_id", report.RunID.String(),
		"lags", d.opt.Lags,
		"mode", string(d.opt.Mode),
		"patients", fmt.Sprintf("%s..%s", series.PatientID(d.opt.FirstPatient), series.PatientID(d.opt.LastPatient)),
		"workers", d.opt.Workers,
	)

	for _, k := range d.opt.Lags {
		res, err := d.RunLag(ctx, k)
		if err != nil {
			d.logger.Error("run failed", "run_id", report.RunID.String(), "lag", k, "error", err.Error())
			return nil, err
		}
		report.Results = append(report.Results, res)
	}

	report.Duration = time.Since(report.StartedAt)
	d.logger.Info("finished run", "run_id", report.RunID.String(), "duration", report.Duration.String())
	return report, nil
}

// RunLag evaluates every patient with ARIMA(k,1,0) on a bounded worker pool and summarizes the
// contributing patients. Patients without data, with an empty window or dropped by the failure
// policy are recorded as skipped. Any other error cancels the remaining patients and fails the lag.
func (d *Driver) RunLag(ctx context.Context, k int) (*LagResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("lag %d, %w", k, backtest.ErrInvalidLag)
	}

	patients := d.opt.Patients()
	results := make([]PatientResult, len(patients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opt.Workers)
	for i, patient := range patients {
		g.Go(func() error {
			res, err := d.evaluatePatient(gctx, k, patient)
			if err != nil {
				d.metrics.ObservePatient(k, string(StatusFailed))
				return err
			}
			d.metrics.ObservePatient(k, string(res.Status))
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lag %d aborted, %w", k, err)
	}

	lr := &LagResult{
		Lag:      k,
		Mode:     d.opt.Mode,
		Patients: results,
	}
	mses := make([]float64, 0, len(results))
	for _, res := range results {
		if res.Status != StatusEvaluated {
			lr.Skipped++
			continue
		}
		mses = append(mses, res.MSE)
	}
	lr.Contributed = len(mses)

	summary, err := cohort.Summarize(mses, d.opt.Cohort)
	if err != nil {
		return nil, fmt.Errorf("unable to summarize lag %d with %d contributing patients, %w", k, lr.Contributed, err)
	}
	lr.Summary = summary

	d.logger.Info("summarized lag",
		"lag", k,
		"contributed", lr.Contributed,
		"skipped", lr.Skipped,
		"mean", summary.Mean,
		"std", summary.Std,
	)
	return lr, nil
}

func (d *Driver) evaluatePatient(ctx context.Context, k, patient int) (PatientResult, error) {
	res := PatientResult{
		Patient: patient,
		ID:      series.PatientID(patient),
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	ds, err := d.provider.Load(ctx, patient)
	if err != nil {
		if errors.Is(err, series.ErrDataUnavailable) {
			return d.skip(k, res, err), nil
		}
		return res, fmt.Errorf("unable to load patient %s, %w", res.ID, err)
	}

	b, err := split.Plan(ds.Len(), d.opt.Split)
	if err != nil {
		return res, fmt.Errorf("unable to plan split for patient %s, %w", res.ID, err)
	}
	window, err := b.Window(d.opt.Mode, ds.Len())
	if err != nil {
		return res, fmt.Errorf("unable to select window for patient %s, %w", res.ID, err)
	}

	d.logger.Debug("evaluating patient",
		"lag", k,
		"patient", res.ID,
		"observations", ds.Len(),
		"window", window.String(),
		"interval", interval(ds),
		"dates", windowDates(ds, window),
	)

	bt, err := d.evaluator.Evaluate(ctx, ds, k, window)
	if err != nil {
		switch {
		case errors.Is(err, backtest.ErrEmptyWindow),
			errors.Is(err, backtest.ErrPatientSkipped),
			errors.Is(err, backtest.ErrNoValidSteps),
			errors.Is(err, backtest.ErrInconsistentSeries):
			return d.skip(k, res, err), nil
		default:
			return res, fmt.Errorf("unable to evaluate patient %s, %w", res.ID, err)
		}
	}

	for _, f := range bt.Failures {
		d.logger.Warn("excluded failed step", "lag", k, "patient", res.ID, "index", f.Index, "error", f.Err)
	}

	res.Status = StatusEvaluated
	res.MSE = bt.MSE
	res.Result = bt
	d.logger.Debug("evaluated patient", "lag", k, "patient", res.ID, "mse", bt.MSE, "steps", bt.Evaluated)
	return res, nil
}

func (d *Driver) skip(k int, res PatientResult, err error) PatientResult {
	res.Status = StatusSkipped
	res.Reason = err.Error()
	d.logger.Warn("skipping patient", "lag", k, "patient", res.ID, "reason", res.Reason)
	return res
}

func windowDates(ds *timedataset.MoodDataset, window split.Window) string {
	first, last, ok := timedataset.TimeSlice(ds.T).Span(window.Start, window.Stop)
	if !ok {
		return "none"
	}
	return first.Format(time.DateOnly) + "/" + last.Format(time.DateOnly)
}

func interval(ds *timedataset.MoodDataset) string {
	freq, err := timedataset.TimeSlice(ds.T).EstimateFreq()
	if err != nil {
		return "unknown"
	}
	return freq.String()
}
