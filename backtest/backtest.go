// Package backtest walks a forecasting model forward over an evaluation window, refitting on the
// expanding history before every step and scoring the one step ahead forecast.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aouyang1/go-moodarima/arima"
	"github.com/aouyang1/go-moodarima/split"
	"github.com/aouyang1/go-moodarima/timedataset"
)

var (
	ErrNoFitter           = errors.New("no fitter provided")
	ErrNoDataset          = errors.New("no dataset provided")
	ErrInvalidLag         = errors.New("lag order must be at least 1")
	ErrEmptyWindow        = errors.New("evaluation window is empty")
	ErrWindowOutOfRange   = errors.New("evaluation window outside series")
	ErrInconsistentSeries = errors.New("inconsistent patient series")
	ErrPatientSkipped     = errors.New("patient skipped after fit failure")
	ErrNoValidSteps       = errors.New("no valid steps in evaluation window")
	ErrUnknownTarget      = errors.New("unknown forecast target")
	ErrUnknownPolicy      = errors.New("unknown failure policy")
	ErrNonFiniteForecast  = fmt.Errorf("%w: non-finite forecast", arima.ErrFitFailure)
)

// Target selects the observation a forecast made at index idx is scored against
type Target string

const (
	// TargetMood scores against mood[idx], the value right after the history mood[:idx]
	TargetMood Target = "mood"

	// TargetNextMood scores against next_mood[idx], the column the cohort study reports
	TargetNextMood Target = "next_mood"
)

// ParseTarget parses a forecast target, case insensitive
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetMood, TargetNextMood:
		return t, nil
	default:
		return "", fmt.Errorf("%q, %w", s, ErrUnknownTarget)
	}
}

// FailurePolicy decides what a fit failure at a single step does
type FailurePolicy string

const (
	// PolicyAbort returns the fit failure, ending the run
	PolicyAbort FailurePolicy = "abort"

	// PolicySkipStep excludes the failed step from the mean
	PolicySkipStep FailurePolicy = "skip-step"

	// PolicySkipPatient drops the whole patient
	PolicySkipPatient FailurePolicy = "skip-patient"
)

// ParsePolicy parses a failure policy, case insensitive
func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAbort, PolicySkipStep, PolicySkipPatient:
		return p, nil
	default:
		return "", fmt.Errorf("%q, %w", s, ErrUnknownPolicy)
	}
}

const DefaultShiftTolerance = 1e-9

// Options configures the walk forward evaluation
type Options struct {
	Target Target        `json:"target" mapstructure:"target"`
	Policy FailurePolicy `json:"failure_policy" mapstructure:"failure_policy"`

	// CheckShift rejects a patient whose next_mood is not mood shifted by one step. The zero value
	// leaves the check off, which is also the default.
	CheckShift     bool    `json:"check_shift" mapstructure:"check_shift"`
	ShiftTolerance float64 `json:"shift_tolerance" mapstructure:"shift_tolerance"`
}

// NewDefaultOptions scores against next_mood and aborts on the first fit failure
func NewDefaultOptions() *Options {
	return &Options{
		Target:         TargetNextMood,
		Policy:         PolicyAbort,
		ShiftTolerance: DefaultShiftTolerance,
	}
}

// Validate fills unset values with defaults and rejects invalid ones
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	out := *o
	if out.Target == "" {
		out.Target = TargetNextMood
	}
	target, err := ParseTarget(string(out.Target))
	if err != nil {
		return nil, err
	}
	out.Target = target

	if out.Policy == "" {
		out.Policy = PolicyAbort
	}
	policy, err := ParsePolicy(string(out.Policy))
	if err != nil {
		return nil, err
	}
	out.Policy = policy

	if out.ShiftTolerance <= 0 {
		out.ShiftTolerance = DefaultShiftTolerance
	}
	return &out, nil
}

// Step is a single scored forecast
type Step struct {
	Index        int       `json:"index"`
	Time         time.Time `json:"time"`
	Forecast     float64   `json:"forecast"`
	Actual       float64   `json:"actual"`
	SquaredError float64   `json:"squared_error"`
}

// StepFailure records a fit failure tolerated by PolicySkipStep
type StepFailure struct {
	Index int    `json:"index"`
	Err   string `json:"error"`
}

// Result of walking one patient's window
type Result struct {
	Window         split.Window  `json:"window"`
	Steps          []Step        `json:"steps"`
	MSE            float64       `json:"mse"`
	Scores         *Scores       `json:"scores"`
	Evaluated      int           `json:"evaluated"`
	FailedSteps    int           `json:"failed_steps"`
	SkippedTargets int           `json:"skipped_targets"`
	Failures       []StepFailure `json:"failures,omitempty"`
}

// FitObserver is notified after every fit with the lag, elapsed time and the fit error if any
type FitObserver func(lag int, elapsed time.Duration, err error)

// Evaluator runs walk forward backtests with a forecasting oracle
type Evaluator struct {
	fitter   arima.Fitter
	opt      *Options
	observer FitObserver
}

// EvaluatorOption customizes an Evaluator
type EvaluatorOption func(*Evaluator)

// WithFitObserver registers a callback invoked after every fit
func WithFitObserver(obs FitObserver) EvaluatorOption {
	return func(e *Evaluator) {
		e.observer = obs
	}
}

// NewEvaluator creates an Evaluator. If no options are provided a default is used.
func NewEvaluator(fitter arima.Fitter, opt *Options, opts ...EvaluatorOption) (*Evaluator, error) {
	if fitter == nil {
		return nil, ErrNoFitter
	}
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		fitter: fitter,
		opt:    opt,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Options returns a copy of the evaluator options
func (e *Evaluator) Options() Options {
	return *e.opt
}

// Evaluate forecasts every index of window with an ARIMA(k,1,0) fitted on mood[:idx] and returns
// the mean squared error over the valid steps. An empty window is ErrEmptyWindow, never an MSE of 0.
func (e *Evaluator) Evaluate(ctx context.Context, ds *timedataset.MoodDataset, k int, window split.Window) (*Result, error) {
	if ds == nil {
		return nil, ErrNoDataset
	}
	if k < 1 {
		return nil, fmt.Errorf("lag %d, %w", k, ErrInvalidLag)
	}
	if window.Empty() {
		return nil, fmt.Errorf("window %s, %w", window, ErrEmptyWindow)
	}
	n := ds.Len()
	if window.Start < 0 || window.Stop > n {
		return nil, fmt.Errorf("window %s with %d observations, %w", window, n, ErrWindowOutOfRange)
	}
	if len(ds.NextMood) != n || len(ds.T) != n {
		return nil, fmt.Errorf("mood, next_mood and time lengths differ, %w", ErrInconsistentSeries)
	}
	if e.opt.CheckShift {
		if err := ds.CheckShift(e.opt.ShiftTolerance); err != nil {
			return nil, fmt.Errorf("%w, %w", ErrInconsistentSeries, err)
		}
	}

	order := arima.Order{P: k, D: 1, Q: 0}
	res := &Result{
		Window: window,
		Steps:  make([]Step, 0, window.Len()),
	}

	forecasts := make([]float64, 0, window.Len())
	actuals := make([]float64, 0, window.Len())

	for idx := window.Start; idx < window.Stop; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		actual := e.target(ds, idx)
		if !finite(actual) {
			res.SkippedTargets++
			continue
		}

		forecast, err := e.forecast(ctx, ds.History(idx), order)
		if err != nil {
			switch e.opt.Policy {
			case PolicySkipStep:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				res.FailedSteps++
				res.Failures = append(res.Failures, StepFailure{Index: idx, Err: err.Error()})
				continue
			case PolicySkipPatient:
				return nil, fmt.Errorf("%w, unable to forecast index %d with order %s, %w", ErrPatientSkipped, idx, order, err)
			default:
				return nil, fmt.Errorf("unable to forecast index %d with order %s, %w", idx, order, err)
			}
		}

		d := actual - forecast
		res.Steps = append(res.Steps, Step{
			Index:        idx,
			Time:         ds.T[idx],
			Forecast:     forecast,
			Actual:       actual,
			SquaredError: d * d,
		})
		forecasts = append(forecasts, forecast)
		actuals = append(actuals, actual)
	}

	res.Evaluated = len(res.Steps)
	if res.Evaluated == 0 {
		return nil, fmt.Errorf(
			"window %s had %d failed steps and %d missing targets, %w",
			window, res.FailedSteps, res.SkippedTargets, ErrNoValidSteps,
		)
	}

	scores, err := NewScores(forecasts, actuals)
	if err != nil {
		return nil, fmt.Errorf("unable to score window %s, %w", window, err)
	}
	res.Scores = scores
	res.MSE = scores.MSE
	return res, nil
}

func (e *Evaluator) target(ds *timedataset.MoodDataset, idx int) float64 {
	if e.opt.Target == TargetNextMood {
		return ds.NextMood[idx]
	}
	return ds.Mood[idx]
}

func (e *Evaluator) forecast(ctx context.Context, history []float64, order arima.Order) (float64, error) {
	start := time.Now()
	forecast, err := e.fitter.Forecast(ctx, history, order)
	if err == nil && !finite(forecast) {
		err = fmt.Errorf("forecast %g, %w", forecast, ErrNonFiniteForecast)
	}
	if e.observer != nil {
		e.observer(order.P, time.Since(start), err)
	}
	return forecast, err
}
