// Package arima fits ARIMA(p,d,0) models to a univariate history and produces one step ahead
// forecasts. Coefficients are estimated by conditional sum of squares and optionally refined by
// maximising the exact Gaussian likelihood of the differenced series.
package arima

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrFitFailure = errors.New("arima fit failure")

	ErrUnsupportedOrder    = fmt.Errorf("%w: unsupported order", ErrFitFailure)
	ErrInvalidHistory      = fmt.Errorf("%w: history contains non-finite values", ErrFitFailure)
	ErrInsufficientHistory = fmt.Errorf("%w: insufficient history for order", ErrFitFailure)
	ErrNonStationary       = fmt.Errorf("%w: non-stationary autoregressive coefficients", ErrFitFailure)
	ErrNotConverged        = fmt.Errorf("%w: likelihood maximisation did not converge", ErrFitFailure)
	ErrFitTimeout          = fmt.Errorf("%w: fit exceeded its time budget", ErrFitFailure)

	ErrUnknownMethod  = errors.New("unknown estimation method")
	ErrInvalidOptions = errors.New("invalid arima options")
)

// Order represents ARIMA model order (p, d, q).
type Order struct {
	P int `json:"p"` // AR order (number of autoregressive terms)
	D int `json:"d"` // Differencing order
	Q int `json:"q"` // MA order (number of moving average terms)
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// Validate checks the order is one this package can estimate
func (o Order) Validate() error {
	if o.P < 1 {
		return fmt.Errorf("ar order %d, %w", o.P, ErrUnsupportedOrder)
	}
	if o.D < 0 || o.D > 2 {
		return fmt.Errorf("differencing order %d, %w", o.D, ErrUnsupportedOrder)
	}
	if o.Q != 0 {
		return fmt.Errorf("ma order %d, %w", o.Q, ErrUnsupportedOrder)
	}
	return nil
}

// Fitter fits a model of the given order to history and returns the one step ahead point
// forecast. Any failure to fit wraps ErrFitFailure.
type Fitter interface {
	Forecast(ctx context.Context, history []float64, order Order) (float64, error)
}

// FitterFunc adapts a function to the Fitter interface
type FitterFunc func(ctx context.Context, history []float64, order Order) (float64, error)

func (f FitterFunc) Forecast(ctx context.Context, history []float64, order Order) (float64, error) {
	return f(ctx, history, order)
}

type Method string

const (
	MethodCSS    Method = "css"
	MethodCSSMLE Method = "css-mle"
)

const (
	DefaultMaxIterations = 1000
	DefaultFitTimeout    = 10 * time.Second
)

// Options configures estimation
type Options struct {
	Method Method `json:"method" mapstructure:"method"`

	// MaxIterations caps the Nelder-Mead major iterations of the likelihood refinement.
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`

	// FitTimeout bounds a single fit. Zero disables the bound.
	FitTimeout time.Duration `json:"fit_timeout" mapstructure:"fit_timeout"`

	// MinResidualDOF is the minimum number of regression rows beyond the number of coefficients.
	MinResidualDOF int `json:"min_residual_dof" mapstructure:"min_residual_dof"`
}

// NewDefaultOptions returns css-mle estimation, the statsmodels default
func NewDefaultOptions() *Options {
	return &Options{
		Method:         MethodCSSMLE,
		MaxIterations:  DefaultMaxIterations,
		FitTimeout:     DefaultFitTimeout,
		MinResidualDOF: 1,
	}
}

// Validate fills unset values with defaults and rejects invalid ones
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	out := *o
	switch out.Method {
	case "":
		out.Method = MethodCSSMLE
	case MethodCSS, MethodCSSMLE:
	default:
		return nil, fmt.Errorf("%q, %w", out.Method, ErrUnknownMethod)
	}
	if out.MaxIterations <= 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	if out.FitTimeout < 0 {
		return nil, fmt.Errorf("negative fit timeout %s, %w", out.FitTimeout, ErrInvalidOptions)
	}
	if out.MinResidualDOF < 1 {
		out.MinResidualDOF = 1
	}
	return &out, nil
}

// Coefficients of a fitted model on the differenced scale
type Coefficients struct {
	Intercept  float64   `json:"intercept"`
	Mean       float64   `json:"mean"`
	AR         []float64 `json:"ar"`
	Sigma2     float64   `json:"sigma2"`
	LogLik     float64   `json:"log_likelihood"`
	NObs       int       `json:"n_obs"`
	Method     Method    `json:"method"`
	Iterations int       `json:"iterations"`
}

// Fit is a fitted model ready to forecast the step after its history
type Fit struct {
	Order        Order        `json:"order"`
	Coefficients Coefficients `json:"coefficients"`

	// last value of each differencing level, from the original series up to level d-1
	lastLevels []float64
	// final p values of the differenced series, most recent first
	lags []float64
}

// Forecast returns the one step ahead forecast on the original scale
func (f *Fit) Forecast() float64 {
	c := f.Coefficients
	z := c.Intercept
	for i, phi := range c.AR {
		z += phi * f.lags[i]
	}
	return z + floats.Sum(f.lastLevels)
}

// Model estimates ARIMA(p,d,0) models
type Model struct {
	opt *Options
}

// New creates a Model. If no options are provided a default is used.
func New(opt *Options) (*Model, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Model{opt: opt}, nil
}

// Forecast implements Fitter
func (m *Model) Forecast(ctx context.Context, history []float64, order Order) (float64, error) {
	fit, err := m.Fit(ctx, history, order)
	if err != nil {
		return 0, err
	}
	return fit.Forecast(), nil
}

// Fit estimates the model on history. The slice is not modified.
func (m *Model) Fit(ctx context.Context, history []float64, order Order) (*Fit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w, %w", ErrFitTimeout, err)
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	for i, v := range history {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %g at %d, %w", v, i, ErrInvalidHistory)
		}
	}

	minLen := order.D + 2*order.P + 1 + m.opt.MinResidualDOF
	if len(history) < minLen {
		return nil, fmt.Errorf("%d points for order %s requires at least %d, %w", len(history), order, minLen, ErrInsufficientHistory)
	}

	if m.opt.FitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opt.FitTimeout)
		defer cancel()
	}

	z, lastLevels := difference(history, order.D)

	coef, err := fitCSS(z, order.P)
	if err != nil {
		return nil, err
	}

	if m.opt.Method == MethodCSSMLE && !degenerate(coef, z) {
		coef, err = fitMLE(ctx, z, coef, m.opt)
		if err != nil {
			return nil, err
		}
	}

	lags := make([]float64, order.P)
	for i := 0; i < order.P; i++ {
		lags[i] = z[len(z)-1-i]
	}

	return &Fit{
		Order:        order,
		Coefficients: coef,
		lastLevels:   lastLevels,
		lags:         lags,
	}, nil
}

// difference applies d first differences and returns the differenced series along with the last
// value of every intermediate level needed to integrate a forecast back.
func difference(y []float64, d int) ([]float64, []float64) {
	lastLevels := make([]float64, 0, d)
	z := make([]float64, len(y))
	copy(z, y)
	for i := 0; i < d; i++ {
		lastLevels = append(lastLevels, z[len(z)-1])
		next := make([]float64, len(z)-1)
		for t := 1; t < len(z); t++ {
			next[t-1] = z[t] - z[t-1]
		}
		z = next
	}
	return z, lastLevels
}

// degenerate reports a CSS fit that already explains the differenced series exactly, where the
// likelihood is unbounded and refinement is meaningless.
func degenerate(coef Coefficients, z []float64) bool {
	scale := 1.0
	for _, v := range z {
		scale = math.Max(scale, math.Abs(v))
	}
	return coef.Sigma2 <= 1e-20*scale*scale
}
