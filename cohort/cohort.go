// Package cohort reduces per patient mean squared errors into a cohort mean with a Student-t
// confidence interval.
package cohort

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrEmptyCohort        = errors.New("no patient results to summarize")
	ErrInsufficientCohort = errors.New("at least two patient results are required for a sample standard deviation")
	ErrInvalidResult      = errors.New("patient result is not finite")
	ErrInvalidOptions     = errors.New("invalid cohort options")
)

const DefaultConfidence = 0.95

// Options controls the confidence interval. The historical study used a fixed cohort of 27 with a
// critical value of 2.06, i.e. Options{CohortSize: 27, CriticalValue: 2.06}.
type Options struct {
	// CohortSize is the n in the standard error. Zero uses the number of results.
	CohortSize int `json:"size" mapstructure:"size"`

	// CriticalValue multiplies the standard error. Zero derives it from the two sided Student-t
	// quantile at Confidence with CohortSize-1 degrees of freedom.
	CriticalValue float64 `json:"critical_value" mapstructure:"critical_value"`

	Confidence float64 `json:"confidence" mapstructure:"confidence"`
}

// NewDefaultOptions returns a 95% interval sized to the contributing patients
func NewDefaultOptions() *Options {
	return &Options{
		Confidence: DefaultConfidence,
	}
}

// Validate fills unset values with defaults and rejects invalid ones
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	out := *o
	if out.CohortSize < 0 {
		return nil, fmt.Errorf("cohort size %d, %w", out.CohortSize, ErrInvalidOptions)
	}
	if out.CohortSize == 1 {
		return nil, fmt.Errorf("cohort size of 1 has no degrees of freedom, %w", ErrInvalidOptions)
	}
	if out.CriticalValue < 0 || math.IsNaN(out.CriticalValue) || math.IsInf(out.CriticalValue, 0) {
		return nil, fmt.Errorf("critical value %g, %w", out.CriticalValue, ErrInvalidOptions)
	}
	if out.Confidence == 0 {
		out.Confidence = DefaultConfidence
	}
	if !(out.Confidence > 0 && out.Confidence < 1) {
		return nil, fmt.Errorf("confidence %g outside (0, 1), %w", out.Confidence, ErrInvalidOptions)
	}
	return &out, nil
}

// CriticalValue returns the two sided Student-t quantile for the confidence level with df degrees
// of freedom
func CriticalValue(confidence float64, df int) (float64, error) {
	if !(confidence > 0 && confidence < 1) {
		return 0, fmt.Errorf("confidence %g outside (0, 1), %w", confidence, ErrInvalidOptions)
	}
	if df < 1 {
		return 0, fmt.Errorf("%d degrees of freedom, %w", df, ErrInsufficientCohort)
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return t.Quantile(1 - (1-confidence)/2), nil
}

// Summary of a cohort. Lower and Upper are Mean -/+ CriticalValue*Std/sqrt(Size).
type Summary struct {
	N             int     `json:"n"`
	Mean          float64 `json:"mean"`
	Std           float64 `json:"std"`
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	CriticalValue float64 `json:"critical_value"`
	Size          int     `json:"size"`
}

// Summarize computes the mean, the sample standard deviation and the confidence interval of the
// per patient mean squared errors.
func Summarize(mses []float64, opt *Options) (*Summary, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	switch len(mses) {
	case 0:
		return nil, ErrEmptyCohort
	case 1:
		return nil, fmt.Errorf("got 1 result, %w", ErrInsufficientCohort)
	}
	for i, v := range mses {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("result %d is %g, %w", i, v, ErrInvalidResult)
		}
	}

	size := opt.CohortSize
	if size == 0 {
		size = len(mses)
	}

	crit := opt.CriticalValue
	if crit == 0 {
		crit, err = CriticalValue(opt.Confidence, size-1)
		if err != nil {
			return nil, fmt.Errorf("unable to derive critical value, %w", err)
		}
	}

	mean, std := stat.MeanStdDev(mses, nil)
	margin := crit * std / math.Sqrt(float64(size))

	return &Summary{
		N:             len(mses),
		Mean:          mean,
		Std:           std,
		Lower:         mean - margin,
		Upper:         mean + margin,
		CriticalValue: crit,
		Size:          size,
	}, nil
}

// Margin is the half width of the confidence interval
func (s Summary) Margin() float64 {
	return s.CriticalValue * s.Std / math.Sqrt(float64(s.Size))
}

// Lines returns the two result lines printed for lag k
func (s Summary) Lines(k int) []string {
	return []string{
		fmt.Sprintf("ARIMA model (k=%d) results:", k),
		fmt.Sprintf("Mean: %.4f, std: %.4f, CI: (%.4f, %.4f)", s.Mean, s.Std, s.Lower, s.Upper),
	}
}

// TablePrint writes the summary as an aligned table
func (s Summary) TablePrint(w io.Writer, prefix, indent string) error {
	if _, err := fmt.Fprintf(w, "%sCohort:\n", prefix); err != nil {
		return err
	}
	tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	rows := [][]string{
		{"Patients", fmt.Sprintf("%d", s.N)},
		{"Size", fmt.Sprintf("%d", s.Size)},
		{"Mean", fmt.Sprintf("%.4f", s.Mean)},
		{"Std", fmt.Sprintf("%.4f", s.Std)},
		{"Critical", fmt.Sprintf("%.4f", s.CriticalValue)},
		{"Lower", fmt.Sprintf("%.4f", s.Lower)},
		{"Upper", fmt.Sprintf("%.4f", s.Upper)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tbl, "%s%s%s\t\n", prefix, indent, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tbl.Flush()
}
