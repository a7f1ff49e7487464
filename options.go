package moodarima

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/aouyang1/go-moodarima/arima"
	"github.com/aouyang1/go-moodarima/backtest"
	"github.com/aouyang1/go-moodarima/cohort"
	"github.com/aouyang1/go-moodarima/split"
)

var (
	ErrNoProvider          = errors.New("no series provider")
	ErrNoLags              = errors.New("no lag orders configured")
	ErrInvalidPatientRange = errors.New("invalid patient range")
)

const (
	DefaultLag          = 3
	DefaultFirstPatient = 1
	DefaultLastPatient  = 33
)

// Options configures an experiment. Every lag order in Lags is evaluated over patients
// FirstPatient..LastPatient inclusive.
type Options struct {
	Lags         []int      `json:"lags" mapstructure:"lags"`
	Mode         split.Mode `json:"mode" mapstructure:"mode"`
	FirstPatient int        `json:"first_patient" mapstructure:"first_patient"`
	LastPatient  int        `json:"last_patient" mapstructure:"last_patient"`

	// Workers bounds the number of patients evaluated concurrently. Zero uses the number of CPUs.
	Workers int `json:"workers" mapstructure:"workers"`

	Split    split.Proportions `json:"split" mapstructure:"split"`
	Backtest *backtest.Options `json:"backtest" mapstructure:"backtest"`
	ARIMA    *arima.Options    `json:"arima" mapstructure:"arima"`
	Cohort   *cohort.Options   `json:"cohort" mapstructure:"cohort"`
}

// NewDefaultOptions reproduces the reference study: ARIMA(3,1,0) in test mode over patients 1
// through 33 with a 70/10/20 split.
func NewDefaultOptions() *Options {
	return &Options{
		Lags:         []int{DefaultLag},
		Mode:         split.ModeTest,
		FirstPatient: DefaultFirstPatient,
		LastPatient:  DefaultLastPatient,
		Workers:      runtime.NumCPU(),
		Split:        split.NewDefaultProportions(),
		Backtest:     backtest.NewDefaultOptions(),
		ARIMA:        arima.NewDefaultOptions(),
		Cohort:       cohort.NewDefaultOptions(),
	}
}

// Validate returns a copy with unset values replaced by defaults, or an error for invalid ones
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	out := *o

	if len(out.Lags) == 0 {
		return nil, ErrNoLags
	}
	out.Lags = append([]int(nil), o.Lags...)
	for _, k := range out.Lags {
		if k < 1 {
			return nil, fmt.Errorf("lag %d, %w", k, backtest.ErrInvalidLag)
		}
	}

	if out.Mode == "" {
		out.Mode = split.ModeTest
	}
	mode, err := split.ParseMode(string(out.Mode))
	if err != nil {
		return nil, err
	}
	out.Mode = mode

	if out.FirstPatient < 0 || out.LastPatient < out.FirstPatient {
		return nil, fmt.Errorf("patients %d..%d, %w", out.FirstPatient, out.LastPatient, ErrInvalidPatientRange)
	}

	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU()
	}

	if out.Split == (split.Proportions{}) {
		out.Split = split.NewDefaultProportions()
	}
	if err := out.Split.Validate(); err != nil {
		return nil, err
	}

	if out.Backtest, err = out.Backtest.Validate(); err != nil {
		return nil, err
	}
	if out.ARIMA, err = out.ARIMA.Validate(); err != nil {
		return nil, err
	}
	if out.Cohort, err = out.Cohort.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Patients lists the configured patient indices in ascending order
func (o *Options) Patients() []int {
	patients := make([]int, 0, o.LastPatient-o.FirstPatient+1)
	for p := o.FirstPatient; p <= o.LastPatient; p++ {
		patients = append(patients, p)
	}
	return patients
}
