// Package split plans the train / validation / test boundaries of a patient series and maps a
// run mode onto the evaluation window.
package split

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidProportions = errors.New("invalid split proportions")
	ErrNegativeLength     = errors.New("series length is negative")
	ErrUnknownMode        = errors.New("unknown run mode")
)

const proportionTolerance = 1e-9

// Proportions of a series assigned to each partition. They must sum to 1.
type Proportions struct {
	Train      float64 `json:"train" mapstructure:"train"`
	Validation float64 `json:"validation" mapstructure:"validation"`
	Test       float64 `json:"test" mapstructure:"test"`
}

// NewDefaultProportions returns the 70/10/20 split
func NewDefaultProportions() Proportions {
	return Proportions{Train: 0.7, Validation: 0.1, Test: 0.2}
}

// Validate checks each proportion is within [0, 1] and that they sum to 1
func (p Proportions) Validate() error {
	parts := []struct {
		name string
		val  float64
	}{
		{"train", p.Train},
		{"validation", p.Validation},
		{"test", p.Test},
	}
	for _, part := range parts {
		if math.IsNaN(part.val) || part.val < 0 || part.val > 1 {
			return fmt.Errorf("%s proportion %g outside [0, 1], %w", part.name, part.val, ErrInvalidProportions)
		}
	}
	if sum := p.Train + p.Validation + p.Test; math.Abs(sum-1) > proportionTolerance {
		return fmt.Errorf("proportions sum to %g, %w", sum, ErrInvalidProportions)
	}
	return nil
}

// Boundaries are the two cut points of a series: [0, TrainEnd) is train, [TrainEnd, ValidationEnd)
// validation and [ValidationEnd, t) test.
type Boundaries struct {
	TrainEnd      int `json:"train_end"`
	ValidationEnd int `json:"validation_end"`
}

// Plan computes floor(train*t) and floor((train+validation)*t)
func Plan(t int, p Proportions) (Boundaries, error) {
	if t < 0 {
		return Boundaries{}, fmt.Errorf("length %d, %w", t, ErrNegativeLength)
	}
	if err := p.Validate(); err != nil {
		return Boundaries{}, err
	}

	a := clamp(floorTol(p.Train*float64(t)), 0, t)
	b := clamp(floorTol((p.Train+p.Validation)*float64(t)), a, t)
	return Boundaries{TrainEnd: a, ValidationEnd: b}, nil
}

// floorTol floors v, first snapping values within round off of an integer onto it so that
// (0.7+0.1)*100 is 80 rather than 79.
func floorTol(v float64) int {
	if r := math.Round(v); math.Abs(v-r) <= proportionTolerance*math.Max(1, math.Abs(v)) {
		return int(r)
	}
	return int(math.Floor(v))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Mode selects which partition is walked forward
type Mode string

const (
	ModeValidation Mode = "validation"
	ModeTest       Mode = "test"
)

// ParseMode parses a run mode, case insensitive
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeValidation, ModeTest:
		return m, nil
	default:
		return "", fmt.Errorf("%q, %w", s, ErrUnknownMode)
	}
}

// Window is the half open range of indices [Start, Stop) that gets forecast
type Window struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// Len returns the number of indices in the window, 0 if empty
func (w Window) Len() int {
	return max(0, w.Stop-w.Start)
}

// Empty reports whether the window contains no indices
func (w Window) Empty() bool {
	return w.Start >= w.Stop
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d)", w.Start, w.Stop)
}

// Window returns the evaluation window for a series of length t in the given mode. Validation
// walks [TrainEnd, ValidationEnd) and test walks [ValidationEnd, t).
func (b Boundaries) Window(mode Mode, t int) (Window, error) {
	switch mode {
	case ModeValidation:
		return Window{Start: b.TrainEnd, Stop: b.ValidationEnd}, nil
	case ModeTest:
		return Window{Start: b.ValidationEnd, Stop: t}, nil
	default:
		return Window{}, fmt.Errorf("%q, %w", mode, ErrUnknownMode)
	}
}
