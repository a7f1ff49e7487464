// Package timedataset holds the time indexed mood observations of a single patient
package timedataset

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNoTrainingData     = errors.New("no observations")
	ErrNonMonotonic       = errors.New("time index is not strictly increasing")
	ErrDatasetLenMismatch = errors.New("time index has a different length than observations")
	ErrShiftMismatch      = errors.New("next_mood is not mood shifted by one step")
	ErrCannotInferFreq    = errors.New("cannot infer frequency from time index")
)

// MoodDataset represents one patient series. T, Mood and NextMood all have the same length and
// NextMood[i] is expected to equal Mood[i+1] whenever both are known.
type MoodDataset struct {
	T        []time.Time `json:"time"`
	Mood     []float64   `json:"mood"`
	NextMood []float64   `json:"next_mood"`
}

// NewMoodDataset returns a MoodDataset copying the input slices. The time index must be strictly
// increasing.
func NewMoodDataset(t []time.Time, mood, nextMood []float64) (*MoodDataset, error) {
	if len(mood) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(t) != len(mood) || len(nextMood) != len(mood) {
		return nil, fmt.Errorf(
			"time index has length of %d, mood has length of %d and next_mood has length of %d, %w",
			len(t), len(mood), len(nextMood), ErrDatasetLenMismatch,
		)
	}

	for i := 1; i < len(t); i++ {
		if !t[i].After(t[i-1]) {
			return nil, fmt.Errorf("non-monotonic at %d, %w", i, ErrNonMonotonic)
		}
	}

	ds := &MoodDataset{
		T:        make([]time.Time, len(t)),
		Mood:     make([]float64, len(mood)),
		NextMood: make([]float64, len(nextMood)),
	}
	copy(ds.T, t)
	copy(ds.Mood, mood)
	copy(ds.NextMood, nextMood)
	return ds, nil
}

// NewMoodDatasetFromMood derives next_mood by shifting mood one step forward. The final next_mood
// is unknown and set to NaN.
func NewMoodDatasetFromMood(t []time.Time, mood []float64) (*MoodDataset, error) {
	nextMood := make([]float64, len(mood))
	for i := 0; i < len(mood); i++ {
		if i == len(mood)-1 {
			nextMood[i] = math.NaN()
			continue
		}
		nextMood[i] = mood[i+1]
	}
	return NewMoodDataset(t, mood, nextMood)
}

// Len returns the number of observations
func (ds *MoodDataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.Mood)
}

// Copy returns a deep copy of the dataset
func (ds *MoodDataset) Copy() *MoodDataset {
	if ds == nil {
		return nil
	}
	out := &MoodDataset{
		T:        make([]time.Time, len(ds.T)),
		Mood:     make([]float64, len(ds.Mood)),
		NextMood: make([]float64, len(ds.NextMood)),
	}
	copy(out.T, ds.T)
	copy(out.Mood, ds.Mood)
	copy(out.NextMood, ds.NextMood)
	return out
}

// History returns a copy of the mood values strictly before idx, the expanding window available
// when predicting idx.
func (ds *MoodDataset) History(idx int) []float64 {
	if idx < 0 {
		idx = 0
	}
	if idx > len(ds.Mood) {
		idx = len(ds.Mood)
	}
	h := make([]float64, idx)
	copy(h, ds.Mood[:idx])
	return h
}

// CheckShift verifies next_mood[i] == mood[i+1] within tol wherever both values are finite.
func (ds *MoodDataset) CheckShift(tol float64) error {
	for i := 0; i < len(ds.Mood)-1; i++ {
		next, mood := ds.NextMood[i], ds.Mood[i+1]
		if math.IsNaN(next) || math.IsNaN(mood) || math.IsInf(next, 0) || math.IsInf(mood, 0) {
			continue
		}
		if math.Abs(next-mood) > tol {
			return fmt.Errorf("at %d next_mood is %g but following mood is %g, %w", i, next, mood, ErrShiftMismatch)
		}
	}
	return nil
}
