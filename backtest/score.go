package backtest

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrResLenMismatch = errors.New("predicted and actual have different lengths")
	ErrNoScorePairs   = errors.New("no finite predicted and actual pairs to score")
)

// Scores tracks the forecast error scores of a window
type Scores struct {
	MSE  float64 `json:"mean_squared_error"`
	RMSE float64 `json:"root_mean_squared_error"`
	MAE  float64 `json:"mean_absolute_error"`
}

// NewScores calculates the error scores given the predicted and actual input slice values
func NewScores(predicted, actual []float64) (*Scores, error) {
	mse, err := MSE(predicted, actual)
	if err != nil {
		return nil, fmt.Errorf("unable to compute mean squared error, %w", err)
	}
	mae, err := MAE(predicted, actual)
	if err != nil {
		return nil, fmt.Errorf("unable to compute mean absolute error, %w", err)
	}

	return &Scores{
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		MAE:  mae,
	}, nil
}

// SquaredErrors returns (actual-predicted)^2 per pair. Pairs where either side is not finite
// are NaN.
func SquaredErrors(predicted, actual []float64) ([]float64, error) {
	if len(predicted) != len(actual) {
		return nil, fmt.Errorf("expected %d, but got %d, %w", len(actual), len(predicted), ErrResLenMismatch)
	}
	se := make([]float64, len(actual))
	for i := range actual {
		if !finite(actual[i]) || !finite(predicted[i]) {
			se[i] = math.NaN()
			continue
		}
		d := actual[i] - predicted[i]
		se[i] = d * d
	}
	return se, nil
}

// MSE computes the mean squared error over the finite pairs. A score of 0 means a perfect match
// with no errors.
func MSE(predicted, actual []float64) (float64, error) {
	se, err := SquaredErrors(predicted, actual)
	if err != nil {
		return 0, err
	}
	return nanMean(se)
}

// MAE computes the mean absolute error over the finite pairs
func MAE(predicted, actual []float64) (float64, error) {
	se, err := SquaredErrors(predicted, actual)
	if err != nil {
		return 0, err
	}
	for i, v := range se {
		se[i] = math.Sqrt(v)
	}
	return nanMean(se)
}

func nanMean(x []float64) (float64, error) {
	valid := make([]float64, 0, len(x))
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return 0, ErrNoScorePairs
	}
	return floats.Sum(valid) / float64(len(valid)), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
