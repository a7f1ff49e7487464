package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aouyang1/go-moodarima/arima"
	"github.com/aouyang1/go-moodarima/split"
	"github.com/aouyang1/go-moodarima/timedataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFakeFit = errors.New("fake fit failure")

// naive forecasts the last observed value
var naive = arima.FitterFunc(func(ctx context.Context, history []float64, order arima.Order) (float64, error) {
	return history[len(history)-1], nil
})

// failAt fails whenever the history length is in the set
func failAt(lengths ...int) arima.Fitter {
	set := make(map[int]bool)
	for _, l := range lengths {
		set[l] = true
	}
	return arima.FitterFunc(func(ctx context.Context, history []float64, order arima.Order) (float64, error) {
		if set[len(history)] {
			return 0, errors.Join(arima.ErrNotConverged, errFakeFit)
		}
		return history[len(history)-1], nil
	})
}

func newDataset(t *testing.T, mood []float64) *timedataset.MoodDataset {
	t.Helper()
	times := timedataset.GenerateT(len(mood), 24*time.Hour, time.Now)
	ds, err := timedataset.NewMoodDatasetFromMood(times, mood)
	require.NoError(t, err)
	return ds
}

func TestOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt      *Options
		expected *Options
		err      error
	}{
		"nil": {
			expected: NewDefaultOptions(),
		},
		"fills defaults": {
			opt: &Options{},
			expected: &Options{
				Target:         TargetNextMood,
				Policy:         PolicyAbort,
				ShiftTolerance: DefaultShiftTolerance,
			},
		},
		"normalizes case": {
			opt: &Options{Target: "MOOD", Policy: "Skip-Step", ShiftTolerance: 0.1},
			expected: &Options{
				Target:         TargetMood,
				Policy:         PolicySkipStep,
				ShiftTolerance: 0.1,
			},
		},
		"shift check kept": {
			opt: &Options{Policy: PolicySkipPatient, CheckShift: true},
			expected: &Options{
				Target:         TargetNextMood,
				Policy:         PolicySkipPatient,
				CheckShift:     true,
				ShiftTolerance: DefaultShiftTolerance,
			},
		},
		"unknown target": {
			opt: &Options{Target: "sleep"},
			err: ErrUnknownTarget,
		},
		"unknown policy": {
			opt: &Options{Policy: "retry"},
			err: ErrUnknownPolicy,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			if td.err != nil {
				require.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.expected, opt)
		})
	}
}

func TestNewEvaluator(t *testing.T) {
	_, err := NewEvaluator(nil, nil)
	require.ErrorIs(t, err, ErrNoFitter)

	_, err = NewEvaluator(naive, &Options{Policy: "retry"})
	require.ErrorIs(t, err, ErrUnknownPolicy)

	e, err := NewEvaluator(naive, nil)
	require.NoError(t, err)
	assert.Equal(t, *NewDefaultOptions(), e.Options())
	assert.Equal(t, TargetNextMood, e.Options().Target)
	assert.False(t, e.Options().CheckShift)
}

func TestEvaluateInvalidInput(t *testing.T) {
	ds := newDataset(t, timedataset.GenerateConstY(20, 5))

	inconsistent := ds.Copy()
	inconsistent.NextMood[3] = 9

	testData := map[string]struct {
		ds     *timedataset.MoodDataset
		k      int
		window split.Window
		err    error
	}{
		"nil dataset": {
			k:      1,
			window: split.Window{Start: 16, Stop: 20},
			err:    ErrNoDataset,
		},
		"zero lag": {
			ds:     ds,
			k:      0,
			window: split.Window{Start: 16, Stop: 20},
			err:    ErrInvalidLag,
		},
		"empty window": {
			ds:     ds,
			k:      1,
			window: split.Window{Start: 16, Stop: 16},
			err:    ErrEmptyWindow,
		},
		"reversed window": {
			ds:     ds,
			k:      1,
			window: split.Window{Start: 18, Stop: 16},
			err:    ErrEmptyWindow,
		},
		"stop past end": {
			ds:     ds,
			k:      1,
			window: split.Window{Start: 16, Stop: 21},
			err:    ErrWindowOutOfRange,
		},
		"negative start": {
			ds:     ds,
			k:      1,
			window: split.Window{Start: -1, Stop: 3},
			err:    ErrWindowOutOfRange,
		},
		"next mood not shifted": {
			ds:     inconsistent,
			k:      1,
			window: split.Window{Start: 16, Stop: 20},
			err:    ErrInconsistentSeries,
		},
	}

	e, err := NewEvaluator(naive, &Options{CheckShift: true})
	require.NoError(t, err)

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := e.Evaluate(context.Background(), td.ds, td.k, td.window)
			require.ErrorIs(t, err, td.err)
			assert.Nil(t, res)
		})
	}

	// without the shift check the patient is still scored against its own next_mood
	lenient, err := NewEvaluator(naive, nil)
	require.NoError(t, err)
	res, err := lenient.Evaluate(context.Background(), inconsistent, 1, split.Window{Start: 3, Stop: 4})
	require.NoError(t, err)
	assert.InDelta(t, 16.0, res.MSE, 1e-12)
}

func TestEvaluate(t *testing.T) {
	mood := []float64{5, 6, 4, 7, 5, 6, 8, 6, 5, 7}

	testData := map[string]struct {
		mood     []float64
		opt      *Options
		window   split.Window
		expected []Step
		mse      float64
	}{
		"mood target": {
			mood:   mood,
			opt:    &Options{Target: TargetMood},
			window: split.Window{Start: 8, Stop: 10},
			expected: []Step{
				{Index: 8, Forecast: 6, Actual: 5, SquaredError: 1},
				{Index: 9, Forecast: 5, Actual: 7, SquaredError: 4},
			},
			mse: 2.5,
		},
		"next mood target skips unknown final target": {
			mood:   mood,
			opt:    &Options{Target: TargetNextMood},
			window: split.Window{Start: 7, Stop: 10},
			expected: []Step{
				// next_mood[idx] is mood[idx+1]
				{Index: 7, Forecast: 8, Actual: 5, SquaredError: 9},
				{Index: 8, Forecast: 6, Actual: 7, SquaredError: 1},
			},
			mse: 5,
		},
		"default target is next mood": {
			mood:   []float64{1, 2, 4, 7, 11, 16, 22, 29, 37, 46},
			window: split.Window{Start: 8, Stop: 9},
			expected: []Step{
				{Index: 8, Forecast: 29, Actual: 46, SquaredError: 289},
			},
			mse: 289,
		},
		"mood target on the same window": {
			mood:   []float64{1, 2, 4, 7, 11, 16, 22, 29, 37, 46},
			opt:    &Options{Target: TargetMood},
			window: split.Window{Start: 8, Stop: 9},
			expected: []Step{
				{Index: 8, Forecast: 29, Actual: 37, SquaredError: 64},
			},
			mse: 64,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			e, err := NewEvaluator(naive, td.opt)
			require.NoError(t, err)

			ds := newDataset(t, td.mood)
			res, err := e.Evaluate(context.Background(), ds, 1, td.window)
			require.NoError(t, err)

			require.Len(t, res.Steps, len(td.expected))
			for i, step := range td.expected {
				assert.Equal(t, step.Index, res.Steps[i].Index)
				assert.Equal(t, ds.T[step.Index], res.Steps[i].Time)
				assert.InDelta(t, step.Forecast, res.Steps[i].Forecast, 1e-12)
				assert.InDelta(t, step.Actual, res.Steps[i].Actual, 1e-12)
				assert.InDelta(t, step.SquaredError, res.Steps[i].SquaredError, 1e-12)
				assert.GreaterOrEqual(t, res.Steps[i].SquaredError, 0.0)
			}
			assert.InDelta(t, td.mse, res.MSE, 1e-12)
			assert.InDelta(t, math.Sqrt(td.mse), res.Scores.RMSE, 1e-12)
			assert.Equal(t, td.window, res.Window)
			assert.Equal(t, len(td.expected), res.Evaluated)
		})
	}
}

func TestEvaluateSkippedTargets(t *testing.T) {
	e, err := NewEvaluator(naive, &Options{Target: TargetNextMood})
	require.NoError(t, err)

	ds := newDataset(t, []float64{5, 6, 4, 7, 5, 6})
	res, err := e.Evaluate(context.Background(), ds, 1, split.Window{Start: 4, Stop: 6})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.SkippedTargets)
	assert.InDelta(t, 1.0, res.MSE, 1e-12)

	// only the final unknown next_mood in the window
	_, err = e.Evaluate(context.Background(), ds, 1, split.Window{Start: 5, Stop: 6})
	require.ErrorIs(t, err, ErrNoValidSteps)
}

func TestEvaluateNonFiniteForecast(t *testing.T) {
	e, err := NewEvaluator(naive, &Options{Target: TargetMood})
	require.NoError(t, err)

	// the missing mood at 4 is skipped as a target, then becomes the naive forecast for 5
	ds := newDataset(t, []float64{5, 6, 4, 7, math.NaN(), 6})
	_, err = e.Evaluate(context.Background(), ds, 1, split.Window{Start: 3, Stop: 6})
	require.ErrorIs(t, err, ErrNonFiniteForecast)
	assert.ErrorIs(t, err, arima.ErrFitFailure)

	res, err := e.Evaluate(context.Background(), ds, 1, split.Window{Start: 3, Stop: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.SkippedTargets)
	assert.InDelta(t, 9.0, res.MSE, 1e-12)
}

func TestEvaluateConstantSeries(t *testing.T) {
	model, err := arima.New(nil)
	require.NoError(t, err)

	e, err := NewEvaluator(model, nil)
	require.NoError(t, err)

	ds := newDataset(t, timedataset.GenerateConstY(100, 5.0))
	b, err := split.Plan(ds.Len(), split.NewDefaultProportions())
	require.NoError(t, err)
	window, err := b.Window(split.ModeTest, ds.Len())
	require.NoError(t, err)
	require.Equal(t, split.Window{Start: 80, Stop: 100}, window)

	res, err := e.Evaluate(context.Background(), ds, 1, window)
	require.NoError(t, err)
	// next_mood is unknown at the final index
	assert.Equal(t, 19, res.Evaluated)
	assert.Equal(t, 1, res.SkippedTargets)
	assert.Equal(t, 0.0, res.MSE)
}

func TestEvaluateFailurePolicy(t *testing.T) {
	mood := []float64{5, 6, 4, 7, 5, 6, 8, 6, 5, 7}
	window := split.Window{Start: 6, Stop: 10}

	testData := map[string]struct {
		policy    FailurePolicy
		fitter    arima.Fitter
		err       error
		evaluated int
		failed    int
		mse       float64
	}{
		"abort": {
			policy: PolicyAbort,
			fitter: failAt(7),
			err:    arima.ErrFitFailure,
		},
		"skip patient": {
			policy: PolicySkipPatient,
			fitter: failAt(7),
			err:    ErrPatientSkipped,
		},
		"skip step": {
			policy:    PolicySkipStep,
			fitter:    failAt(7),
			evaluated: 3,
			failed:    1,
			// steps 6, 8, 9: (8-6)^2, (5-6)^2, (7-5)^2
			mse: (4.0 + 1.0 + 4.0) / 3,
		},
		"skip step every fit fails": {
			policy: PolicySkipStep,
			fitter: failAt(6, 7, 8, 9),
			err:    ErrNoValidSteps,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			e, err := NewEvaluator(td.fitter, &Options{Target: TargetMood, Policy: td.policy})
			require.NoError(t, err)

			res, err := e.Evaluate(context.Background(), newDataset(t, mood), 2, window)
			if td.err != nil {
				require.ErrorIs(t, err, td.err)
				assert.Nil(t, res)
				if td.policy != PolicySkipStep {
					assert.ErrorIs(t, err, errFakeFit)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.evaluated, res.Evaluated)
			assert.Equal(t, td.failed, res.FailedSteps)
			require.Len(t, res.Failures, td.failed)
			assert.Equal(t, 7, res.Failures[0].Index)
			assert.InDelta(t, td.mse, res.MSE, 1e-12)
		})
	}
}

func TestEvaluateHistoryIsExpanding(t *testing.T) {
	var lengths []int
	fitter := arima.FitterFunc(func(ctx context.Context, history []float64, order arima.Order) (float64, error) {
		lengths = append(lengths, len(history))
		assert.Equal(t, arima.Order{P: 3, D: 1, Q: 0}, order)
		return 0, nil
	})

	e, err := NewEvaluator(fitter, &Options{Target: TargetMood})
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), newDataset(t, timedataset.GenerateConstY(12, 1)), 3, split.Window{Start: 8, Stop: 12})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9, 10, 11}, lengths)
}

func TestEvaluateFitObserver(t *testing.T) {
	var fits, failures int
	obs := func(lag int, elapsed time.Duration, err error) {
		assert.Equal(t, 2, lag)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		fits++
		if err != nil {
			failures++
		}
	}

	e, err := NewEvaluator(failAt(7), &Options{Target: TargetMood, Policy: PolicySkipStep}, WithFitObserver(obs))
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), newDataset(t, timedataset.GenerateConstY(10, 1)), 2, split.Window{Start: 6, Stop: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, fits)
	assert.Equal(t, 1, failures)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := NewEvaluator(naive, &Options{Policy: PolicySkipStep})
	require.NoError(t, err)

	_, err = e.Evaluate(ctx, newDataset(t, timedataset.GenerateConstY(10, 1)), 1, split.Window{Start: 6, Stop: 10})
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkEvaluatePatient(b *testing.B) {
	model, err := arima.New(nil)
	require.NoError(b, err)
	e, err := NewEvaluator(model, nil)
	require.NoError(b, err)

	mood := timedataset.GenerateRandomWalk(60, 6.5, 0.3, 0.4, 5)
	times := timedataset.GenerateT(len(mood), 24*time.Hour, time.Now)
	ds, err := timedataset.NewMoodDatasetFromMood(times, mood)
	require.NoError(b, err)

	ctx := context.Background()
	window := split.Window{Start: 48, Stop: 60}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Evaluate(ctx, ds, 3, window); err != nil {
			b.Fatal(err)
		}
	}
}
