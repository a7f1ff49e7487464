package linearmodel

import (
	"testing"

	mat_ "github.com/aouyang1/go-moodarima/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestOLSOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt      *OLSOptions
		expected *OLSOptions
	}{
		"nil": {nil, NewDefaultOLSOptions()},
		"missing tolerance": {
			&OLSOptions{FitIntercept: false},
			&OLSOptions{FitIntercept: false, RankTolerance: DefaultRankTolerance},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			require.NoError(t, err)
			assert.Equal(t, td.expected, opt)
		})
	}
}

func TestOLSRegression(t *testing.T) {
	tol := 1e-5
	testData := map[string]struct {
		x         [][]float64
		y         []float64
		opt       *OLSOptions
		intercept float64
		coef      []float64
		rank      int
	}{
		"ols model intercept": {
			x: [][]float64{
				{0, 0},
				{3, 5},
				{9, 20},
				{12, 6},
				{15, 10},
			},
			y:         []float64{2, 31, 109, 62, 87},
			intercept: 2.0,
			coef:      []float64{3.0, 4.0},
			rank:      3,
		},
		"ols model no intercept": {
			x: [][]float64{
				{1, 0, 0},
				{1, 3, 5},
				{1, 9, 20},
				{1, 12, 6},
				{1, 15, 10},
			},
			y: []float64{2, 31, 109, 62, 87},
			opt: &OLSOptions{
				FitIntercept: false,
			},
			intercept: 0.0,
			coef:      []float64{2.0, 3.0, 4.0},
			rank:      3,
		},
		"zero regressor is pinned": {
			x: [][]float64{
				{0},
				{0},
				{0},
				{0},
			},
			y:         []float64{1, 1, 1, 1},
			intercept: 1.0,
			coef:      []float64{0.0},
			rank:      1,
		},
		"all zero": {
			x: [][]float64{
				{0, 0},
				{0, 0},
				{0, 0},
			},
			y:         []float64{0, 0, 0},
			intercept: 0.0,
			coef:      []float64{0.0, 0.0},
			rank:      1,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			x, err := mat_.NewDenseFromArray(td.x)
			require.NoError(t, err)

			y := mat.NewDense(len(td.y), 1, td.y)

			model, err := NewOLSRegression(td.opt)
			require.NoError(t, err)

			require.NoError(t, model.Fit(x, y))
			assert.InDelta(t, td.intercept, model.Intercept(), tol, "intercept")
			assert.InDeltaSlice(t, td.coef, model.Coef(), tol, "coefficients")
			assert.Equal(t, td.rank, model.Rank())

			residuals, err := model.Residuals(x, y)
			require.NoError(t, err)
			assert.InDeltaSlice(t, make([]float64, len(td.y)), residuals, tol, "residuals")
		})
	}
}

func TestOLSRegressionErrors(t *testing.T) {
	model, err := NewOLSRegression(nil)
	require.NoError(t, err)

	x := mat.NewDense(3, 1, []float64{1, 2, 3})

	_, err = model.Predict(x)
	assert.ErrorIs(t, err, ErrUntrained)

	assert.ErrorIs(t, model.Fit(nil, x), ErrNoTrainingMatrix)
	assert.ErrorIs(t, model.Fit(x, nil), ErrNoTargetMatrix)
	assert.ErrorIs(t, model.Fit(x, mat.NewDense(2, 1, []float64{1, 2})), ErrTargetLenMismatch)

	wide := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	assert.ErrorIs(t, model.Fit(wide, mat.NewDense(2, 1, []float64{1, 2})), ErrUnderdetermined)

	require.NoError(t, model.Fit(x, mat.NewDense(3, 1, []float64{3, 5, 7})))
	_, err = model.Predict(wide)
	assert.ErrorIs(t, err, ErrFeatureLenMismatch)

	r2, err := model.Score(x, mat.NewDense(3, 1, []float64{3, 5, 7}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r2, 1e-9)
}

func BenchmarkOLSRegression(b *testing.B) {
	n := 100
	data := make([]float64, 0, n*3)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		f := float64(i)
		data = append(data, f, f*f/100, float64(i%7))
		y = append(y, 1+2*f-0.5*f*f/100+float64(i%7))
	}
	x := mat.NewDense(n, 3, data)
	yMx := mat.NewDense(n, 1, y)

	for b.Loop() {
		model, err := NewOLSRegression(nil)
		if err != nil {
			b.Fatal(err)
		}
		if err := model.Fit(x, yMx); err != nil {
			b.Fatal(err)
		}
	}
}
