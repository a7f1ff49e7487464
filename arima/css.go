package arima

import (
	"fmt"
	"math"

	"github.com/aouyang1/go-moodarima/linearmodel"
	mat_ "github.com/aouyang1/go-moodarima/mat"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// fitCSS regresses z[t] on z[t-1..t-p] with an intercept. Minimising the conditional sum of
// squares of an AR(p) is exactly this least squares problem.
func fitCSS(z []float64, p int) (Coefficients, error) {
	x, y, err := mat_.LagMatrix(z, p)
	if err != nil {
		return Coefficients{}, fmt.Errorf("%w, %w", ErrInsufficientHistory, err)
	}

	ols, err := linearmodel.NewOLSRegression(nil)
	if err != nil {
		return Coefficients{}, err
	}
	if err := ols.Fit(x, y); err != nil {
		return Coefficients{}, fmt.Errorf("unable to fit conditional least squares, %w: %w", ErrFitFailure, err)
	}

	residuals, err := ols.Residuals(x, y)
	if err != nil {
		return Coefficients{}, fmt.Errorf("unable to compute residuals, %w: %w", ErrFitFailure, err)
	}

	n := len(residuals)
	sse := floats.Dot(residuals, residuals)
	sigma2 := sse / float64(n)

	ar := ols.Coef()
	intercept := ols.Intercept()

	mean := stat.Mean(z, nil)
	if denom := 1 - floats.Sum(ar); math.Abs(denom) > 1e-12 {
		mean = intercept / denom
	}

	loglik := math.Inf(1)
	if sigma2 > 0 {
		loglik = -0.5 * float64(n) * (math.Log(2*math.Pi) + 1 + math.Log(sigma2))
	}

	return Coefficients{
		Intercept: intercept,
		Mean:      mean,
		AR:        ar,
		Sigma2:    sigma2,
		LogLik:    loglik,
		NObs:      n,
		Method:    MethodCSS,
	}, nil
}
