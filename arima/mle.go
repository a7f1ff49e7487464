package arima

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// returned for parameters outside the stationary region so the simplex moves back inside
	infeasiblePenalty = 1e12

	maxShrinkSteps = 20
	shrinkFactor   = 0.9
	unitRootMargin = 1e-6
)

// fitMLE refines a CSS fit by minimising the exact negative Gaussian log likelihood of a
// stationary AR(p) with mean mu, with the innovation variance concentrated out. The likelihood is
// evaluated with a Kalman filter started from the stationary state covariance.
func fitMLE(ctx context.Context, z []float64, start Coefficients, opt *Options) (Coefficients, error) {
	p := len(start.AR)

	phi0 := make([]float64, p)
	copy(phi0, start.AR)
	mu0 := start.Mean
	shrunk := 0
	for !isStationary(phi0) {
		if shrunk == maxShrinkSteps {
			return Coefficients{}, fmt.Errorf("starting coefficients %v, %w", start.AR, ErrNonStationary)
		}
		floats.Scale(shrinkFactor, phi0)
		shrunk++
	}
	if shrunk > 0 || math.IsNaN(mu0) || math.IsInf(mu0, 0) {
		mu0 = floats.Sum(z) / float64(len(z))
	}

	init := append([]float64{mu0}, phi0...)

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			nll, _, ok := negLogLikelihood(z, theta[0], theta[1:])
			if !ok {
				return infeasiblePenalty
			}
			return nll
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.RuntimeLimit, err
			}
			return optimize.NotTerminated, nil
		},
	}

	settings := &optimize.Settings{
		MajorIterations: opt.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-9,
			Iterations: 50,
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		settings.Runtime = time.Until(deadline)
	}

	res, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Coefficients{}, fmt.Errorf("%w, %w", ErrFitTimeout, ctxErr)
	}
	if err != nil {
		return Coefficients{}, fmt.Errorf("%w, %w", ErrNotConverged, err)
	}
	switch {
	case res.Status == optimize.RuntimeLimit:
		return Coefficients{}, fmt.Errorf("status %s, %w", res.Status, ErrFitTimeout)
	case res.Status.Early():
		return Coefficients{}, fmt.Errorf("status %s after %d iterations, %w", res.Status, res.Stats.MajorIterations, ErrNotConverged)
	}

	mu := res.X[0]
	phi := make([]float64, p)
	copy(phi, res.X[1:])

	nll, sigma2, ok := negLogLikelihood(z, mu, phi)
	if !ok {
		return Coefficients{}, fmt.Errorf("optimum %v, %w", res.X, ErrNonStationary)
	}

	return Coefficients{
		Intercept:  mu * (1 - floats.Sum(phi)),
		Mean:       mu,
		AR:         phi,
		Sigma2:     sigma2,
		LogLik:     -nll,
		NObs:       len(z),
		Method:     MethodCSSMLE,
		Iterations: res.Stats.MajorIterations,
	}, nil
}

// companion returns the state transition matrix of an AR(p) process
func companion(phi []float64) *mat.Dense {
	p := len(phi)
	t := mat.NewDense(p, p, nil)
	t.SetRow(0, phi)
	for i := 1; i < p; i++ {
		t.Set(i, i-1, 1)
	}
	return t
}

// isStationary reports whether all roots of the AR polynomial lie outside the unit circle, i.e.
// every eigenvalue of the companion matrix is inside it.
func isStationary(phi []float64) bool {
	for _, v := range phi {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if len(phi) == 0 {
		return true
	}
	var eig mat.Eigen
	if ok := eig.Factorize(companion(phi), mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1-unitRootMargin {
			return false
		}
	}
	return true
}

var errSingularCovariance = errors.New("stationary covariance system is singular")

// stationaryCovariance solves P = T P T' + e1 e1' through (I - T⊗T) vec(P) = vec(e1 e1').
func stationaryCovariance(t *mat.Dense) (*mat.Dense, error) {
	p, _ := t.Dims()
	var kron mat.Dense
	kron.Kronecker(t, t)

	sys := mat.NewDense(p*p, p*p, nil)
	for i := 0; i < p*p; i++ {
		sys.Set(i, i, 1)
	}
	sys.Sub(sys, &kron)

	rhs := mat.NewVecDense(p*p, nil)
	rhs.SetVec(0, 1)

	var v mat.VecDense
	if err := v.SolveVec(sys, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, errSingularCovariance
		}
	}

	cov := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			// symmetrise against round off
			cov.Set(i, j, 0.5*(v.AtVec(i*p+j)+v.AtVec(j*p+i)))
		}
	}
	return cov, nil
}

// negLogLikelihood runs the Kalman filter over z for an AR(p) with mean mu and unit innovation
// variance, then concentrates the variance out. It returns the negative log likelihood, the
// estimated innovation variance, and false if the parameters are infeasible.
func negLogLikelihood(z []float64, mu float64, phi []float64) (float64, float64, bool) {
	if math.IsNaN(mu) || math.IsInf(mu, 0) || !isStationary(phi) {
		return 0, 0, false
	}
	p := len(phi)
	cov, err := stationaryCovariance(companion(phi))
	if err != nil {
		return 0, 0, false
	}

	a := make([]float64, p)
	pm := make([][]float64, p)
	for i := range pm {
		pm[i] = make([]float64, p)
		for j := range pm[i] {
			pm[i][j] = cov.At(i, j)
		}
	}

	au := make([]float64, p)
	pu := make([][]float64, p)
	tmp := make([][]float64, p)
	for i := range pu {
		pu[i] = make([]float64, p)
		tmp[i] = make([]float64, p)
	}
	k := make([]float64, p)

	var sumLogF, sumSq float64
	for _, obs := range z {
		v := obs - mu - a[0]
		f := pm[0][0]
		if !(f > 0) || math.IsInf(f, 0) {
			return 0, 0, false
		}
		sumLogF += math.Log(f)
		sumSq += v * v / f

		// measurement update
		for i := 0; i < p; i++ {
			k[i] = pm[i][0] / f
			au[i] = a[i] + k[i]*v
		}
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				pu[i][j] = pm[i][j] - k[i]*pm[0][j]
			}
		}

		// time update with the companion transition: row 0 is phi, row i shifts element i-1
		a[0] = floats.Dot(phi, au)
		for i := 1; i < p; i++ {
			a[i] = au[i-1]
		}
		for j := 0; j < p; j++ {
			var s float64
			for l := 0; l < p; l++ {
				s += phi[l] * pu[l][j]
			}
			tmp[0][j] = s
			for i := 1; i < p; i++ {
				tmp[i][j] = pu[i-1][j]
			}
		}
		for i := 0; i < p; i++ {
			var s float64
			for l := 0; l < p; l++ {
				s += tmp[i][l] * phi[l]
			}
			pm[i][0] = s
			for j := 1; j < p; j++ {
				pm[i][j] = tmp[i][j-1]
			}
		}
		pm[0][0] += 1
	}

	n := float64(len(z))
	sigma2 := sumSq / n
	if !(sigma2 > 0) || math.IsInf(sigma2, 0) {
		return 0, 0, false
	}
	nll := 0.5*n*(math.Log(2*math.Pi)+1+math.Log(sigma2)) + 0.5*sumLogF
	return nll, sigma2, true
}
