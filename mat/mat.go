// Package mat builds gonum matrices used by the regression and ARIMA fits
package mat

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrColMismatch  = errors.New("column size mismatch")
	ErrInvalidLag   = errors.New("lag must be at least 1")
	ErrShortForLags = errors.New("series too short for the requested lags")
)

// NewDenseFromArray converts a row major slice of slices into a dense matrix.
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if m == 0 || n <= 0 {
		return nil, mat.ErrZeroLength
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// LagMatrix builds the autoregressive design for z with p lags. Row i regresses z[p+i] on
// z[p+i-1], ..., z[i], so column j holds lag j+1. The target is returned as a column matrix.
func LagMatrix(z []float64, p int) (*mat.Dense, *mat.Dense, error) {
	if p < 1 {
		return nil, nil, ErrInvalidLag
	}
	rows := len(z) - p
	if rows < 1 {
		return nil, nil, fmt.Errorf("%d points with %d lags, %w", len(z), p, ErrShortForLags)
	}

	x := mat.NewDense(rows, p, nil)
	y := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		t := p + i
		for j := 0; j < p; j++ {
			x.Set(i, j, z[t-j-1])
		}
		y.Set(i, 0, z[t])
	}
	return x, y, nil
}
