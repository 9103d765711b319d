// Package robust fits linear models by M-estimation using iteratively
// reweighted least squares, so that outlying observations (clouds, shadows,
// sensor glitches) have bounded influence on the coefficients.
package robust

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned when the weighted design has no usable rank.
	ErrSingular = errors.New("robust: weighted design matrix is singular")
	// ErrDimensionMismatch is returned when X and y disagree on observation count.
	ErrDimensionMismatch = errors.New("robust: design and response lengths differ")
	// ErrNoObservations is returned for an empty design.
	ErrNoObservations = errors.New("robust: no observations")
)

// gaussianMADConstant is the 0.75 quantile of the standard normal; dividing
// the median absolute deviation by it gives a consistent estimate of sigma.
const gaussianMADConstant = 0.6744897501960817

// rcond is the relative singular value cutoff used by the least squares solve.
const rcond = 1e-12

// Options controls the IRLS iteration.
type Options struct {
	Norm    Norm
	MaxIter int
	Tol     float64
}

// DefaultOptions returns Tukey biweight, 50 iterations and a 1e-8 tolerance
// on the change in the robust criterion.
func DefaultOptions() Options {
	return Options{
		Norm:    NewTukeyBiweight(),
		MaxIter: 50,
		Tol:     1e-8,
	}
}

// Result holds a robust fit.
type Result struct {
	Params     []float64
	Fitted     []float64
	Resid      []float64
	Weights    []float64
	Scale      float64
	Iterations int
	Converged  bool
}

// RSS returns the residual sum of squares of the fit.
func (r *Result) RSS() float64 {
	rss := 0.0
	for _, e := range r.Resid {
		rss += e * e
	}
	return rss
}

// Fit estimates y ~ X robustly. X has one row per observation. The iteration
// starts from ordinary least squares and re-estimates the residual scale
// (MAD about zero) on every pass.
func Fit(X mat.Matrix, y []float64, opts Options) (*Result, error) {
	n, _ := X.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: X has %d rows, y has %d", ErrDimensionMismatch, n, len(y))
	}
	if opts.Norm == nil {
		opts.Norm = NewTukeyBiweight()
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 50
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	params, err := WeightedLeastSquares(X, y, weights)
	if err != nil {
		return nil, err
	}
	fitted, resid := residuals(X, y, params)
	scale := MAD(resid)
	deviance := criterion(opts.Norm, resid, scale)

	res := &Result{
		Params:  params,
		Fitted:  fitted,
		Resid:   resid,
		Weights: weights,
		Scale:   scale,
	}

	for iter := 1; iter <= opts.MaxIter; iter++ {
		if scale == 0 {
			// Perfect fit: every standardized residual is undefined.
			res.Converged = true
			break
		}

		w := make([]float64, n)
		for i, e := range resid {
			w[i] = opts.Norm.Weight(e / scale)
		}

		params, err = WeightedLeastSquares(X, y, w)
		if err != nil {
			return nil, fmt.Errorf("IRLS iteration %d: %w", iter, err)
		}
		fitted, resid = residuals(X, y, params)
		scale = MAD(resid)
		next := criterion(opts.Norm, resid, scale)

		res.Params, res.Fitted, res.Resid, res.Weights, res.Scale = params, fitted, resid, w, scale
		res.Iterations = iter

		if math.Abs(next-deviance) <= opts.Tol {
			res.Converged = true
			break
		}
		deviance = next
	}

	return res, nil
}

// WeightedLeastSquares solves min Σ w_i (y_i - x_i·β)² using the SVD of the
// row-scaled design, so rank-deficient designs get the minimum-norm solution.
func WeightedLeastSquares(X mat.Matrix, y, w []float64) ([]float64, error) {
	n, p := X.Dims()
	if n != len(y) || n != len(w) {
		return nil, fmt.Errorf("%w: X has %d rows, y has %d, weights %d", ErrDimensionMismatch, n, len(y), len(w))
	}
	if n == 0 || p == 0 {
		return nil, ErrNoObservations
	}

	Xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			Xw.Set(i, j, sw*X.At(i, j))
		}
		yw.SetVec(i, sw*y[i])
	}

	var svd mat.SVD
	if ok := svd.Factorize(Xw, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrSingular)
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, ErrSingular
	}

	beta := mat.NewVecDense(p, nil)
	svd.SolveVecTo(beta, yw, rank)

	out := make([]float64, p)
	for j := range out {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}

// MAD returns the median absolute deviation about zero, scaled to be a
// consistent estimator of the standard deviation for normal errors.
func MAD(resid []float64) float64 {
	if len(resid) == 0 {
		return 0
	}
	abs := make([]float64, len(resid))
	for i, e := range resid {
		abs[i] = math.Abs(e)
	}
	return Median(abs) / gaussianMADConstant
}

// Median returns the sample median, averaging the two middle values for an
// even count. The input is not modified.
func Median(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func residuals(X mat.Matrix, y, params []float64) (fitted, resid []float64) {
	n, p := X.Dims()
	fitted = make([]float64, n)
	resid = make([]float64, n)
	for i := 0; i < n; i++ {
		f := 0.0
		for j := 0; j < p; j++ {
			f += X.At(i, j) * params[j]
		}
		fitted[i] = f
		resid[i] = y[i] - f
	}
	return fitted, resid
}

func criterion(norm Norm, resid []float64, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range resid {
		sum += norm.Rho(e / scale)
	}
	return sum
}
