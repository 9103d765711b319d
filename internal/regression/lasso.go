package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultMaxIter = 100000
	defaultTol     = 1e-7
)

// design is a column-standardized copy of X with a centered response. Column
// j of the original design is (z_j * scale_j + mean_j). Constant columns are
// excluded from the penalized problem and absorbed by the intercept.
type design struct {
	n      int
	cols   [][]float64
	mean   []float64
	scale  []float64
	active []bool
	yMean  float64
	yc     []float64
	ySS    float64
}

func standardize(X mat.Matrix, y []float64) (*design, error) {
	n, p := X.Dims()
	if n == 0 {
		return nil, ErrNoObservations
	}
	if n != len(y) {
		return nil, fmt.Errorf("%w: X has %d rows, y has %d", ErrDimensionMismatch, n, len(y))
	}

	d := &design{
		n:      n,
		cols:   make([][]float64, p),
		mean:   make([]float64, p),
		scale:  make([]float64, p),
		active: make([]bool, p),
		yc:     make([]float64, n),
	}

	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		d.mean[j] = mean
		d.scale[j] = math.Sqrt(variance)
		if d.scale[j] == 0 {
			continue
		}
		d.active[j] = true
		for i := range col {
			col[i] = (col[i] - mean) / d.scale[j]
		}
		d.cols[j] = col
	}

	d.yMean = stat.Mean(y, nil)
	for i, v := range y {
		d.yc[i] = v - d.yMean
	}
	d.ySS = floats.Dot(d.yc, d.yc) / float64(n)

	return d, nil
}

// lambdaMax is the smallest penalty for which every coefficient is zero.
func (d *design) lambdaMax() float64 {
	top := 0.0
	for j, ok := range d.active {
		if !ok {
			continue
		}
		g := math.Abs(floats.Dot(d.cols[j], d.yc)) / float64(d.n)
		if g > top {
			top = g
		}
	}
	return top
}

// descend minimizes (1/2n)||yc - Zb||² + λ||b||₁ by cyclic coordinate
// descent, starting from (and overwriting) b. resid must equal yc - Zb on
// entry and is kept current.
func (d *design) descend(lambda float64, b, resid []float64, maxIter int, tol float64) error {
	if d.ySS == 0 {
		return nil
	}
	nf := float64(d.n)
	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for j, ok := range d.active {
			if !ok {
				continue
			}
			old := b[j]
			rho := floats.Dot(d.cols[j], resid)/nf + old
			next := softThreshold(rho, lambda)
			if next == old {
				continue
			}
			delta := next - old
			floats.AddScaled(resid, -delta, d.cols[j])
			b[j] = next
			if delta*delta > maxDelta {
				maxDelta = delta * delta
			}
		}
		if maxDelta < tol*d.ySS {
			return nil
		}
	}
	return fmt.Errorf("%w after %d sweeps at lambda %g", ErrNotConverged, maxIter, lambda)
}

// model converts standardized coefficients back to the original scale.
func (d *design) model(X mat.Matrix, y []float64, b []float64, lambda float64) *Model {
	coef := make([]float64, len(b))
	intercept := d.yMean
	for j, ok := range d.active {
		if !ok || b[j] == 0 {
			continue
		}
		coef[j] = b[j] / d.scale[j]
		intercept -= coef[j] * d.mean[j]
	}
	if len(coef) > 0 {
		coef[0] += intercept
	}
	return finish(X, y, &Model{
		Coef:      coef,
		Intercept: intercept,
		Lambda:    lambda,
	})
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// FixedPenalty fits an L1-regularized regression at one penalty. The
// predictors are standardized to unit variance before penalizing and the
// intercept is never penalized, as in glmnet, so Lambda is expressed in the
// units of the response.
type FixedPenalty struct {
	Lambda  float64
	MaxIter int
	Tol     float64
}

// NewFixedPenalty returns a fixed-penalty fitter.
func NewFixedPenalty(lambda float64) *FixedPenalty {
	return &FixedPenalty{
		Lambda:  lambda,
		MaxIter: defaultMaxIter,
		Tol:     defaultTol,
	}
}

func (f *FixedPenalty) Fit(X mat.Matrix, y []float64) (*Model, error) {
	d, err := standardize(X, y)
	if err != nil {
		return nil, err
	}
	b := make([]float64, len(d.active))
	resid := append([]float64(nil), d.yc...)
	if err := d.descend(f.Lambda, b, resid, f.MaxIter, f.Tol); err != nil {
		return nil, err
	}
	return d.model(X, y, b, f.Lambda), nil
}

// BICSelected fits the Lasso along a geometric path of penalties, from the
// smallest penalty that zeroes every coefficient down to Eps times that, and
// keeps the fit minimizing n·log(RSS/n) + log(n)·df, where df is the number of
// non-zero coefficients.
type BICSelected struct {
	NLambda int
	Eps     float64
	MaxIter int
	Tol     float64
}

// NewBICSelected returns a criterion-selected fitter with a 100 step path.
func NewBICSelected() *BICSelected {
	return &BICSelected{
		NLambda: 100,
		Eps:     1e-3,
		MaxIter: defaultMaxIter,
		Tol:     defaultTol,
	}
}

func (f *BICSelected) Fit(X mat.Matrix, y []float64) (*Model, error) {
	d, err := standardize(X, y)
	if err != nil {
		return nil, err
	}

	p := len(d.active)
	b := make([]float64, p)
	resid := append([]float64(nil), d.yc...)

	lmax := d.lambdaMax()
	if lmax == 0 || f.NLambda < 1 {
		return d.model(X, y, b, 0), nil
	}

	nf := float64(d.n)
	best := make([]float64, p)
	bestLambda := lmax
	bestBIC := math.Inf(1)

	for k, lambda := range path(lmax, f.Eps, f.NLambda) {
		if err := d.descend(lambda, b, resid, f.MaxIter, f.Tol); err != nil {
			return nil, err
		}
		rss := floats.Dot(resid, resid)
		df := 0
		for _, v := range b {
			if v != 0 {
				df++
			}
		}
		bic := nf*math.Log(rss/nf) + math.Log(nf)*float64(df)
		if k == 0 || bic < bestBIC {
			bestBIC = bic
			bestLambda = lambda
			copy(best, b)
		}
	}

	return d.model(X, y, best, bestLambda), nil
}

// path returns n penalties spaced geometrically from top down to eps*top.
func path(top, eps float64, n int) []float64 {
	if n == 1 {
		return []float64{top}
	}
	out := make([]float64, n)
	step := math.Log(eps) / float64(n-1)
	for k := range out {
		out[k] = top * math.Exp(step*float64(k))
	}
	return out
}
