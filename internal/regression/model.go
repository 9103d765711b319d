// Package regression fits the per-band linear models used to describe a time
// segment. Fitting strategies are interchangeable behind Fitter and are chosen
// once, when a detector is constructed.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is returned when coordinate descent exhausts its
	// iteration budget.
	ErrNotConverged = errors.New("regression: coordinate descent did not converge")
	// ErrNoObservations is returned when there is nothing to fit.
	ErrNoObservations = errors.New("regression: no observations")
	// ErrDimensionMismatch is returned when X and y disagree on observation count.
	ErrDimensionMismatch = errors.New("regression: design and response lengths differ")
)

// Model is a fitted linear model for one band. Column 0 of the design is
// the constant term, so the intercept is folded into Coef[0] and Predict is
// a plain dot product.
type Model struct {
	Coef      []float64
	Intercept float64
	Lambda    float64
	RSS       float64
	RMSE      float64
	NObs      int
	Fitted    []float64
}

// Predict returns coef·x.
func (m *Model) Predict(x []float64) float64 {
	sum := 0.0
	for j, c := range m.Coef {
		sum += c * x[j]
	}
	return sum
}

// PredictRow returns the prediction for row i of X.
func (m *Model) PredictRow(X mat.Matrix, i int) float64 {
	sum := 0.0
	for j, c := range m.Coef {
		sum += c * X.At(i, j)
	}
	return sum
}

// NonZero returns the indices of the non-zero coefficients.
func (m *Model) NonZero() []int {
	var idx []int
	for j, c := range m.Coef {
		if c != 0 {
			idx = append(idx, j)
		}
	}
	return idx
}

// Fitter fits a model of y on the columns of X (one row per observation).
type Fitter interface {
	Fit(X mat.Matrix, y []float64) (*Model, error)
}

// Strategy names a fitting strategy in configuration.
type Strategy string

const (
	// StrategyFixedPenalty fits the Lasso at one caller supplied penalty.
	StrategyFixedPenalty Strategy = "fixed"

	// StrategyBIC selects the Lasso penalty by the Bayesian information
	// criterion over a penalty path.
	StrategyBIC Strategy = "bic"
)

// DefaultLambda is the fixed penalty used when none is configured.
const DefaultLambda = 20.0

// New returns the Fitter for the given strategy. lambda only applies to the
// fixed-penalty strategy; zero selects DefaultLambda.
func New(strategy Strategy, lambda float64) (Fitter, error) {
	switch strategy {
	case StrategyFixedPenalty, "":
		if lambda == 0 {
			lambda = DefaultLambda
		}
		if lambda < 0 {
			return nil, fmt.Errorf("regression: negative lambda %v", lambda)
		}
		return NewFixedPenalty(lambda), nil
	case StrategyBIC:
		return NewBICSelected(), nil
	default:
		return nil, fmt.Errorf("regression: unknown strategy %q", strategy)
	}
}

// FitModels fits one model per band over the observations in index. X has
// one row per observation; Y has one row per band. A nil index selects every
// observation.
func FitModels(f Fitter, X, Y mat.Matrix, index, bands []int) (map[int]*Model, error) {
	n, p := X.Dims()
	if index == nil {
		index = make([]int, n)
		for i := range index {
			index[i] = i
		}
	}
	if len(index) == 0 {
		return nil, ErrNoObservations
	}

	sub := mat.NewDense(len(index), p, nil)
	for r, i := range index {
		for j := 0; j < p; j++ {
			sub.Set(r, j, X.At(i, j))
		}
	}

	models := make(map[int]*Model, len(bands))
	for _, b := range bands {
		y := make([]float64, len(index))
		for r, i := range index {
			y[r] = Y.At(b, i)
		}
		m, err := f.Fit(sub, y)
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", b, err)
		}
		models[b] = m
	}
	return models, nil
}

// finish computes fitted values and error statistics for a coefficient vector.
func finish(X mat.Matrix, y []float64, m *Model) *Model {
	n, _ := X.Dims()
	m.NObs = n
	m.Fitted = make([]float64, n)
	rss := 0.0
	for i := 0; i < n; i++ {
		m.Fitted[i] = m.PredictRow(X, i)
		e := y[i] - m.Fitted[i]
		rss += e * e
	}
	m.RSS = rss
	m.RMSE = math.Sqrt(rss / float64(n))
	return m
}
