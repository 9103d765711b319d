package regression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// line returns X = [1, i] and y = a + b*i for i in [0, n).
func line(n int, a, b float64) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		X.Set(i, 1, float64(i))
		y[i] = a + b*float64(i)
	}
	return X, y
}

func TestFixedPenalty(t *testing.T) {
	X, y := line(10, 5, 2)
	sdX := math.Sqrt(8.25)

	tests := []struct {
		name      string
		lambda    float64
		slope     float64
		intercept float64
	}{
		{name: "no penalty is least squares", lambda: 0, slope: 2, intercept: 5},
		{name: "soft thresholded slope", lambda: 1, slope: (2*sdX - 1) / sdX, intercept: 14 - 4.5*(2*sdX-1)/sdX},
		{name: "penalty above lambda max", lambda: 100, slope: 0, intercept: 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFixedPenalty(tt.lambda).Fit(X, y)
			require.NoError(t, err)
			require.Len(t, m.Coef, 2)

			assert.InDelta(t, tt.slope, m.Coef[1], 1e-6)
			assert.InDelta(t, tt.intercept, m.Coef[0], 1e-6)
			assert.InDelta(t, tt.intercept, m.Intercept, 1e-6)
			assert.Equal(t, 10, m.NObs)
			assert.InDelta(t, math.Sqrt(m.RSS/10), m.RMSE, 1e-12)
			assert.InDelta(t, m.Fitted[3], m.PredictRow(X, 3), 1e-12)
		})
	}
}

func TestFixedPenaltyConstantResponse(t *testing.T) {
	X, _ := line(6, 0, 0)
	y := []float64{7, 7, 7, 7, 7, 7}

	m, err := NewFixedPenalty(DefaultLambda).Fit(X, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 0}, m.Coef)
	assert.Equal(t, 0.0, m.RMSE)
	assert.Equal(t, []int{0}, m.NonZero())
}

func TestFixedPenaltyNotConverged(t *testing.T) {
	n := 12
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		X.Set(i, 0, 1)
		X.Set(i, 1, x)
		X.Set(i, 2, x+0.01*float64(i%3))
		y[i] = x
	}

	f := NewFixedPenalty(0)
	f.MaxIter = 1
	_, err := f.Fit(X, y)
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestBICSelected(t *testing.T) {
	n := 40
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		noise := 0.1
		if i%2 == 1 {
			noise = -0.1
		}
		X.Set(i, 0, 1)
		X.Set(i, 1, float64(i))
		X.Set(i, 2, float64((i*7)%5))
		y[i] = 3 + 2*float64(i) + noise
	}

	m, err := NewBICSelected().Fit(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, m.Coef[1], 0.05)
	assert.Greater(t, m.Lambda, 0.0)
	assert.Less(t, m.RMSE, 0.5)
	assert.InDelta(t, math.Sqrt(m.RSS/float64(n)), m.RMSE, 1e-12)
}

func TestBICSelectedConstantResponse(t *testing.T) {
	X, _ := line(5, 0, 0)
	m, err := NewBICSelected().Fit(X, []float64{2, 2, 2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, m.Coef)
	assert.Equal(t, 0.0, m.Lambda)
}

func TestNew(t *testing.T) {
	f, err := New(StrategyFixedPenalty, 0)
	require.NoError(t, err)
	require.IsType(t, &FixedPenalty{}, f)
	assert.Equal(t, DefaultLambda, f.(*FixedPenalty).Lambda)

	f, err = New("", 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, f.(*FixedPenalty).Lambda)

	f, err = New(StrategyBIC, 0)
	require.NoError(t, err)
	assert.IsType(t, &BICSelected{}, f)

	_, err = New("lars", 0)
	assert.Error(t, err)

	_, err = New(StrategyFixedPenalty, -1)
	assert.Error(t, err)
}

func TestFitModels(t *testing.T) {
	X, _ := line(10, 0, 0)
	Y := mat.NewDense(3, 10, nil)
	for i := 0; i < 10; i++ {
		Y.Set(0, i, 1+float64(i))
		Y.Set(1, i, 100)
		Y.Set(2, i, -3*float64(i))
	}

	models, err := FitModels(NewFixedPenalty(0), X, Y, []int{2, 3, 4, 5}, []int{0, 2})
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.NotContains(t, models, 1)

	assert.Equal(t, 4, models[0].NObs)
	assert.InDelta(t, 1, models[0].Coef[0], 1e-9)
	assert.InDelta(t, 1, models[0].Coef[1], 1e-9)
	assert.InDelta(t, -3, models[2].Coef[1], 1e-9)
	assert.InDelta(t, 6, models[0].Predict([]float64{1, 5}), 1e-9)

	all, err := FitModels(NewFixedPenalty(0), X, Y, nil, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 10, all[1].NObs)

	_, err = FitModels(NewFixedPenalty(0), X, Y, []int{}, []int{0})
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestPath(t *testing.T) {
	p := path(10, 1e-3, 4)
	require.Len(t, p, 4)
	assert.InDelta(t, 10, p[0], 1e-12)
	assert.InDelta(t, 0.01, p[3], 1e-12)
	assert.InDelta(t, p[0]*p[3], p[1]*p[2], 1e-12)
}
