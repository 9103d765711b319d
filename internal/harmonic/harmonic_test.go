package harmonic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDesignMatrixLiteral(t *testing.T) {
	X := DesignMatrix([]float64{1, 2, 3}, []int{1, 2}, true)

	r, c := X.Dims()
	require.Equal(t, 6, r)
	require.Equal(t, 3, c)

	expected := [][]float64{
		{1, 1, 1},
		{1, 2, 3},
		{0.99985204, 0.99940821, 0.99866864},
		{0.01720158, 0.03439806, 0.05158437},
		{0.99940821, 0.99763355, 0.99467811},
		{0.03439806, 0.06875541, 0.10303138},
	}
	for i, row := range expected {
		for j, want := range row {
			assert.InDelta(t, want, X.At(i, j), 1e-8, "row %d col %d", i, j)
		}
	}

	w := 2 * math.Pi / 365.25
	for j, v := range []float64{1, 2, 3} {
		assert.Equal(t, math.Cos(w*v), X.At(2, j))
		assert.Equal(t, math.Sin(2*w*v), X.At(5, j))
	}
}

func TestDesignMatrixDeterministic(t *testing.T) {
	tests := []struct {
		name      string
		t         []float64
		freq      []int
		intercept bool
	}{
		{name: "no frequencies", t: []float64{730120, 730136}, freq: nil, intercept: true},
		{name: "annual", t: []float64{730120, 730136, 730152}, freq: []int{1}, intercept: true},
		{name: "three harmonics no intercept", t: []float64{1, 17, 33, 49}, freq: []int{1, 2, 3}, intercept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DesignMatrix(tt.t, tt.freq, tt.intercept)
			b := DesignMatrix(tt.t, tt.freq, tt.intercept)
			assert.True(t, mat.Equal(a, b))

			r, c := a.Dims()
			assert.Equal(t, Rows(len(tt.freq), tt.intercept), r)
			assert.Equal(t, len(tt.t), c)
		})
	}
}

func TestDesignMatrixWithoutIntercept(t *testing.T) {
	X := DesignMatrix([]float64{5, 6}, []int{1}, false)
	r, _ := X.Dims()
	require.Equal(t, 3, r)
	assert.Equal(t, 5.0, X.At(0, 0))
	assert.Equal(t, 6.0, X.At(0, 1))
}

func TestObservations(t *testing.T) {
	times := []float64{730120, 730136, 730152}
	X := Observations(times, []int{1})

	r, c := X.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 4, c)
	for i, v := range times {
		assert.Equal(t, 1.0, X.At(i, 0))
		assert.Equal(t, v, X.At(i, 1))
		assert.Equal(t, math.Cos(Omega*v), X.At(i, 2))
	}

	assert.True(t, Observations(nil, []int{1}).IsEmpty())
}
