package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func workingDates(d *Detector) []int {
	X, _ := d.Working()
	n, _ := X.Dims()
	out := make([]int, n)
	for i := range out {
		out[i] = int(X.At(i, 1))
	}
	return out
}

func TestTrainDropsUnstableStartAndClouds(t *testing.T) {
	X, Y := series(200, 120, 1000)
	// Band 0 is tested but not examined by the mask, so the outlier survives
	// masking and makes the first training window unstable at its start.
	Y.Set(0, 0, Y.At(0, 0)+5000)
	// A bright green observation inside the first window is a cloud.
	Y.Set(1, 10, Y.At(1, 10)+3000)

	d := newDetector(t, X, Y, threeBandConfig())
	require.NoError(t, d.Run())

	store := d.Records()
	require.Equal(t, 2, store.Len())
	assert.Equal(t, dateOf(1), store.At(0).Start)
	assert.Equal(t, dateOf(121), store.At(0).Break)
	assert.Equal(t, dateOf(121), store.At(1).Start)

	dates := workingDates(d)
	assert.Len(t, dates, 199)
	assert.NotContains(t, dates, dateOf(10))
	assert.Contains(t, dates, dateOf(0))
	assert.Contains(t, dates, dateOf(11))

	_, WY := d.Working()
	bands, cols := WY.Dims()
	assert.Equal(t, 3, bands)
	assert.Equal(t, 199, cols)
}

func TestTrainNotEnoughUnmaskedObservations(t *testing.T) {
	clouds := []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		name   string
		clouds []int
		phase  Phase
		nWork  int
	}{
		{name: "clear", phase: Monitoring, nWork: 200},
		{name: "cloudy", clouds: clouds, phase: Accumulating, nWork: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, Y := series(200, -1, 0)
			for _, i := range tt.clouds {
				Y.Set(1, i, Y.At(1, i)+3000)
			}

			cfg := threeBandConfig()
			cfg.MinObs = 190
			d := newDetector(t, X, Y, cfg)
			require.NoError(t, d.Run())

			assert.Equal(t, tt.phase, d.Phase())
			assert.Len(t, workingDates(d), tt.nWork)

			require.Equal(t, 1, d.Records().Len())
			rec := d.Records().Last()
			assert.True(t, rec.Open())
			if tt.phase == Accumulating {
				assert.True(t, mat.Equal(rec.Coef, mat.NewDense(4, 3, nil)))
			} else {
				assert.NotZero(t, rec.Coef.At(0, 0))
			}
		})
	}
}

func TestResiduals(t *testing.T) {
	X, Y := series(200, 120, 1000)
	d := newDetector(t, X, Y, threeBandConfig())

	_, _, err := d.Residuals(&Record{}, 0)
	assert.ErrorIs(t, err, ErrNotRun)

	require.NoError(t, d.Run())
	first := d.Records().At(0)

	dates, resid, err := d.Residuals(first, 0)
	require.NoError(t, err)
	require.Len(t, dates, 121)
	require.Len(t, resid, 121)
	assert.Equal(t, float64(dateOf(0)), dates[0])
	assert.Equal(t, float64(dateOf(120)), dates[120])
	for _, r := range resid {
		assert.InDelta(t, noise, math.Abs(r), 15)
	}

	_, _, err = d.Residuals(first, 7)
	assert.ErrorIs(t, err, ErrInvalidIndexSet)
}
