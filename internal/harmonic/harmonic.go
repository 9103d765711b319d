// Package harmonic builds the Fourier-style regressors used to model the
// seasonal cycle of a reflectance time series.
package harmonic

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DaysPerYear is the length of the annual cycle, in days.
const DaysPerYear = 365.25

// Omega is the angular frequency of the annual cycle.
const Omega = 2 * math.Pi / DaysPerYear

// DesignMatrix creates the matrix of independent variables for the times t.
// The matrix has one row per basis function and one column per time: an
// optional intercept row of ones, the times themselves, then a cosine and a
// sine row for every frequency in freq.
//
// DesignMatrix([]float64{1, 2, 3}, []int{1, 2}, true) returns
//
//	[1.        1.        1.       ]
//	[1.        2.        3.       ]
//	[0.99985204 0.99940821 0.99866864]
//	[0.01720158 0.03439806 0.05158437]
//	[0.99940821 0.99763355 0.99467811]
//	[0.03439806 0.06875541 0.10303138]
//
// An empty t yields an empty matrix.
func DesignMatrix(t []float64, freq []int, intercept bool) *mat.Dense {
	if len(t) == 0 {
		return &mat.Dense{}
	}

	rows := Rows(len(freq), intercept)
	X := mat.NewDense(rows, len(t), nil)

	r := 0
	if intercept {
		for j := range t {
			X.Set(r, j, 1)
		}
		r++
	}
	X.SetRow(r, t)
	r++

	for _, f := range freq {
		for j, v := range t {
			X.Set(r, j, math.Cos(float64(f)*Omega*v))
			X.Set(r+1, j, math.Sin(float64(f)*Omega*v))
		}
		r += 2
	}

	return X
}

// Observations returns the observation-major form of DesignMatrix with an
// intercept: one row per time, columns [1, t, cos, sin, ...].
func Observations(t []float64, freq []int) *mat.Dense {
	X := DesignMatrix(t, freq, true)
	if X.IsEmpty() {
		return X
	}
	var out mat.Dense
	out.CloneFrom(X.T())
	return &out
}

// Rows returns the number of basis functions produced for n frequencies.
func Rows(n int, intercept bool) int {
	rows := 1 + 2*n
	if intercept {
		rows++
	}
	return rows
}
