// Package structbreak holds tests for a structural break in a univariate
// series, used to check the residuals of a fitted segment.
package structbreak

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SDType selects how the process standard deviation is estimated.
type SDType string

const (
	// SampleSD is the bias corrected sample standard deviation.
	SampleSD SDType = "SD"
	// MovingRange estimates the standard deviation from the mean absolute
	// difference of consecutive observations.
	MovingRange SDType = "MR"
)

const (
	DefaultLambda = 0.2
	DefaultCrit   = 3.0

	// d2 is the expected range of two standard normal variables.
	d2 = 1.128
)

var (
	ErrTooShort  = errors.New("structbreak: need at least two observations")
	ErrBadLambda = errors.New("structbreak: lambda must be in (0, 1]")
)

// Result is the outcome of a structural break test.
type Result struct {
	Method string

	// Process is the test statistic at every observation.
	Process []float64

	// Index is the first observation where the process leaves its control
	// limits, or the observation with the largest absolute process value
	// when it never does.
	Index  int
	Score  float64
	Signif bool
}

// EWMA runs an exponentially weighted moving average control chart over y,
// which must be in chronological order. The process starts at the mean of y
// and a break is signalled the first time it strays further from the mean
// than crit standard deviations of the smoothed process.
func EWMA(y []float64, lambda, crit float64, sdType SDType) (Result, error) {
	n := len(y)
	if n < 2 {
		return Result{}, ErrTooShort
	}
	if !(lambda > 0 && lambda <= 1) {
		return Result{}, fmt.Errorf("%w: got %v", ErrBadLambda, lambda)
	}

	var sd float64
	switch sdType {
	case SampleSD, "":
		sd = stat.StdDev(y, nil) / c4(n)
	case MovingRange:
		sd = movingRangeSD(y)
	default:
		return Result{}, fmt.Errorf("structbreak: unknown standard deviation type %q", sdType)
	}

	center := stat.Mean(y, nil)
	process := make([]float64, n)
	z := center
	for j, v := range y {
		z = lambda*v + (1-lambda)*z
		process[j] = z
	}

	res := Result{Method: "EWMA", Process: process}

	// A constant series has no spread to measure a departure against.
	if sd > 0 {
		width := crit * sd * math.Sqrt(lambda/(2-lambda))
		for j, z := range process {
			limit := width * math.Sqrt(1-math.Pow(1-lambda, float64(2*(j+1))))
			if math.Abs(z-center) > limit {
				res.Index, res.Score, res.Signif = j, z, true
				return res, nil
			}
		}
	}

	abs := make([]float64, n)
	for j, z := range process {
		abs[j] = math.Abs(z)
	}
	res.Index = floats.MaxIdx(abs)
	res.Score = process[res.Index]
	return res, nil
}

// c4 is the bias correction factor for the sample standard deviation of n
// normal observations.
func c4(n int) float64 {
	fn := float64(n)
	a, _ := math.Lgamma(fn / 2)
	b, _ := math.Lgamma((fn - 1) / 2)
	return math.Sqrt(2/(fn-1)) * math.Exp(a-b)
}

func movingRangeSD(y []float64) float64 {
	diff := make([]float64, len(y)-1)
	for i := range diff {
		diff[i] = math.Abs(y[i+1] - y[i])
	}
	return floats.Sum(diff) / float64(len(diff)) / d2
}
