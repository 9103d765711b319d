// Package tmask flags observations that are likely contaminated by cloud or
// cloud shadow by comparing them against a robust seasonal fit of the green
// and shortwave-infrared bands (the multitemporal mask of CCDC, Zhu and
// Woodcock 2014).
package tmask

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/landchange/internal/harmonic"
	"github.com/chrissnell/landchange/internal/robust"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultCrit is the residual, in reflectance units, beyond which an
	// observation is treated as cloud (green too bright) or shadow (SWIR1
	// too dark).
	DefaultCrit = 400.0

	// DefaultGreenBand is the Landsat green band index.
	DefaultGreenBand = 1

	// DefaultSWIR1Band is the Landsat shortwave-infrared band index.
	DefaultSWIR1Band = 4
)

var (
	// ErrBandOutOfRange is returned when a mask band is not present in Y.
	ErrBandOutOfRange = errors.New("tmask: band index out of range")
	// ErrLengthMismatch is returned when x and Y disagree on observation count.
	ErrLengthMismatch = errors.New("tmask: dates and observations differ in length")
)

// Options configures the mask.
type Options struct {
	Crit      float64
	GreenBand int
	SWIR1Band int
	Robust    robust.Options
}

// DefaultOptions returns the CCDC defaults.
func DefaultOptions() Options {
	return Options{
		Crit:      DefaultCrit,
		GreenBand: DefaultGreenBand,
		SWIR1Band: DefaultSWIR1Band,
		Robust:    robust.DefaultOptions(),
	}
}

// Design returns the five column design used by the mask: an intercept, the
// annual harmonic and a harmonic whose period is the window length rounded up
// to whole years.
func Design(x []float64, span float64) *mat.Dense {
	if len(x) == 0 {
		return &mat.Dense{}
	}
	years := math.Ceil(span / harmonic.DaysPerYear)
	if years < 1 {
		years = 1
	}
	w := harmonic.Omega

	X := mat.NewDense(len(x), 5, nil)
	for i, t := range x {
		X.SetRow(i, []float64{
			1,
			math.Cos(w * t),
			math.Sin(w * t),
			math.Cos(w / years * t),
			math.Sin(w / years * t),
		})
	}
	return X
}

// Residuals fits the green and SWIR1 bands robustly and returns their
// residuals. Y has one row per band and one column per date in x.
func Residuals(x []float64, Y mat.Matrix, span float64, opts Options) (green, swir1 []float64, err error) {
	bands, n := Y.Dims()
	if n != len(x) {
		return nil, nil, fmt.Errorf("%w: %d dates, %d observations", ErrLengthMismatch, len(x), n)
	}
	for _, b := range []int{opts.GreenBand, opts.SWIR1Band} {
		if b < 0 || b >= bands {
			return nil, nil, fmt.Errorf("%w: band %d of %d", ErrBandOutOfRange, b, bands)
		}
	}
	if n == 0 {
		return nil, nil, nil
	}

	X := Design(x, span)

	g, err := robust.Fit(X, mat.Row(nil, opts.GreenBand, Y), opts.Robust)
	if err != nil {
		return nil, nil, fmt.Errorf("green band fit: %w", err)
	}
	s, err := robust.Fit(X, mat.Row(nil, opts.SWIR1Band, Y), opts.Robust)
	if err != nil {
		return nil, nil, fmt.Errorf("swir1 band fit: %w", err)
	}
	return g.Resid, s.Resid, nil
}

// Mask returns one flag per date in x: true keeps the observation, false
// marks it as probable cloud or shadow.
func Mask(x []float64, Y mat.Matrix, span float64, opts Options) ([]bool, error) {
	green, swir1, err := Residuals(x, Y, span, opts)
	if err != nil {
		return nil, err
	}
	return Apply(green, swir1, opts.Crit), nil
}

// Apply thresholds precomputed residuals.
func Apply(green, swir1 []float64, crit float64) []bool {
	keep := make([]bool, len(green))
	for i := range green {
		keep[i] = green[i] < crit && swir1[i] > -crit
	}
	return keep
}
