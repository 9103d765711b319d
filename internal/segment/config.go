package segment

import (
	"github.com/chrissnell/landchange/internal/regression"
	"github.com/chrissnell/landchange/internal/tmask"
)

// Config holds the detection parameters for one location.
type Config struct {
	// Consecutive is the number of observations that must all deviate
	// before a break is declared.
	Consecutive int

	// Threshold is the critical value for the norm of the normalized
	// residuals across the test bands.
	Threshold float64

	// MinObs is the minimum number of usable observations in a training
	// window. Zero selects 1.5 times the number of coefficients.
	MinObs int

	// MinRMSE floors the RMSE used to normalize residuals. Zero leaves the
	// floor at the smallest normal float64, so it never binds.
	MinRMSE float64

	// FitIndices are the bands whose models are recorded. Nil means all.
	FitIndices []int

	// TestIndices are the bands used by the stability and monitoring
	// tests. Nil means all.
	TestIndices []int

	// Strategy selects how per-band Lasso models are fit.
	Strategy regression.Strategy

	// Lambda is the fixed-penalty strength. Zero selects the default.
	Lambda float64

	// MaskCrit is the multitemporal mask critical value. Zero selects the
	// default.
	MaskCrit float64

	// GreenBand and SWIR1Band are the bands examined by the multitemporal
	// mask.
	GreenBand int
	SWIR1Band int

	// Px and Py locate the series; they are copied onto every record.
	Px int
	Py int
}

// DefaultConfig returns the standard detection parameters.
func DefaultConfig() Config {
	return Config{
		Consecutive: 5,
		Threshold:   2.56,
		Strategy:    regression.StrategyFixedPenalty,
		Lambda:      regression.DefaultLambda,
		MaskCrit:    tmask.DefaultCrit,
		GreenBand:   tmask.DefaultGreenBand,
		SWIR1Band:   tmask.DefaultSWIR1Band,
	}
}
