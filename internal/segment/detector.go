// Package segment finds structural breaks in a multi-band time series of
// reflectance observations for a single location. It alternates between
// accumulating a stable training window and monitoring new observations
// against per-band harmonic Lasso models, recording one segment per stable
// period.
package segment

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/landchange/internal/regression"
	"github.com/chrissnell/landchange/internal/tmask"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientObservations is returned when the series is too short
	// to train and monitor even once.
	ErrInsufficientObservations = errors.New("segment: not enough observations")

	// ErrInvalidIndexSet is returned when a band index does not exist in Y.
	ErrInvalidIndexSet = errors.New("segment: band index outside response matrix")

	// ErrDimensionMismatch is returned when X and Y disagree on the number
	// of observations, or X lacks the constant and date columns.
	ErrDimensionMismatch = errors.New("segment: malformed design or response matrix")

	// ErrNotRun is returned by RobustRecords before Run has completed.
	ErrNotRun = errors.New("segment: detector has not been run")
)

// minRMSEFloor is the smallest normal float64, the effective "no floor".
const minRMSEFloor = 0x1p-1022

// Detector runs break detection for one location. It is not safe for
// concurrent use; run independent locations on independent detectors.
type Detector struct {
	cfg    Config
	logger *zap.SugaredLogger
	fitter regression.Fitter
	mask   tmask.Options

	x *mat.Dense
	y *mat.Dense

	nCoef      int
	nBand      int
	minObs     int
	minRMSE    float64
	fitBands   []int
	testBands  []int
	modelBands []int

	st    state
	store *Store
	ran   bool
}

// New validates the inputs and returns a detector ready to Run. X has one
// row per observation with a constant in column 0 and the ordinal date in
// column 1; Y has one row per band and one column per observation.
func New(X, Y mat.Matrix, cfg Config, logger *zap.SugaredLogger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	nObs, nCoef := X.Dims()
	nBand, nY := Y.Dims()
	if nObs != nY {
		return nil, fmt.Errorf("%w: X has %d observations, Y has %d", ErrDimensionMismatch, nObs, nY)
	}
	if nCoef < 2 {
		return nil, fmt.Errorf("%w: X needs constant and date columns, has %d", ErrDimensionMismatch, nCoef)
	}

	fitBands, err := bandSet(cfg.FitIndices, nBand, "fit")
	if err != nil {
		return nil, err
	}
	testBands, err := bandSet(cfg.TestIndices, nBand, "test")
	if err != nil {
		return nil, err
	}
	for _, b := range []int{cfg.GreenBand, cfg.SWIR1Band} {
		if b < 0 || b >= nBand {
			return nil, fmt.Errorf("%w: mask band %d, Y has %d bands", ErrInvalidIndexSet, b, nBand)
		}
	}

	if cfg.Consecutive < 1 {
		return nil, fmt.Errorf("segment: consecutive must be positive, got %d", cfg.Consecutive)
	}

	fitter, err := regression.New(cfg.Strategy, cfg.Lambda)
	if err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:        cfg,
		logger:     logger,
		fitter:     fitter,
		x:          mat.DenseCopyOf(X),
		y:          mat.DenseCopyOf(Y),
		nCoef:      nCoef,
		nBand:      nBand,
		minObs:     cfg.MinObs,
		minRMSE:    cfg.MinRMSE,
		fitBands:   fitBands,
		testBands:  testBands,
		modelBands: union(fitBands, testBands),
	}

	d.mask = tmask.DefaultOptions()
	d.mask.GreenBand = cfg.GreenBand
	d.mask.SWIR1Band = cfg.SWIR1Band
	if cfg.MaskCrit > 0 {
		d.mask.Crit = cfg.MaskCrit
	}

	if d.minObs <= 0 {
		d.minObs = int(float64(nCoef) * 1.5)
	}
	if d.minRMSE <= 0 {
		d.minRMSE = minRMSEFloor
	}

	d.logParameters()

	if nObs < d.minObs+cfg.Consecutive {
		return nil, fmt.Errorf("%w: n = %d, need at least %d", ErrInsufficientObservations, nObs, d.minObs+cfg.Consecutive)
	}

	d.Reset()
	return d, nil
}

// Reset discards all results and returns the detector to its initial state.
func (d *Detector) Reset() {
	d.st = state{
		phase:    Accumulating,
		start:    0,
		here:     d.minObs,
		prevHere: d.minObs,
		X:        mat.DenseCopyOf(d.x),
		Y:        mat.DenseCopyOf(d.y),
	}
	d.store = newStore(d.nCoef, len(d.fitBands), d.cfg.Px, d.cfg.Py)
	d.store.open(int(d.x.At(0, 1)))
	d.ran = false
}

// Run processes the whole series. A fit error aborts the run and is returned
// unchanged; the detector is left as it was when the error occurred.
func (d *Detector) Run() error {
	s := d.st
	s.trainedDate = 0

	var err error
	for s.running() {
		for s.phase == Accumulating && s.canMonitor(d.cfg.Consecutive) {
			if s, err = d.train(s); err != nil {
				d.st = s
				return err
			}
			s.here++
		}

		for s.phase == Monitoring && s.canMonitor(d.cfg.Consecutive) {
			if s, err = d.updateModel(s); err != nil {
				d.st = s
				return err
			}
			s = d.monitor(s)
			s.here++
		}

		s.here++
	}

	d.st = s
	d.ran = true
	d.logger.Debugf("run complete: %d records", d.store.Len())
	return nil
}

// Records returns the record store.
func (d *Detector) Records() *Store {
	return d.store
}

// Ran reports whether Run has completed.
func (d *Detector) Ran() bool {
	return d.ran
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase {
	return d.st.phase
}

// FitBands returns the bands whose coefficients are recorded, in record
// column order.
func (d *Detector) FitBands() []int {
	return append([]int(nil), d.fitBands...)
}

// NCoef returns the number of model coefficients.
func (d *Detector) NCoef() int {
	return d.nCoef
}

// MinObs returns the effective minimum training window size.
func (d *Detector) MinObs() int {
	return d.minObs
}

// SpanTime returns the days covered by the current window. After Run the
// window end is clamped to the last observation.
func (d *Detector) SpanTime() float64 {
	s := d.st
	if s.here >= s.n() {
		s.here = s.n() - 1
	}
	if s.start > s.here {
		return 0
	}
	return s.spanTime()
}

// SpanIndex returns the number of observations between the window start
// and the current position.
func (d *Detector) SpanIndex() int {
	return d.st.spanIndex()
}

// Working returns the working data after noise masking. Observations
// removed from a committed training window are absent.
func (d *Detector) Working() (X, Y *mat.Dense) {
	return d.st.X, d.st.Y
}

// normalizedNorm returns the Euclidean norm, across the test bands, of the
// absolute residuals of observation i divided by the floored model RMSE.
func (d *Detector) normalizedNorm(X, Y *mat.Dense, models map[int]*regression.Model, i int) float64 {
	sum := 0.0
	for _, b := range d.testBands {
		m := models[b]
		z := math.Abs(Y.At(b, i)-m.PredictRow(X, i)) / max(d.minRMSE, m.RMSE)
		sum += z * z
	}
	return math.Sqrt(sum)
}

func (d *Detector) logParameters() {
	d.logger.Infow("using parameters",
		"consecutive", d.cfg.Consecutive,
		"threshold", d.cfg.Threshold,
		"min_obs", d.minObs,
		"min_rmse", d.minRMSE,
		"n_coef", d.nCoef,
		"strategy", fmt.Sprintf("%T", d.fitter),
	)
}

// bandSet validates a band index list; nil selects every band.
func bandSet(idx []int, nBand int, name string) ([]int, error) {
	if idx == nil {
		all := make([]int, nBand)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: empty %s indices", ErrInvalidIndexSet, name)
	}
	for _, b := range idx {
		if b < 0 || b >= nBand {
			return nil, fmt.Errorf("%w: %s index %d, Y has %d bands", ErrInvalidIndexSet, name, b, nBand)
		}
	}
	return append([]int(nil), idx...), nil
}

func union(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, v := range append(append([]int(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
