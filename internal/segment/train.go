package segment

import (
	"fmt"

	"github.com/chrissnell/landchange/internal/harmonic"
	"github.com/chrissnell/landchange/internal/regression"
	"github.com/chrissnell/landchange/internal/tmask"
	"gonum.org/v1/gonum/mat"
)

// train tries to find a stable training window ending at here. It commits
// the noise-masked data and moves to Monitoring on success; otherwise it
// leaves the phase unchanged, possibly shrinking the window from the left.
func (d *Detector) train(s state) (state, error) {
	if s.spanTime() <= harmonic.DaysPerYear || s.spanIndex() < d.nCoef {
		d.logger.Debug("could not train - moving forward")
		return s, nil
	}

	// Noise removal over the window plus the observations ahead of it.
	end := s.here + d.cfg.Consecutive
	dates := make([]float64, 0, end-s.start)
	for i := s.start; i < end; i++ {
		dates = append(dates, s.date(i))
	}
	window := s.Y.Slice(0, d.nBand, s.start, end)

	keep, err := tmask.Mask(dates, window, s.spanTime(), d.mask)
	if err != nil {
		return s, fmt.Errorf("multitemporal mask: %w", err)
	}

	usable := 0
	for _, k := range keep[:len(keep)-d.cfg.Consecutive] {
		if k {
			usable++
		}
	}
	if usable < d.minObs {
		d.logger.Debug("multitemporal masking - not enough obs")
		return s, nil
	}

	X, Y := dropMasked(s.X, s.Y, s.start, keep)

	s.prevHere = s.here
	s.here = s.start + usable - 1

	if X.At(s.here, 1)-X.At(s.start, 1) < harmonic.DaysPerYear {
		d.logger.Debug("multitemporal masking - not enough time")
		s.here = s.prevHere
		return s, nil
	}

	models, err := regression.FitModels(d.fitter, X, Y, span(s.start, s.here+1), d.testBands)
	if err != nil {
		return s, fmt.Errorf("training fit: %w", err)
	}

	startNorm := d.normalizedNorm(X, Y, models, s.start)
	endNorm := d.normalizedNorm(X, Y, models, s.here)
	if startNorm > d.cfg.Threshold || endNorm > d.cfg.Threshold {
		d.logger.Debugf("training period unstable (start %.3f, end %.3f)", startNorm, endNorm)
		s.start++
		s.here = s.prevHere
		return s, nil
	}

	s.X, s.Y = X, Y
	s.phase = Monitoring
	d.logger.Debugf("entering monitoring period at %d", int(s.date(s.here)))
	return s, nil
}

// dropMasked returns copies of X and Y without the observations flagged
// false in keep, which covers observations offset onward.
func dropMasked(X, Y *mat.Dense, offset int, keep []bool) (*mat.Dense, *mat.Dense) {
	n, p := X.Dims()
	bands, _ := Y.Dims()

	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if j := i - offset; j >= 0 && j < len(keep) && !keep[j] {
			continue
		}
		rows = append(rows, i)
	}

	Xm := mat.NewDense(len(rows), p, nil)
	Ym := mat.NewDense(bands, len(rows), nil)
	for r, i := range rows {
		Xm.SetRow(r, X.RawRowView(i))
		for b := 0; b < bands; b++ {
			Ym.Set(b, r, Y.At(b, i))
		}
	}
	return Xm, Ym
}

// span returns the indices [from, to).
func span(from, to int) []int {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return idx
}
