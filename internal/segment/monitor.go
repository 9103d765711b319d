package segment

import (
	"fmt"

	"github.com/chrissnell/landchange/internal/regression"
)

// updateModel refits the open segment once a year and otherwise only
// extends its end date.
func (d *Detector) updateModel(s state) (state, error) {
	rec := d.store.Last()
	date := s.date(s.here)

	if !s.stale() {
		rec.End = int(date)
		return s, nil
	}

	d.logger.Debugf("monitoring - retraining (%.0f days since last)", date-s.trainedDate)

	models, err := regression.FitModels(d.fitter, s.X, s.Y, span(s.start, s.here+1), d.modelBands)
	if err != nil {
		return s, fmt.Errorf("monitoring fit: %w", err)
	}
	s.models = models

	rec.Start = int(s.date(s.start))
	rec.End = int(date)
	for i, b := range d.fitBands {
		rec.Coef.SetCol(i, models[b].Coef)
		rec.RMSE[i] = models[b].RMSE
	}
	s.trainedDate = date

	return s, nil
}

// monitor tests the next consecutive observations and commits a break when
// every one of them deviates from the current models.
func (d *Detector) monitor(s state) state {
	for i := 0; i < d.cfg.Consecutive; i++ {
		if !(d.normalizedNorm(s.X, s.Y, s.models, s.here+i) > d.cfg.Threshold) {
			return s
		}
	}

	brk := int(s.date(s.here + 1))
	d.logger.Debugf("change detected at %d", brk)

	d.store.Last().Break = brk
	d.store.open(brk)

	s.start = s.here + 1
	s.phase = Accumulating
	s.models = nil
	return s
}
