package segment

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Residuals returns the ordinal dates and model residuals of the working
// observations inside record r for one fit band. Observations masked out of
// a training window are not included.
func (d *Detector) Residuals(r *Record, band int) (dates, resid []float64, err error) {
	if !d.ran {
		return nil, nil, ErrNotRun
	}
	ib := slices.Index(d.fitBands, band)
	if ib < 0 {
		return nil, nil, fmt.Errorf("%w: band %d is not a fit band", ErrInvalidIndexSet, band)
	}

	X, Y := d.Working()
	n, _ := X.Dims()
	coef := r.Coefficients(ib)

	for _, k := range spanIndex(X, n, r) {
		pred := mat.Dot(X.RowView(k), mat.NewVecDense(len(coef), coef))
		dates = append(dates, X.At(k, 1))
		resid = append(resid, Y.At(band, k)-pred)
	}
	return dates, resid, nil
}
