package segment

import (
	"fmt"
	"math"

	"github.com/chrissnell/landchange/internal/robust"
	"gonum.org/v1/gonum/mat"
)

// RobustRecords returns a copy of the records with every model refit by
// iteratively reweighted least squares using the Tukey biweight. Only the
// coefficients that were non-zero in the original fit are re-estimated, so
// the support of each model is unchanged. The detector's own records are
// not modified.
func (d *Detector) RobustRecords() (*Store, error) {
	if !d.ran {
		return nil, ErrNotRun
	}

	out := d.store.Clone()
	X, Y := d.Working()
	n, _ := X.Dims()

	for i := range out.records {
		r := &out.records[i]

		index := spanIndex(X, n, r)
		if len(index) == 0 {
			continue
		}

		for ib, b := range d.fitBands {
			var nonzero []int
			for j := 0; j < d.nCoef; j++ {
				if r.Coef.At(j, ib) != 0 {
					nonzero = append(nonzero, j)
				}
			}
			if len(nonzero) == 0 {
				continue
			}

			sub := mat.NewDense(len(index), len(nonzero), nil)
			y := make([]float64, len(index))
			for row, k := range index {
				for col, j := range nonzero {
					sub.Set(row, col, X.At(k, j))
				}
				y[row] = Y.At(b, k)
			}

			fit, err := robust.Fit(sub, y, robust.DefaultOptions())
			if err != nil {
				return nil, fmt.Errorf("robust refit of record %d band %d: %w", i, b, err)
			}

			for col, j := range nonzero {
				r.Coef.Set(j, ib, fit.Params[col])
			}
			r.RMSE[ib] = math.Sqrt(fit.RSS() / float64(len(index)))
		}

		d.logger.Debugf("updated record %d to robust results", i)
	}

	return out, nil
}

// spanIndex returns the rows of X whose date falls within the record.
func spanIndex(X *mat.Dense, n int, r *Record) []int {
	lo, hi := float64(min(r.Start, r.End)), float64(max(r.Start, r.End))
	var index []int
	for k := 0; k < n; k++ {
		if t := X.At(k, 1); t >= lo && t <= hi {
			index = append(index, k)
		}
	}
	return index
}
