package segment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Record describes one time segment. Dates are ordinal days. A zero Break
// means the segment is still open.
type Record struct {
	Start int
	End   int
	Break int

	// Coef holds one column of coefficients per fit band, in the order of
	// the detector's fit bands.
	Coef *mat.Dense
	RMSE []float64

	Px int
	Py int
}

// Open reports whether the segment can still be extended.
func (r *Record) Open() bool {
	return r.Break == 0
}

// Coefficients returns the coefficients of the i'th fit band.
func (r *Record) Coefficients(i int) []float64 {
	return mat.Col(nil, i, r.Coef)
}

func (r Record) clone() Record {
	c := r
	c.Coef = mat.DenseCopyOf(r.Coef)
	c.RMSE = append([]float64(nil), r.RMSE...)
	return c
}

// Store is the ordered, append-only list of segment records for one location.
type Store struct {
	records []Record
	nCoef   int
	nBands  int
	px, py  int
}

func newStore(nCoef, nBands, px, py int) *Store {
	return &Store{nCoef: nCoef, nBands: nBands, px: px, py: py}
}

// open appends a fresh record starting at date.
func (s *Store) open(date int) *Record {
	s.records = append(s.records, Record{
		Start: date,
		End:   date,
		Coef:  mat.NewDense(s.nCoef, s.nBands, nil),
		RMSE:  make([]float64, s.nBands),
		Px:    s.px,
		Py:    s.py,
	})
	return s.Last()
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// At returns record i.
func (s *Store) At(i int) *Record {
	return &s.records[i]
}

// Last returns the most recent record.
func (s *Store) Last() *Record {
	if len(s.records) == 0 {
		return nil
	}
	return &s.records[len(s.records)-1]
}

// Records returns a copy of the records.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := *s
	c.records = s.Records()
	return &c
}

// Validate checks the store invariants: every record has Start <= End,
// starts never decrease and only the last record may be open.
func (s *Store) Validate() error {
	for i, r := range s.records {
		if r.Start > r.End {
			return fmt.Errorf("record %d: start %d after end %d", i, r.Start, r.End)
		}
		if i > 0 && r.Start < s.records[i-1].Start {
			return fmt.Errorf("record %d: start %d before previous start %d", i, r.Start, s.records[i-1].Start)
		}
		if r.Open() && i != len(s.records)-1 {
			return fmt.Errorf("record %d: open record is not the last", i)
		}
	}
	return nil
}
