package storage

import (
	"time"

	"github.com/chrissnell/landchange/internal/segment"
	"github.com/google/uuid"
)

// Segment is the serializable form of a segment record.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Break int `json:"break,omitempty"`

	// Coef holds one coefficient vector per fit band.
	Coef [][]float64 `json:"coef"`
	RMSE []float64   `json:"rmse"`

	// Check is the residual break test of the segment, when one was run.
	Check *Check `json:"check,omitempty"`
}

// Check is the outcome of a structural break test over the residuals of one
// band within a segment.
type Check struct {
	Method string  `json:"method"`
	Band   int     `json:"band"`
	Date   int     `json:"date"`
	Score  float64 `json:"score"`
	Signif bool    `json:"signif"`
}

// PixelResult is everything produced for one pixel in one run.
type PixelResult struct {
	RunID     uuid.UUID `json:"run_id"`
	Px        int       `json:"px"`
	Py        int       `json:"py"`
	FitBands  []int     `json:"fit_bands"`
	Segments  []Segment `json:"segments"`
	Robust    []Segment `json:"robust,omitempty"`
	Processed time.Time `json:"processed"`
}

// NewPixelResult converts detector output into a PixelResult. robust may be
// nil.
func NewPixelResult(runID uuid.UUID, px, py int, fitBands []int, records, robust *segment.Store) PixelResult {
	r := PixelResult{
		RunID:     runID,
		Px:        px,
		Py:        py,
		FitBands:  append([]int(nil), fitBands...),
		Segments:  segments(records, len(fitBands)),
		Processed: time.Now().UTC(),
	}
	if robust != nil {
		r.Robust = segments(robust, len(fitBands))
	}
	return r
}

func segments(s *segment.Store, nBands int) []Segment {
	if s == nil {
		return nil
	}
	out := make([]Segment, 0, s.Len())
	for _, rec := range s.Records() {
		seg := Segment{
			Start: rec.Start,
			End:   rec.End,
			Break: rec.Break,
			Coef:  make([][]float64, nBands),
			RMSE:  rec.RMSE,
		}
		for b := 0; b < nBands; b++ {
			seg.Coef[b] = rec.Coefficients(b)
		}
		out = append(out, seg)
	}
	return out
}

// Checked returns the number of segments whose residual check was
// significant.
func (r PixelResult) Checked() int {
	n := 0
	for _, s := range r.Segments {
		if s.Check != nil && s.Check.Signif {
			n++
		}
	}
	return n
}

// Breaks returns the break dates of the closed segments.
func (r PixelResult) Breaks() []int {
	var out []int
	for _, s := range r.Segments {
		if s.Break != 0 {
			out = append(out, s.Break)
		}
	}
	return out
}
