// Package timeseries reads per-pixel reflectance series from long-format CSV.
//
// The first row is a header: px, py, date, then one column per band. Each
// following row is one observation of one pixel. Dates are either ISO
// calendar dates (2006-01-02) or ordinal day numbers where 0001-01-01 is
// day 1.
package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/landchange/internal/harmonic"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrBadHeader     = errors.New("timeseries: header must be px,py,date followed by at least one band")
	ErrDuplicateDate = errors.New("timeseries: duplicate date for pixel")
)

// unixEpochOrdinal is the ordinal day number of 1970-01-01.
const unixEpochOrdinal = 719163

// Pixel is the observation series of one location, sorted by date.
type Pixel struct {
	Px    int
	Py    int
	Dates []float64

	// Values holds one row per band and one column per date.
	Values *mat.Dense
}

// Len returns the number of observations.
func (p *Pixel) Len() int {
	return len(p.Dates)
}

// Design returns the harmonic observation matrix for the pixel's dates and
// the band values.
func (p *Pixel) Design(freq []int) (X, Y *mat.Dense) {
	return harmonic.Observations(p.Dates, freq), p.Values
}

// Dataset is the content of one input file.
type Dataset struct {
	Bands  []string
	Pixels []*Pixel
}

// ReadFile reads the CSV file at path.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

type key struct{ px, py int }

type obs struct {
	date   float64
	values []float64
}

// Read parses a long-format CSV stream. Pixels are returned in order of
// first appearance.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrBadHeader
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 4 ||
		!strings.EqualFold(header[0], "px") ||
		!strings.EqualFold(header[1], "py") ||
		!strings.EqualFold(header[2], "date") {
		return nil, ErrBadHeader
	}
	bands := append([]string(nil), header[3:]...)

	var order []key
	series := make(map[key][]obs)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		px, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: px: %w", line, err)
		}
		py, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: py: %w", line, err)
		}
		date, err := ParseDate(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make([]float64, len(bands))
		for b := range bands {
			if values[b], err = strconv.ParseFloat(rec[3+b], 64); err != nil {
				return nil, fmt.Errorf("line %d: band %s: %w", line, bands[b], err)
			}
		}

		k := key{px, py}
		if _, ok := series[k]; !ok {
			order = append(order, k)
		}
		series[k] = append(series[k], obs{date: date, values: values})
	}

	ds := &Dataset{Bands: bands, Pixels: make([]*Pixel, 0, len(order))}
	for _, k := range order {
		p, err := newPixel(k, series[k], len(bands))
		if err != nil {
			return nil, err
		}
		ds.Pixels = append(ds.Pixels, p)
	}
	return ds, nil
}

func newPixel(k key, o []obs, nBands int) (*Pixel, error) {
	sort.SliceStable(o, func(i, j int) bool { return o[i].date < o[j].date })

	p := &Pixel{
		Px:     k.px,
		Py:     k.py,
		Dates:  make([]float64, len(o)),
		Values: mat.NewDense(nBands, len(o), nil),
	}
	for i, ob := range o {
		if i > 0 && ob.date == o[i-1].date {
			return nil, fmt.Errorf("%w (%d,%d) on day %.0f", ErrDuplicateDate, k.px, k.py, ob.date)
		}
		p.Dates[i] = ob.date
		p.Values.SetCol(i, ob.values)
	}
	return p, nil
}

// ParseDate accepts an ISO calendar date or an ordinal day number.
func ParseDate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "-") {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return 0, fmt.Errorf("date %q: %w", s, err)
		}
		return float64(Ordinal(t)), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("date %q: %w", s, err)
	}
	return v, nil
}

// Ordinal returns the proleptic Gregorian ordinal of t's calendar date, with
// 0001-01-01 as day 1.
func Ordinal(t time.Time) int {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Unix()/86400) + unixEpochOrdinal
}

// FromOrdinal is the inverse of Ordinal.
func FromOrdinal(n int) time.Time {
	return time.Unix(int64(n-unixEpochOrdinal)*86400, 0).UTC()
}
