package segment

import (
	"math"

	"github.com/chrissnell/landchange/internal/harmonic"
	"github.com/chrissnell/landchange/internal/regression"
	"gonum.org/v1/gonum/mat"
)

// Phase is the detector's position in the train/monitor cycle.
type Phase int

const (
	// Accumulating collects observations until a stable training window
	// is found.
	Accumulating Phase = iota

	// Monitoring tests each new observation against the trained models.
	Monitoring
)

func (p Phase) String() string {
	switch p {
	case Accumulating:
		return "accumulating"
	case Monitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// state is everything the transitions read and write besides the record
// store. X and Y are the working data: after each committed training window
// they are replaced by the noise-masked copy.
type state struct {
	phase       Phase
	start       int
	here        int
	prevHere    int
	trainedDate float64
	X           *mat.Dense
	Y           *mat.Dense
	models      map[int]*regression.Model
}

// n returns the number of working observations.
func (s *state) n() int {
	r, _ := s.X.Dims()
	return r
}

func (s *state) date(i int) float64 {
	return s.X.At(i, 1)
}

// spanTime is the time, in days, between start and here.
func (s *state) spanTime() float64 {
	return math.Abs(s.date(s.here) - s.date(s.start))
}

// spanIndex is the number of observations between start and here.
func (s *state) spanIndex() int {
	return s.here - s.start
}

func (s *state) running() bool {
	return s.here < s.n()
}

// canMonitor reports whether the next consecutive observations are
// available.
func (s *state) canMonitor(consecutive int) bool {
	return s.here < s.n()-consecutive-1
}

// stale reports whether the models are missing or more than a year old.
func (s *state) stale() bool {
	return s.models == nil || math.Abs(s.date(s.here)-s.trainedDate) > harmonic.DaysPerYear
}
