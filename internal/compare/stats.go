// Package compare accumulates perceptual distance statistics over pairs of
// images and evaluates pass/fail rules against them.
package compare

import (
	"errors"
	"math"

	"github.com/cwbudde/offloadtest/internal/color"
)

// HistogramBuckets is the number of one-unit buckets above the visible
// difference threshold. Distances more than 9 units above it share the
// last bucket.
const HistogramBuckets = 10

// ErrAlreadyFinalized is returned when Finalize is called twice
var ErrAlreadyFinalized = errors.New("compare: statistics already finalized")

// State is the lifecycle stage of a Stats accumulator
type State int

const (
	Idle State = iota
	Accumulating
	Finalized
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Stats accumulates per-pixel distances for one comparison run.
//
// Before Finalize, RMS and DiffRMS hold running sums; afterwards they hold
// the root mean square over all pixels and over visibly differing pixels.
type Stats struct {
	Furthest     float64
	RMS          float64
	DiffRMS      float64
	Count        uint64
	VisibleDiffs uint64
	Histogram    [HistogramBuckets]uint64

	state State
}

// State returns the current lifecycle stage
func (s *Stats) State() State {
	return s.state
}

// Add folds one pixel distance into the statistics. Adding after Finalize
// is a programming error and panics.
func (s *Stats) Add(distance float64) {
	if s.state == Finalized {
		panic("compare: Add called on finalized statistics")
	}
	s.state = Accumulating

	// NaN comes from invalid float samples; it counts as the largest
	// visible difference but stays out of the running sums.
	if math.IsNaN(distance) {
		s.VisibleDiffs++
		s.Histogram[HistogramBuckets-1]++
		s.Furthest = math.MaxFloat64
		s.Count++
		return
	}

	if distance > color.JustNoticeableDifference {
		s.VisibleDiffs++
		s.DiffRMS += distance
		s.Histogram[bucket(distance)]++
	}

	if distance > s.Furthest {
		s.Furthest = distance
	}
	s.RMS += distance
	s.Count++
}

// Finalize turns the running sums into root mean squares. A zero
// denominator yields 0, so a run with no visible differences reports a
// DiffRMS of 0.
func (s *Stats) Finalize() error {
	if s.state == Finalized {
		return ErrAlreadyFinalized
	}
	s.RMS = rootMean(s.RMS, s.Count)
	s.DiffRMS = rootMean(s.DiffRMS, s.VisibleDiffs)
	s.state = Finalized
	return nil
}

// VisiblePercent is the share of pixels above the visible threshold, in percent
func (s *Stats) VisiblePercent() float64 {
	return percent(s.VisibleDiffs, s.Count)
}

// BucketPercent is the share of pixels in histogram bucket i, in percent
func (s *Stats) BucketPercent(i int) float64 {
	return percent(s.Histogram[i], s.Count)
}

func bucket(distance float64) int {
	idx := distance - color.JustNoticeableDifference
	return int(math.Min(math.Max(idx, 0), HistogramBuckets-1))
}

func rootMean(sum float64, n uint64) float64 {
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
