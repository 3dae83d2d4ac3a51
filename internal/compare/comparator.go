package compare

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/cwbudde/offloadtest/internal/color"
	"github.com/cwbudde/offloadtest/internal/image"
	"github.com/cwbudde/offloadtest/internal/pixel"
)

var (
	// ErrDimensionMismatch is returned when compared images differ in size
	ErrDimensionMismatch = errors.New("image dimensions do not match")
	// ErrImagesDiffer is returned by ExactMatch when decoded data differs
	ErrImagesDiffer = errors.New("images do not match")
)

// Comparator observes every pixel pair of a comparison run
type Comparator interface {
	// ProcessPixel receives one pair of RGB colors in raster order
	ProcessPixel(l, r color.Color)
	// Print writes the comparator's report
	Print(w io.Writer) error
	// Result finalizes the comparator and returns its verdict
	Result() bool
}

// DistanceComparator measures the perceptual distance of every pixel pair
// and checks the accumulated statistics against a rule set.
type DistanceComparator struct {
	Stats  Stats
	Rules  []Rule
	Metric color.Metric

	err      string
	verdict  bool
	resolved bool
}

// NewDistanceComparator creates a comparator with the given rules. With no
// rules it checks the furthest distance against the visible threshold.
func NewDistanceComparator(rules ...Rule) *DistanceComparator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &DistanceComparator{Rules: rules, Metric: color.MetricCIE76}
}

func (c *DistanceComparator) ProcessPixel(l, r color.Color) {
	c.Stats.Add(c.Metric.Distance(l, r))
}

// Result finalizes the statistics and evaluates every rule. Later calls
// return the first verdict.
func (c *DistanceComparator) Result() bool {
	if c.resolved {
		return c.verdict
	}
	if err := c.Stats.Finalize(); err != nil {
		panic(err)
	}
	c.verdict, c.err = EvaluateAll(c.Rules, &c.Stats)
	c.resolved = true

	slog.Debug("Distance comparison finished",
		"passed", c.verdict,
		"rules", formatRules(c.Rules),
		"furthest", c.Stats.Furthest,
		"rms", c.Stats.RMS,
		"visible_diffs", c.Stats.VisibleDiffs,
	)
	return c.verdict
}

// Error returns the first rule failure, or "" when all rules passed
func (c *DistanceComparator) Error() string {
	return c.err
}

// Print writes the statistics report. Call it after Result.
func (c *DistanceComparator) Print(w io.Writer) error {
	var b bytes.Buffer
	s := &c.Stats
	fmt.Fprintf(&b, "RMS Difference: %g\n", s.RMS)
	fmt.Fprintf(&b, "Furthest Pixel Difference: %g\n", s.Furthest)
	fmt.Fprintf(&b, "Pixels with visible differences: %d %g%%\n", s.VisibleDiffs, s.VisiblePercent())
	fmt.Fprintf(&b, "RMS Different Pixels Only: %g\n", s.DiffRMS)
	fmt.Fprintf(&b, "Total Pixels: %d\n", s.Count)
	fmt.Fprintf(&b, "Histogram Data:\n")
	for i := 0; i < HistogramBuckets; i++ {
		fmt.Fprintf(&b, "\t[%d]: %d %g\n", i, s.Histogram[i], s.BucketPercent(i))
	}
	if c.err != "" {
		fmt.Fprintf(&b, "Error: %s\n", c.err)
	}
	_, err := w.Write(b.Bytes())
	return err
}

// Summary snapshots the finalized statistics and verdict
func (c *DistanceComparator) Summary() Summary {
	return Summary{
		Passed:       c.verdict,
		Message:      c.err,
		Metric:       c.Metric,
		Rules:        c.Rules,
		Furthest:     c.Stats.Furthest,
		RMS:          c.Stats.RMS,
		DiffRMS:      c.Stats.DiffRMS,
		Count:        c.Stats.Count,
		VisibleDiffs: c.Stats.VisibleDiffs,
		Histogram:    c.Stats.Histogram,
	}
}

// Summary is a serializable record of one distance comparison
type Summary struct {
	Passed       bool                     `json:"passed"`
	Message      string                   `json:"message,omitempty"`
	Metric       color.Metric             `json:"metric"`
	Rules        []Rule                   `json:"rules"`
	Furthest     float64                  `json:"furthest"`
	RMS          float64                  `json:"rms"`
	DiffRMS      float64                  `json:"diff_rms"`
	Count        uint64                   `json:"count"`
	VisibleDiffs uint64                   `json:"visible_diffs"`
	Histogram    [HistogramBuckets]uint64 `json:"histogram"`
}

// DiffImageComparator records the absolute per-channel difference of every
// pixel pair into a float image. It never fails a comparison.
type DiffImageComparator struct {
	img  *image.Image
	path string
	off  int
}

// NewDiffImageComparator allocates a height x width difference image that
// Print writes to path.
func NewDiffImageComparator(height, width uint32, path string) (*DiffImageComparator, error) {
	img, err := image.New(height, width, pixel.Compare.Depth, pixel.Compare.Channels, pixel.Compare.Float)
	if err != nil {
		return nil, err
	}
	return &DiffImageComparator{img: img, path: path}, nil
}

func (c *DiffImageComparator) ProcessPixel(l, r color.Color) {
	order := pixel.HostByteOrder()
	pix := c.img.Pix()
	for _, d := range [3]float64{l.R - r.R, l.G - r.G, l.B - r.B} {
		order.PutUint32(pix[c.off:], math.Float32bits(float32(math.Abs(d))))
		c.off += 4
	}
}

// Image returns the difference image
func (c *DiffImageComparator) Image() *image.Image {
	return c.img
}

// Print writes the difference image as a PNG; w is unused. Nothing is
// written when the comparator was created without a path.
func (c *DiffImageComparator) Print(io.Writer) error {
	if c.path == "" {
		return nil
	}
	if err := image.WritePNG(c.img.Ref, c.path); err != nil {
		return fmt.Errorf("failed to write diff image: %w", err)
	}
	slog.Debug("Wrote diff image", "path", c.path)
	return nil
}

func (c *DiffImageComparator) Result() bool {
	return true
}

// CompareImages translates both images to the comparison format once and
// feeds every pixel pair to each comparator in raster order. The result is
// true only if every comparator passes.
func CompareImages(left, right image.Ref, comparators ...Comparator) (bool, error) {
	if !left.SameDimensions(right) {
		return false, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch,
			left.Width(), left.Height(), right.Width(), right.Height())
	}

	l, err := normalize(left)
	if err != nil {
		return false, err
	}
	r, err := normalize(right)
	if err != nil {
		return false, err
	}

	order := pixel.HostByteOrder()
	lp, rp := l.Data(), r.Data()
	stride := pixel.Compare.Stride()
	for off := 0; off < len(lp); off += stride {
		lc := readColor(lp[off:], order)
		rc := readColor(rp[off:], order)
		for _, c := range comparators {
			c.ProcessPixel(lc, rc)
		}
	}

	passed := true
	for _, c := range comparators {
		if !c.Result() {
			passed = false
		}
	}
	return passed, nil
}

// ExactMatch reports whether two images hold identical decoded data
func ExactMatch(left, right image.Ref) error {
	if !left.SameDimensions(right) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch,
			left.Width(), left.Height(), right.Width(), right.Height())
	}
	if left.Format() != right.Format() || !bytes.Equal(left.Data(), right.Data()) {
		return ErrImagesDiffer
	}
	return nil
}

func normalize(r image.Ref) (image.Ref, error) {
	if r.Format() == pixel.Compare {
		return r, nil
	}
	img, err := image.Translate(r, pixel.Compare.Depth, pixel.Compare.Channels, pixel.Compare.Float)
	if err != nil {
		return image.Ref{}, err
	}
	return img.Ref, nil
}

func readColor(b []byte, order binary.ByteOrder) color.Color {
	return color.New(
		float64(math.Float32frombits(order.Uint32(b[0:]))),
		float64(math.Float32frombits(order.Uint32(b[4:]))),
		float64(math.Float32frombits(order.Uint32(b[8:]))),
	)
}
