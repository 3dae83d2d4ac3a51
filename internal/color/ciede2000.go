package color

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Metric selects the perceptual distance used when comparing pixels.
type Metric string

const (
	MetricCIE76     Metric = "cie76"
	MetricCIEDE2000 Metric = "ciede2000"
)

// ParseMetric maps a metric name to a Metric. An empty name selects CIE76.
func ParseMetric(name string) (Metric, error) {
	switch Metric(strings.ToLower(name)) {
	case "", MetricCIE76:
		return MetricCIE76, nil
	case MetricCIEDE2000:
		return MetricCIEDE2000, nil
	}
	return "", fmt.Errorf("unknown color metric %q", name)
}

// CIEDE2000Distance computes the CIEDE2000 difference of two colors.
// go-colorful reports the distance on a 0-1 lightness scale, so the result is
// rescaled by 100 to sit on the same scale as CIE76Distance.
func CIEDE2000Distance(a, b Color) float64 {
	ca := toColorful(a.TranslateSpace(RGB))
	cb := toColorful(b.TranslateSpace(RGB))
	return ca.DistanceCIEDE2000(cb) * 100
}

// Distance dispatches to the distance function for m. Unknown metrics fall
// back to CIE76.
func (m Metric) Distance(a, b Color) float64 {
	if m == MetricCIEDE2000 {
		return CIEDE2000Distance(a, b)
	}
	return CIE76Distance(a, b)
}

func toColorful(c Color) colorful.Color {
	return colorful.Color{R: c.R, G: c.G, B: c.B}
}
