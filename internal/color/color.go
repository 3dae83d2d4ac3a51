package color

import (
	"fmt"
	"math"
)

// Space identifies the coordinate system a Color is expressed in.
type Space int

const (
	RGB Space = iota
	XYZ
	LAB
)

func (s Space) String() string {
	switch s {
	case RGB:
		return "RGB"
	case XYZ:
		return "XYZ"
	case LAB:
		return "LAB"
	default:
		return fmt.Sprintf("Space(%d)", int(s))
	}
}

// JustNoticeableDifference is the CIE76 distance below which two colors are
// indistinguishable to a typical observer.
const JustNoticeableDifference = 2.3

// Color is a tristimulus value. The channel meaning depends on Space
// (R/G/B, X/Y/Z or L/a/b) but storage is always three float64 values.
type Color struct {
	R, G, B float64
	Space   Space
}

// New creates an RGB color
func New(r, g, b float64) Color {
	return Color{R: r, G: g, B: b, Space: RGB}
}

// NewIn creates a color in the given space
func NewIn(x, y, z float64, space Space) Color {
	return Color{R: x, G: y, B: z, Space: space}
}

// TranslateSpace converts the color to the target space. Conversions pivot
// through XYZ; translating to the current space returns the color unchanged.
func (c Color) TranslateSpace(target Space) Color {
	if c.Space == target {
		return c
	}

	xyz := c
	switch c.Space {
	case RGB:
		xyz = rgbToXYZ(c)
	case LAB:
		xyz = labToXYZ(c)
	}

	switch target {
	case RGB:
		return xyzToRGB(xyz)
	case LAB:
		return xyzToLAB(xyz)
	default:
		return xyz
	}
}

// CIE76Distance is the Euclidean distance between a and b in LAB space.
func CIE76Distance(a, b Color) float64 {
	return euclidean(a.TranslateSpace(LAB), b.TranslateSpace(LAB))
}

// euclidean requires both colors to share a space.
func euclidean(a, b Color) float64 {
	if a.Space != b.Space {
		panic(fmt.Sprintf("color: distance between %s and %s colors", a.Space, b.Space))
	}
	dr := a.R - b.R
	dg := a.G - b.G
	db := a.B - b.B
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Unsigned is the set of integer types a Color can be quantized to.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32
}

// Quantize maps each channel onto the fixed-point range of T. Channels are
// treated as normalized values: floor(v * (max+1)) clamped to [0, max].
// Float round trips through XYZ/LAB are not exact, so comparisons of
// converted colors should happen on quantized values.
func Quantize[T Unsigned](c Color) [3]T {
	return [3]T{toInt[T](c.R), toInt[T](c.G), toInt[T](c.B)}
}

func toInt[T Unsigned](v float64) T {
	maxVal := float64(^T(0))
	return T(clamp(math.Floor(v*(maxVal+1)), 0, maxVal))
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
