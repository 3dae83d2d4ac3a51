package color

import "math"

// D65 reference white in XYZ.
var d65 = Color{R: 95.047, G: 100.000, B: 108.883, Space: XYZ}

// Linear sRGB <-> XYZ matrices for the D65 white point.
// Source: http://brucelindbloom.com/index.html?Eqn_RGB_XYZ_Matrix.html
var (
	rgbToXYZMatrix = [9]float64{
		0.4124564, 0.3575761, 0.1804375,
		0.2126729, 0.7151522, 0.0721750,
		0.0193339, 0.1191920, 0.9503041,
	}
	xyzToRGBMatrix = [9]float64{
		3.2404542, -1.5371385, -0.4985314,
		-0.9692660, 1.8760108, 0.0415560,
		0.0556434, -0.2040259, 1.0572252,
	}
)

const (
	labEpsilon = 216.0 / 24389.0
	labKappa   = 24389.0 / 27.0
)

func multiply(c Color, m *[9]float64, space Space) Color {
	return Color{
		R:     c.R*m[0] + c.G*m[1] + c.B*m[2],
		G:     c.R*m[3] + c.G*m[4] + c.B*m[5],
		B:     c.R*m[6] + c.G*m[7] + c.B*m[8],
		Space: space,
	}
}

func rgbToXYZ(c Color) Color {
	return multiply(c, &rgbToXYZMatrix, XYZ)
}

func xyzToRGB(c Color) Color {
	return multiply(c, &xyzToRGBMatrix, RGB)
}

func xyzCompand(v float64) float64 {
	if v > labEpsilon {
		return math.Cbrt(v)
	}
	return (labKappa*v + 16.0) / 116.0
}

func xyzToLAB(c Color) Color {
	x := xyzCompand(c.R / d65.R)
	y := xyzCompand(c.G / d65.G)
	z := xyzCompand(c.B / d65.B)

	return Color{
		R:     math.Max(0, 116.0*y-16.0),
		G:     500.0 * (x - y),
		B:     200.0 * (y - z),
		Space: LAB,
	}
}

func labUncompand(v float64) float64 {
	cubed := v * v * v
	if cubed > 0.008856 {
		return cubed
	}
	return (v - 16.0/116.0) / (labKappa / 116.0)
}

func labToXYZ(c Color) Color {
	y := (c.R + 16.0) / 116.0
	x := c.G/500.0 + y
	z := y - c.B/200.0

	return Color{
		R:     labUncompand(x) * d65.R,
		G:     labUncompand(y) * d65.G,
		B:     labUncompand(z) * d65.B,
		Space: XYZ,
	}
}
