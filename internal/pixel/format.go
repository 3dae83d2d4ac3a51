package pixel

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for depth/channel/float combinations
	// the transcoder cannot represent.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// ErrBufferSize is returned when a buffer is smaller than its format requires.
	ErrBufferSize = errors.New("pixel buffer size mismatch")
	// ErrUnknownDataFormat is returned when parsing an unknown format name.
	ErrUnknownDataFormat = errors.New("unknown data format")
)

// DataFormat is the numeric kind of a single resource element.
type DataFormat int

const (
	Hex8 DataFormat = iota
	Hex16
	Hex32
	Hex64
	UInt16
	UInt32
	UInt64
	Int16
	Int32
	Int64
	Float32
	Float64
)

var dataFormatNames = [...]string{
	Hex8:    "Hex8",
	Hex16:   "Hex16",
	Hex32:   "Hex32",
	Hex64:   "Hex64",
	UInt16:  "UInt16",
	UInt32:  "UInt32",
	UInt64:  "UInt64",
	Int16:   "Int16",
	Int32:   "Int32",
	Int64:   "Int64",
	Float32: "Float32",
	Float64: "Float64",
}

func (f DataFormat) String() string {
	if f < 0 || int(f) >= len(dataFormatNames) {
		return fmt.Sprintf("DataFormat(%d)", int(f))
	}
	return dataFormatNames[f]
}

// ParseDataFormat maps a format name to its DataFormat.
func ParseDataFormat(name string) (DataFormat, error) {
	for i, n := range dataFormatNames {
		if n == name {
			return DataFormat(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDataFormat, name)
}

// MarshalText implements encoding.TextMarshaler.
func (f DataFormat) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(dataFormatNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDataFormat, int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *DataFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseDataFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ElementSize returns the byte size of one element of the format.
func (f DataFormat) ElementSize() int {
	switch f {
	case Hex8:
		return 1
	case Hex16, UInt16, Int16:
		return 2
	case Hex32, UInt32, Int32, Float32:
		return 4
	case Hex64, UInt64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether elements are IEEE754 values.
func (f DataFormat) IsFloat() bool {
	return f == Float32 || f == Float64
}

// IsSigned reports whether elements are two's complement integers.
func (f DataFormat) IsSigned() bool {
	return f == Int16 || f == Int32 || f == Int64
}

// Format describes the per-pixel layout of an image buffer.
type Format struct {
	Depth    uint8 // bytes per channel: 1, 2, 4 or 8
	Channels uint8 // 3 or 4
	Float    bool
}

// Common formats used by the comparison pipeline.
var (
	// Compare is the canonical format images are normalized to before comparison.
	Compare = Format{Depth: 4, Channels: 3, Float: true}
	RGBA8   = Format{Depth: 1, Channels: 4}
	RGBA16  = Format{Depth: 2, Channels: 4}
)

// FormatOf derives the pixel layout of a resource element format.
func FormatOf(df DataFormat, channels int) Format {
	return Format{
		Depth:    uint8(df.ElementSize()),
		Channels: uint8(channels),
		Float:    df.IsFloat(),
	}
}

// Stride returns the byte size of one pixel.
func (f Format) Stride() int {
	return int(f.Depth) * int(f.Channels)
}

// BitDepth returns the number of bits per channel.
func (f Format) BitDepth() int {
	return int(f.Depth) * 8
}

// Validate checks the format against the supported set.
func (f Format) Validate() error {
	if f.Channels != 3 && f.Channels != 4 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	}
	switch f.Depth {
	case 1:
		if f.Float {
			return fmt.Errorf("%w: no 8-bit float", ErrUnsupportedFormat)
		}
	case 2:
		if f.Float {
			return fmt.Errorf("%w: no 16-bit float", ErrUnsupportedFormat)
		}
	case 4, 8:
	default:
		return fmt.Errorf("%w: depth %d", ErrUnsupportedFormat, f.Depth)
	}
	return nil
}

func (f Format) String() string {
	kind := "uint"
	if f.Float {
		kind = "float"
	}
	return fmt.Sprintf("%s%dx%d", kind, f.BitDepth(), f.Channels)
}

// BufferSize returns the byte size of a height x width image in this format.
// The product is computed in 64 bits.
func (f Format) BufferSize(height, width uint32) uint64 {
	return uint64(height) * uint64(width) * uint64(f.Depth) * uint64(f.Channels)
}
