// Package image provides views over raw pixel buffers read back from GPU
// resources, format translation, and PNG/TIFF containers.
//
// Rows are stored bottom-up, matching the origin of GPU readback buffers.
// Encoders flip rows so files appear upright; decoders flip them back.
package image

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/offloadtest/internal/pipeline"
	"github.com/cwbudde/offloadtest/internal/pixel"
)

var (
	// ErrRawResource is returned when a raw (opaque) resource is viewed as an image.
	ErrRawResource = errors.New("image: raw resources have no pixel layout")
	// ErrSizeMismatch is returned when buffer length disagrees with dimensions.
	ErrSizeMismatch = errors.New("image: data size does not match properties")
)

// Ref is a non-owning view of a pixel buffer. It never copies the buffer it
// wraps; the caller must keep the buffer alive and unmodified while the Ref
// is in use.
type Ref struct {
	height uint32
	width  uint32
	format pixel.Format
	data   []byte
}

// NewRef wraps data as a height x width image. depth is bytes per channel.
func NewRef(height, width uint32, depth, channels uint8, float bool, data []byte) (Ref, error) {
	f := pixel.Format{Depth: depth, Channels: channels, Float: float}
	if err := f.Validate(); err != nil {
		return Ref{}, err
	}
	if want := f.BufferSize(height, width); uint64(len(data)) != want {
		return Ref{}, fmt.Errorf("%w: have %d bytes, want %d", ErrSizeMismatch, len(data), want)
	}
	return Ref{height: height, width: width, format: f, data: data}, nil
}

// FromResource views the backing buffer of a GPU resource as an image using
// its output properties for dimensions.
func FromResource(r *pipeline.Resource) (Ref, error) {
	if r.IsRaw() {
		return Ref{}, ErrRawResource
	}
	if r.OutputProps.Height < 0 || r.OutputProps.Width < 0 {
		return Ref{}, fmt.Errorf("%w: negative dimensions", ErrSizeMismatch)
	}
	f := pixel.FormatOf(r.Format, r.Channels)
	return NewRef(uint32(r.OutputProps.Height), uint32(r.OutputProps.Width), f.Depth, f.Channels, f.Float, r.Data)
}

func (r Ref) Height() uint32 { return r.height }
func (r Ref) Width() uint32 { return r.width }
func (r Ref) Depth() uint8 { return r.format.Depth }
func (r Ref) BitDepth() int { return r.format.BitDepth() }
func (r Ref) Channels() uint8 { return r.format.Channels }
func (r Ref) IsFloat() bool { return r.format.Float }
func (r Ref) Format() pixel.Format { return r.format }
func (r Ref) Size() int { return len(r.data) }
func (r Ref) Data() []byte { return r.data }
func (r Ref) Empty() bool { return len(r.data) == 0 }
func (r Ref) Pixels() uint64 { return uint64(r.height) * uint64(r.width) }

// SameDimensions reports whether o has the same height and width as r.
func (r Ref) SameDimensions(o Ref) bool {
	return r.height == o.height && r.width == o.width
}

// Image owns its pixel buffer. Pass it by pointer; the embedded Ref is a
// borrowed view that stays valid as long as the Image is reachable.
type Image struct {
	Ref
}

// New allocates a zeroed image. The buffer size is computed in 64 bits.
func New(height, width uint32, depth, channels uint8, float bool) (*Image, error) {
	f := pixel.Format{Depth: depth, Channels: channels, Float: float}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	size := f.BufferSize(height, width)
	if size > uint64(maxInt) {
		return nil, fmt.Errorf("image: %dx%d %s exceeds addressable memory", width, height, f)
	}
	return &Image{Ref: Ref{
		height: height,
		width:  width,
		format: f,
		data:   make([]byte, size),
	}}, nil
}

const maxInt = int(^uint(0) >> 1)

// Pix returns the writable pixel buffer.
func (img *Image) Pix() []byte {
	return img.data
}

// Translate converts src into a newly allocated image of the requested
// format with a single transcoding pass over the pixel grid.
func Translate(src Ref, depth, channels uint8, float bool) (*Image, error) {
	return translate(src, pixel.Format{Depth: depth, Channels: channels, Float: float}, pixel.Options{})
}

func translate(src Ref, f pixel.Format, opts pixel.Options) (*Image, error) {
	dst, err := New(src.height, src.width, f.Depth, f.Channels, f.Float)
	if err != nil {
		return nil, err
	}
	if err := pixel.Transcode(dst.data, dst.format, src.data, src.format, src.Pixels(), opts); err != nil {
		return nil, fmt.Errorf("failed to translate %s to %s: %w", src.format, f, err)
	}
	slog.Debug("Translated image", "from", src.format.String(), "to", f.String(),
		"width", src.width, "height", src.height)
	return dst, nil
}
