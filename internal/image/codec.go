package image

import (
	"encoding/binary"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/offloadtest/internal/pixel"
	"golang.org/x/image/tiff"
)

// Container is an image file format.
type Container string

const (
	PNG  Container = "png"
	TIFF Container = "tiff"
)

// ContainerFor picks a container from a file extension. Unknown extensions
// default to PNG.
func ContainerFor(path string) Container {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return TIFF
	default:
		return PNG
	}
}

// Standard converts r to an 8- or 16-bit NRGBA image. Float and wide
// integer images are narrowed to 16 bits; rows are flipped upright.
func Standard(r Ref) (stdimage.Image, error) {
	depth := min(r.Depth(), 2)
	f := pixel.Format{Depth: depth, Channels: 4}
	// image.NRGBA64 stores big-endian samples.
	opts := pixel.Options{SwapBytes: pixel.NeedsSwap(f, binary.BigEndian)}
	conv, err := translate(r, f, opts)
	if err != nil {
		return nil, err
	}

	rect := stdimage.Rect(0, 0, int(r.Width()), int(r.Height()))
	var pix []byte
	var out stdimage.Image
	if depth == 1 {
		img := stdimage.NewNRGBA(rect)
		pix, out = img.Pix, img
	} else {
		img := stdimage.NewNRGBA64(rect)
		pix, out = img.Pix, img
	}
	flipRows(pix, conv.data, int(r.Height()), int(r.Width())*f.Stride())
	return out, nil
}

// Encode writes r to w in the given container.
func Encode(w io.Writer, r Ref, c Container) error {
	img, err := Standard(r)
	if err != nil {
		return err
	}
	switch c {
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", c, err)
	}
	return nil
}

// Write encodes r to path, choosing the container from the extension.
func Write(r Ref, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := Encode(f, r, ContainerFor(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePNG encodes r as a PNG file.
func WritePNG(r Ref, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := Encode(f, r, PNG); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Decode reads a PNG or TIFF image into an owning 4-channel image. 16-bit
// sources keep their precision; everything else decodes to 8 bits.
func Decode(rd io.Reader) (*Image, error) {
	src, _, err := stdimage.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	var depth uint8 = 1
	switch src.(type) {
	case *stdimage.NRGBA64, *stdimage.RGBA64, *stdimage.Gray16:
		depth = 2
	}

	img, err := New(uint32(b.Dy()), uint32(b.Dx()), depth, 4, false)
	if err != nil {
		return nil, err
	}

	order := pixel.HostByteOrder()
	stride := int(img.width) * img.format.Stride()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		// Bottom-up storage.
		row := img.data[(b.Max.Y-1-y)*stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(src.At(x, y)).(color.NRGBA64)
			off := (x - b.Min.X) * img.format.Stride()
			if depth == 1 {
				row[off+0] = uint8(c.R >> 8)
				row[off+1] = uint8(c.G >> 8)
				row[off+2] = uint8(c.B >> 8)
				row[off+3] = uint8(c.A >> 8)
				continue
			}
			order.PutUint16(row[off+0:], c.R)
			order.PutUint16(row[off+2:], c.G)
			order.PutUint16(row[off+4:], c.B)
			order.PutUint16(row[off+6:], c.A)
		}
	}
	return img, nil
}

// Load decodes an image file.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func flipRows(dst, src []byte, rows, rowSize int) {
	for y := 0; y < rows; y++ {
		s := src[(rows-1-y)*rowSize : (rows-y)*rowSize]
		copy(dst[y*rowSize:(y+1)*rowSize], s)
	}
}
