package image

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/cwbudde/offloadtest/internal/pipeline"
	"github.com/cwbudde/offloadtest/internal/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatImage(t *testing.T, height, width uint32, vals ...float32) Ref {
	t.Helper()
	order := pixel.HostByteOrder()
	buf := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		buf = order.AppendUint32(buf, math.Float32bits(v))
	}
	r, err := NewRef(height, width, 4, 3, true, buf)
	require.NoError(t, err)
	return r
}

func TestNewRefWrapsWithoutCopy(t *testing.T) {
	data := make([]byte, 2*2*4)
	r, err := NewRef(2, 2, 1, 4, false, data)
	require.NoError(t, err)

	data[0] = 42
	assert.Equal(t, byte(42), r.Data()[0])
	assert.Equal(t, uint32(2), r.Height())
	assert.Equal(t, uint32(2), r.Width())
	assert.Equal(t, 8, r.BitDepth())
	assert.Equal(t, uint8(4), r.Channels())
	assert.False(t, r.IsFloat())
	assert.Equal(t, 16, r.Size())
	assert.Equal(t, uint64(4), r.Pixels())
}

func TestNewRefValidates(t *testing.T) {
	_, err := NewRef(2, 2, 1, 4, false, make([]byte, 15))
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = NewRef(1, 1, 1, 2, false, make([]byte, 2))
	assert.ErrorIs(t, err, pixel.ErrUnsupportedFormat)

	_, err = NewRef(1, 1, 1, 3, true, make([]byte, 3))
	assert.ErrorIs(t, err, pixel.ErrUnsupportedFormat)
}

func TestNewAllocatesZeroed(t *testing.T) {
	img, err := New(3, 5, 2, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 3*5*2*4, img.Size())
	assert.Equal(t, make([]byte, 120), img.Pix())

	img.Pix()[0] = 1
	assert.Equal(t, byte(1), img.Ref.Data()[0])
}

func TestFromResource(t *testing.T) {
	res := &pipeline.Resource{
		Format:   pixel.Float32,
		Channels: 4,
		Data:     make([]byte, 2*3*16),
		OutputProps: pipeline.OutputProperties{
			Name: "Out", Height: 2, Width: 3, Depth: 32,
		},
	}

	r, err := FromResource(res)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), r.Height())
	assert.Equal(t, uint32(3), r.Width())
	assert.Equal(t, uint8(4), r.Depth())
	assert.True(t, r.IsFloat())

	res.RawSize = 16
	_, err = FromResource(res)
	assert.ErrorIs(t, err, ErrRawResource)

	res.RawSize = 0
	res.OutputProps.Width = 4
	_, err = FromResource(res)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestTranslate(t *testing.T) {
	src := floatImage(t, 1, 2, 0, 0.5, 1, 1, 1, 1)

	img, err := Translate(src, 1, 4, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 128, 255, 255, 255, 255, 255, 255}, img.Pix())
	assert.Equal(t, src.Height(), img.Height())
	assert.Equal(t, src.Width(), img.Width())

	same, err := Translate(src, 4, 3, true)
	require.NoError(t, err)
	assert.Equal(t, src.Data(), same.Pix())

	_, err = Translate(src, 1, 3, true)
	assert.ErrorIs(t, err, pixel.ErrUnsupportedFormat)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		depth uint8
		c     Container
	}{
		{"png8", 1, PNG},
		{"png16", 2, PNG},
		{"tiff8", 1, TIFF},
		{"tiff16", 2, TIFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := New(3, 2, tt.depth, 4, false)
			require.NoError(t, err)
			for i := range img.Pix() {
				img.Pix()[i] = byte(i * 13)
			}
			// Opaque alpha keeps the NRGBA round trip lossless.
			stride := 4 * int(tt.depth)
			for off := 3 * int(tt.depth); off < img.Size(); off += stride {
				for b := 0; b < int(tt.depth); b++ {
					img.Pix()[off+b] = 0xFF
				}
			}

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, img.Ref, tt.c))

			back, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, img.Height(), back.Height())
			assert.Equal(t, img.Width(), back.Width())
			assert.Equal(t, img.Depth(), back.Depth())
			assert.Equal(t, img.Pix(), back.Pix())
		})
	}
}

func TestStandardFlipsRows(t *testing.T) {
	// Bottom row red, top row blue.
	src := floatImage(t, 2, 1, 1, 0, 0, 0, 0, 1)
	std, err := Standard(src)
	require.NoError(t, err)

	r, _, b, _ := std.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xFFFF), b)

	r, _, b, _ = std.At(0, 1).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)
	assert.Equal(t, uint32(0), b)
}

func TestWriteAndLoad(t *testing.T) {
	src := floatImage(t, 2, 2,
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	)

	dir := t.TempDir()
	for _, name := range []string{"out.png", "out.tiff"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Write(src, path))

		img, err := Load(path)
		require.NoError(t, err)
		// Float sources are written as 16-bit.
		assert.Equal(t, uint8(2), img.Depth())

		back, err := Translate(img.Ref, 4, 3, true)
		require.NoError(t, err)
		assert.Equal(t, src.Data(), back.Pix())
	}

	require.NoError(t, WritePNG(src, filepath.Join(dir, "explicit.png")))
	_, err := Load(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestContainerFor(t *testing.T) {
	assert.Equal(t, PNG, ContainerFor("a.png"))
	assert.Equal(t, TIFF, ContainerFor("a.TIF"))
	assert.Equal(t, TIFF, ContainerFor("dir/a.tiff"))
	assert.Equal(t, PNG, ContainerFor("noext"))
}
