package pixel

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Options controls a Transcode call.
type Options struct {
	// SwapBytes reverses the byte order of every multi-byte destination
	// element after numeric conversion. Only set it when producing output
	// for a serialization format whose byte order differs from the host.
	SwapBytes bool
}

type unsigned interface {
	uint8 | uint16 | uint32 | uint64
}

type element interface {
	unsigned | float32 | float64
}

// Transcode converts pixels pixels of src (laid out as srcFmt in host byte
// order) into dst (laid out as dstFmt). Shared channels are converted through
// a normalized float64; extra destination channels are filled with the full
// value (1.0 or the integer maximum) and extra source channels are skipped.
func Transcode(dst []byte, dstFmt Format, src []byte, srcFmt Format, pixels uint64, opts Options) error {
	if err := srcFmt.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := dstFmt.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if need := pixels * uint64(srcFmt.Stride()); uint64(len(src)) < need {
		return fmt.Errorf("%w: source has %d bytes, need %d", ErrBufferSize, len(src), need)
	}
	if need := pixels * uint64(dstFmt.Stride()); uint64(len(dst)) < need {
		return fmt.Errorf("%w: destination has %d bytes, need %d", ErrBufferSize, len(dst), need)
	}

	t := transcoder{
		dst:     dst,
		src:     src,
		dstCh:   int(dstFmt.Channels),
		srcCh:   int(srcFmt.Channels),
		pixels:  pixels,
		order:   HostByteOrder(),
		swap:    opts.SwapBytes && dstFmt.Depth > 1,
		dstSize: int(dstFmt.Depth),
	}

	if srcFmt == dstFmt {
		t.copyRaw(pixels * uint64(srcFmt.Stride()))
		return nil
	}

	switch srcFmt.Depth {
	case 1:
		dispatchDst[uint8](&t, dstFmt)
	case 2:
		dispatchDst[uint16](&t, dstFmt)
	case 4:
		if srcFmt.Float {
			dispatchDst[float32](&t, dstFmt)
		} else {
			dispatchDst[uint32](&t, dstFmt)
		}
	case 8:
		if srcFmt.Float {
			dispatchDst[float64](&t, dstFmt)
		} else {
			dispatchDst[uint64](&t, dstFmt)
		}
	}
	return nil
}

type transcoder struct {
	dst, src     []byte
	dstCh, srcCh int
	pixels       uint64
	order        binary.ByteOrder
	swap         bool
	dstSize      int
}

func (t *transcoder) copyRaw(n uint64) {
	copy(t.dst[:n], t.src[:n])
	if !t.swap {
		return
	}
	for off := uint64(0); off < n; off += uint64(t.dstSize) {
		swapBytes(t.dst[off : off+uint64(t.dstSize)])
	}
}

func dispatchDst[S element](t *transcoder, dstFmt Format) {
	switch dstFmt.Depth {
	case 1:
		translate[uint8, S](t)
	case 2:
		translate[uint16, S](t)
	case 4:
		if dstFmt.Float {
			translate[float32, S](t)
		} else {
			translate[uint32, S](t)
		}
	case 8:
		if dstFmt.Float {
			translate[float64, S](t)
		} else {
			translate[uint64, S](t)
		}
	}
}

func translate[D, S element](t *transcoder) {
	srcSize := sizeOf[S]()
	dstSize := sizeOf[D]()
	copied := min(t.dstCh, t.srcCh)
	full := fullValue[D]()

	si, di := 0, 0
	for p := uint64(0); p < t.pixels; p++ {
		for c := 0; c < copied; c++ {
			v := toDouble(load[S](t.src[si:], t.order))
			put(t, t.dst[di:di+dstSize], fromDouble[D](v))
			si += srcSize
			di += dstSize
		}
		// Alpha fill for channels the source lacks.
		for c := copied; c < t.dstCh; c++ {
			put(t, t.dst[di:di+dstSize], full)
			di += dstSize
		}
		si += (t.srcCh - copied) * srcSize
	}
}

func put[D element](t *transcoder, b []byte, v D) {
	store(b, v, t.order)
	if t.swap {
		swapBytes(b)
	}
}

func store[D element](b []byte, v D, order binary.ByteOrder) {
	switch p := any(&v).(type) {
	case *uint8:
		b[0] = *p
	case *uint16:
		order.PutUint16(b, *p)
	case *uint32:
		order.PutUint32(b, *p)
	case *uint64:
		order.PutUint64(b, *p)
	case *float32:
		order.PutUint32(b, math.Float32bits(*p))
	case *float64:
		order.PutUint64(b, math.Float64bits(*p))
	}
}

func load[S element](b []byte, order binary.ByteOrder) S {
	var v S
	switch p := any(&v).(type) {
	case *uint8:
		*p = b[0]
	case *uint16:
		*p = order.Uint16(b)
	case *uint32:
		*p = order.Uint32(b)
	case *uint64:
		*p = order.Uint64(b)
	case *float32:
		*p = math.Float32frombits(order.Uint32(b))
	case *float64:
		*p = math.Float64frombits(order.Uint64(b))
	}
	return v
}

// toDouble normalizes integers to [0,1] by dividing by the type maximum.
// Floats pass through unchanged.
func toDouble[S element](v S) float64 {
	switch x := any(v).(type) {
	case uint8:
		return float64(x) / math.MaxUint8
	case uint16:
		return float64(x) / math.MaxUint16
	case uint32:
		return float64(x) / math.MaxUint32
	case uint64:
		return float64(x) / math.MaxUint64
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func fromDouble[D element](v float64) D {
	var d D
	switch p := any(&d).(type) {
	case *uint8:
		*p = quantize[uint8](v)
	case *uint16:
		*p = quantize[uint16](v)
	case *uint32:
		*p = quantize[uint32](v)
	case *uint64:
		*p = quantize[uint64](v)
	case *float32:
		*p = float32(v)
	case *float64:
		*p = v
	}
	return d
}

// quantize scales a normalized value into T: floor(v * (max+1)) clamped to
// [0, max]. NaN maps to zero.
func quantize[T unsigned](v float64) T {
	if debugChecks && !(v >= 0 && v <= 1) {
		panic(fmt.Sprintf("pixel: normalized value %v out of range [0,1]", v))
	}
	maxVal := ^T(0)
	m := float64(maxVal)
	scaled := math.Floor(v * (m + 1))
	if !(scaled > 0) {
		return 0
	}
	if scaled >= m {
		return maxVal
	}
	return T(scaled)
}

func fullValue[D element]() D {
	var d D
	switch p := any(&d).(type) {
	case *uint8:
		*p = math.MaxUint8
	case *uint16:
		*p = math.MaxUint16
	case *uint32:
		*p = math.MaxUint32
	case *uint64:
		*p = math.MaxUint64
	case *float32:
		*p = 1
	case *float64:
		*p = 1
	}
	return d
}

func sizeOf[T element]() int {
	var v T
	switch any(v).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32, float32:
		return 4
	default:
		return 8
	}
}
