package pixel

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder reads and appends multi-byte values.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// HostByteOrder is the byte order GPU readback buffers are laid out in.
func HostByteOrder() ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// NeedsSwap reports whether multi-byte elements of f must be swapped to
// serialize them in the given byte order.
func NeedsSwap(f Format, order binary.ByteOrder) bool {
	return f.Depth > 1 && order != HostByteOrder()
}

func swapBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
