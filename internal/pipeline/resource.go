package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/offloadtest/internal/pixel"
	"gopkg.in/yaml.v3"
)

type resourceDoc struct {
	Access       *Access           `yaml:"Access"`
	Format       *pixel.DataFormat `yaml:"Format"`
	Channels     *int              `yaml:"Channels"`
	RawSize      int               `yaml:"RawSize"`
	ZeroInitSize int64             `yaml:"ZeroInitSize"`
	Data         yaml.Node         `yaml:"Data"`
	DXBinding    *DirectXBinding   `yaml:"DirectXBinding"`
	OutputProps  *OutputProperties `yaml:"OutputProps"`
}

// UnmarshalYAML implements yaml.Unmarshaler. Data is decoded according to
// Format; ZeroInitSize allocates a zeroed buffer instead.
func (r *Resource) UnmarshalYAML(node *yaml.Node) error {
	var doc resourceDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	if doc.Access == nil {
		return fmt.Errorf("%w: Access (line %d)", ErrMissingField, node.Line)
	}
	if doc.Format == nil {
		return fmt.Errorf("%w: Format (line %d)", ErrMissingField, node.Line)
	}
	if doc.DXBinding == nil {
		return fmt.Errorf("%w: DirectXBinding (line %d)", ErrMissingField, node.Line)
	}
	if doc.RawSize < 0 {
		return fmt.Errorf("RawSize must be non-negative (line %d)", node.Line)
	}

	r.Access = *doc.Access
	r.Format = *doc.Format
	r.Channels = 1
	if doc.Channels != nil {
		r.Channels = *doc.Channels
	}
	r.RawSize = doc.RawSize
	r.DXBinding = *doc.DXBinding
	if doc.OutputProps != nil {
		r.OutputProps = *doc.OutputProps
	}

	if doc.ZeroInitSize > 0 {
		r.Data = make([]byte, doc.ZeroInitSize)
		return nil
	}
	if doc.Data.Kind == 0 {
		return fmt.Errorf("%w: Data (line %d)", ErrMissingField, node.Line)
	}

	data, err := decodeData(&doc.Data, r.Format)
	if err != nil {
		return fmt.Errorf("failed to decode %s data (line %d): %w", r.Format, doc.Data.Line, err)
	}
	r.Data = data
	return nil
}

// MarshalYAML implements yaml.Marshaler. Data is written back as a typed
// sequence so that GPU results can be inspected.
func (r Resource) MarshalYAML() (any, error) {
	data, err := encodeData(r.Data, r.Format)
	if err != nil {
		return nil, err
	}

	out := struct {
		Access      Access            `yaml:"Access"`
		Format      pixel.DataFormat  `yaml:"Format"`
		Channels    int               `yaml:"Channels,omitempty"`
		RawSize     int               `yaml:"RawSize,omitempty"`
		Data        *yaml.Node        `yaml:"Data"`
		DXBinding   DirectXBinding    `yaml:"DirectXBinding"`
		OutputProps *OutputProperties `yaml:"OutputProps,omitempty"`
	}{
		Access:    r.Access,
		Format:    r.Format,
		Channels:  r.Channels,
		RawSize:   r.RawSize,
		Data:      data,
		DXBinding: r.DXBinding,
	}
	if r.OutputProps != (OutputProperties{}) {
		props := r.OutputProps
		out.OutputProps = &props
	}
	return out, nil
}

func decodeData(node *yaml.Node, f pixel.DataFormat) ([]byte, error) {
	switch f {
	case pixel.Hex8:
		return decodeSeq[uint8](node)
	case pixel.Hex16, pixel.UInt16:
		return decodeSeq[uint16](node)
	case pixel.Hex32, pixel.UInt32:
		return decodeSeq[uint32](node)
	case pixel.Hex64, pixel.UInt64:
		return decodeSeq[uint64](node)
	case pixel.Int16:
		return decodeSeq[int16](node)
	case pixel.Int32:
		return decodeSeq[int32](node)
	case pixel.Int64:
		return decodeSeq[int64](node)
	case pixel.Float32:
		return decodeSeq[float32](node)
	case pixel.Float64:
		return decodeSeq[float64](node)
	default:
		return nil, fmt.Errorf("%w: %s", pixel.ErrUnknownDataFormat, f)
	}
}

type scalar interface {
	uint8 | uint16 | uint32 | uint64 | int16 | int32 | int64 | float32 | float64
}

func decodeSeq[T scalar](node *yaml.Node) ([]byte, error) {
	var vals []T
	if err := node.Decode(&vals); err != nil {
		return nil, err
	}
	order := pixel.HostByteOrder()
	buf := make([]byte, 0, len(vals)*sizeOf[T]())
	for _, v := range vals {
		buf = appendScalar(buf, v, order)
	}
	return buf, nil
}

func sizeOf[T scalar]() int {
	var v T
	return binary.Size(v)
}

func appendScalar[T scalar](buf []byte, v T, order binary.AppendByteOrder) []byte {
	switch x := any(v).(type) {
	case uint8:
		return append(buf, x)
	case uint16:
		return order.AppendUint16(buf, x)
	case uint32:
		return order.AppendUint32(buf, x)
	case uint64:
		return order.AppendUint64(buf, x)
	case int16:
		return order.AppendUint16(buf, uint16(x))
	case int32:
		return order.AppendUint32(buf, uint32(x))
	case int64:
		return order.AppendUint64(buf, uint64(x))
	case float32:
		return order.AppendUint32(buf, math.Float32bits(x))
	case float64:
		return order.AppendUint64(buf, math.Float64bits(x))
	}
	return buf
}

func encodeData(data []byte, f pixel.DataFormat) (*yaml.Node, error) {
	size := f.ElementSize()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", pixel.ErrUnknownDataFormat, f)
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", pixel.ErrBufferSize, len(data), size)
	}

	order := pixel.HostByteOrder()
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for off := 0; off < len(data); off += size {
		b := data[off : off+size]
		var raw uint64
		switch size {
		case 1:
			raw = uint64(b[0])
		case 2:
			raw = uint64(order.Uint16(b))
		case 4:
			raw = uint64(order.Uint32(b))
		case 8:
			raw = order.Uint64(b)
		}
		seq.Content = append(seq.Content, scalarNode(raw, size, f))
	}
	return seq, nil
}

func scalarNode(raw uint64, size int, f pixel.DataFormat) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int"}
	switch f {
	case pixel.Hex8, pixel.Hex16, pixel.Hex32, pixel.Hex64:
		n.Value = fmt.Sprintf("0x%0*X", size*2, raw)
	case pixel.Int16:
		n.Value = strconv.FormatInt(int64(int16(raw)), 10)
	case pixel.Int32:
		n.Value = strconv.FormatInt(int64(int32(raw)), 10)
	case pixel.Int64:
		n.Value = strconv.FormatInt(int64(raw), 10)
	case pixel.Float32:
		n.Tag = "!!float"
		n.Value = formatFloat(float64(math.Float32frombits(uint32(raw))), 32)
	case pixel.Float64:
		n.Tag = "!!float"
		n.Value = formatFloat(math.Float64frombits(raw), 64)
	default:
		n.Value = strconv.FormatUint(raw, 10)
	}
	return n
}

func formatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return ".nan"
	case math.IsInf(v, 1):
		return ".inf"
	case math.IsInf(v, -1):
		return "-.inf"
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}
