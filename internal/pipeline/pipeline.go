package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/offloadtest/internal/pixel"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingField is returned when a required document field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrResourceNotFound is returned by FindResource.
	ErrResourceNotFound = errors.New("resource not found")
)

// Access describes how a kernel may use a resource.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
	Constant
)

var accessNames = [...]string{
	ReadOnly:  "ReadOnly",
	ReadWrite: "ReadWrite",
	Constant:  "Constant",
}

func (a Access) String() string {
	if a < 0 || int(a) >= len(accessNames) {
		return fmt.Sprintf("Access(%d)", int(a))
	}
	return accessNames[a]
}

// MarshalText implements encoding.TextMarshaler.
func (a Access) MarshalText() ([]byte, error) {
	if a < 0 || int(a) >= len(accessNames) {
		return nil, fmt.Errorf("unknown access %d", int(a))
	}
	return []byte(accessNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Access) UnmarshalText(text []byte) error {
	for i, n := range accessNames {
		if n == string(text) {
			*a = Access(i)
			return nil
		}
	}
	return fmt.Errorf("unknown access %q", string(text))
}

// DirectXBinding is the register/space pair a resource binds to.
type DirectXBinding struct {
	Register uint32 `yaml:"Register"`
	Space    uint32 `yaml:"Space"`
}

// OutputProperties names a resource and gives it image dimensions.
// Depth is the per-channel bit depth.
type OutputProperties struct {
	Name   string `yaml:"Name"`
	Height int    `yaml:"Height"`
	Width  int    `yaml:"Width"`
	Depth  int    `yaml:"Depth"`
}

// Resource is a buffer bound to a kernel. Data is populated from the
// document before execution and by the GPU backend afterwards; it is laid
// out in host byte order.
type Resource struct {
	Format      pixel.DataFormat
	Channels    int
	RawSize     int
	Access      Access
	Data        []byte
	DXBinding   DirectXBinding
	OutputProps OutputProperties
}

// IsRaw reports whether the resource is an opaque blob of RawSize-byte
// elements rather than per-channel data.
func (r *Resource) IsRaw() bool {
	return r.RawSize > 0
}

// SingleElementSize is the byte size of one channel element.
func (r *Resource) SingleElementSize() int {
	return r.Format.ElementSize()
}

// ElementSize is the byte stride of one element (all channels, or RawSize).
func (r *Resource) ElementSize() int {
	if r.IsRaw() {
		return r.RawSize
	}
	return r.SingleElementSize() * r.Channels
}

// Size returns the number of bytes backing the resource.
func (r *Resource) Size() int {
	return len(r.Data)
}

// DescriptorSet groups resources bound together.
type DescriptorSet struct {
	Resources []Resource `yaml:"Resources"`
}

// Pipeline describes a kernel dispatch and its bound resources.
type Pipeline struct {
	DispatchSize [3]int          `yaml:"DispatchSize"`
	Sets         []DescriptorSet `yaml:"DescriptorSets"`
}

// DescriptorCount returns the number of resources across all sets.
func (p *Pipeline) DescriptorCount() int {
	n := 0
	for _, s := range p.Sets {
		n += len(s.Resources)
	}
	return n
}

// FindResource returns the resource whose output name matches.
func (p *Pipeline) FindResource(name string) (*Resource, error) {
	for i := range p.Sets {
		for j := range p.Sets[i].Resources {
			r := &p.Sets[i].Resources[j]
			if r.OutputProps.Name == name {
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no descriptor with name %q", ErrResourceNotFound, name)
}

// Parse decodes a pipeline description document.
func Parse(data []byte) (*Pipeline, error) {
	var doc struct {
		DispatchSize *[3]int         `yaml:"DispatchSize"`
		Sets         []DescriptorSet `yaml:"DescriptorSets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}
	if doc.DispatchSize == nil {
		return nil, fmt.Errorf("%w: DispatchSize", ErrMissingField)
	}
	if doc.Sets == nil {
		return nil, fmt.Errorf("%w: DescriptorSets", ErrMissingField)
	}
	return &Pipeline{DispatchSize: *doc.DispatchSize, Sets: doc.Sets}, nil
}

// Load reads and parses a pipeline description file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the pipeline, including resource contents, as YAML.
func (p *Pipeline) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize pipeline: %w", err)
	}
	return out, nil
}
