package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// API identifies a GPU programming interface
type API int

const (
	Unknown API = iota
	DirectX
	Vulkan
	Metal
)

var (
	// ErrUnknownAPI is returned when an API name or program binary cannot be identified
	ErrUnknownAPI = errors.New("unknown GPU API")
)

// spirvMagic is the first word of every SPIR-V module
const spirvMagic = 0x07230203

func (a API) String() string {
	switch a {
	case DirectX:
		return "DirectX"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	default:
		return "Unknown"
	}
}

// ParseAPI maps user input to an API. An empty name yields Unknown, which
// callers treat as "detect from the program".
func ParseAPI(name string) (API, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return Unknown, nil
	case "dx", "d3d12", "directx":
		return DirectX, nil
	case "vk", "vulkan":
		return Vulkan, nil
	case "mtl", "metal":
		return Metal, nil
	default:
		return Unknown, fmt.Errorf("%w: %s", ErrUnknownAPI, name)
	}
}

// SupportedAPIs returns the APIs a device can implement
func SupportedAPIs() []API {
	return []API{DirectX, Vulkan, Metal}
}

// DetectAPI guesses the target API from a compiled program's header
func DetectAPI(program []byte) (API, error) {
	switch {
	case bytes.HasPrefix(program, []byte("DXBC")):
		return DirectX, nil
	case bytes.HasPrefix(program, []byte("MTLB")):
		return Metal, nil
	case len(program) >= 4 && binary.LittleEndian.Uint32(program) == spirvMagic:
		return Vulkan, nil
	}
	return Unknown, fmt.Errorf("%w: could not identify API to execute provided program", ErrUnknownAPI)
}
