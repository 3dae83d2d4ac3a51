// Package device abstracts GPU backends that execute a compiled program
// against a pipeline description and fill its resources with results.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/offloadtest/internal/pipeline"
)

var (
	// ErrBackendUnavailable indicates no device for the API is available in this build
	ErrBackendUnavailable = errors.New("GPU backend unavailable")
)

// Device executes compiled programs on one GPU
type Device interface {
	// API returns the programming interface the device implements
	API() API

	// Description returns a human readable adapter name
	Description() string

	// ExecuteProgram binds the pipeline's resources, dispatches the program
	// and copies results back into the resources' Data buffers.
	ExecuteProgram(ctx context.Context, program []byte, p *pipeline.Pipeline) error
}

// Registry holds the devices discovered at startup
type Registry struct {
	mu          sync.RWMutex
	devices     []Device
	initialized bool
}

var defaultRegistry = &Registry{}

// Register adds a device to the registry
func (r *Registry) Register(d Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, d)
	slog.Debug("Registered device", "api", d.API().String(), "description", d.Description())
}

// Devices returns a snapshot of the registered devices
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device(nil), r.devices...)
}

// Initialize probes the compiled-in backends once
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.initialized = true
	r.mu.Unlock()

	return probeBackends(ctx, r)
}

// Open returns the first registered device implementing api
func (r *Registry) Open(api API) (Device, error) {
	if api == Unknown {
		return nil, ErrUnknownAPI
	}
	for _, d := range r.Devices() {
		if d.API() == api {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s device", ErrBackendUnavailable, api)
}

// Default returns the process-wide registry filled by Initialize
func Default() *Registry {
	return defaultRegistry
}
