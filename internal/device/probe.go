package device

import (
	"context"
	"log/slog"
)

// probeBackends registers the devices of every compiled-in backend. This
// build ships no native GPU backend, so Open reports ErrBackendUnavailable
// for every API.
func probeBackends(_ context.Context, r *Registry) error {
	slog.Debug("No native GPU backends compiled in", "apis", len(SupportedAPIs()))
	return nil
}
