package terrain

import (
	"context"
	"errors"
	"sync"
)

// ErrElevationUnavailable is returned when no valid elevation could be
// obtained for a coordinate after all attempts.
var ErrElevationUnavailable = errors.New("elevation unavailable")

// Provider answers single-point elevation queries. ok is false when the
// source has no value for the coordinate (yet).
type Provider interface {
	QueryElevation(ctx context.Context, lon, lat float64) (elev float64, ok bool, err error)
}

// Readiness is implemented by providers that load data asynchronously.
// Providers that do not implement it are treated as always ready.
type Readiness interface {
	IsReady() bool
	OnReady(fn func())
}

// readySignal is embedded by providers that become ready at runtime.
type readySignal struct {
	mu        sync.Mutex
	ready     bool
	callbacks []func()
}

func (r *readySignal) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// OnReady runs fn once the provider is ready, immediately if it already is.
func (r *readySignal) OnReady(fn func()) {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		fn()
		return
	}
	r.callbacks = append(r.callbacks, fn)
	r.mu.Unlock()
}

func (r *readySignal) markReady() {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		return
	}
	r.ready = true
	cbs := r.callbacks
	r.callbacks = nil
	r.mu.Unlock()

	for _, fn := range cbs {
		fn()
	}
}

// FlatProvider returns the same elevation everywhere. Useful for tests and
// for planning over water or known flat sites.
type FlatProvider struct {
	Elevation float64
}

func (f FlatProvider) QueryElevation(_ context.Context, _, _ float64) (float64, bool, error) {
	return f.Elevation, true, nil
}
