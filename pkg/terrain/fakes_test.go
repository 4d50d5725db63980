package terrain

import (
	"context"
	"sync/atomic"

	"github.com/paulmach/orb"
)

// funcProvider adapts a function to Provider and counts calls.
type funcProvider struct {
	fn    func(lon, lat float64) (float64, bool, error)
	calls atomic.Int64
}

func (f *funcProvider) QueryElevation(_ context.Context, lon, lat float64) (float64, bool, error) {
	f.calls.Add(1)
	return f.fn(lon, lat)
}

// funcSource adapts a function to ElevationSource.
type funcSource func(p orb.Point) (float64, error)

func (f funcSource) Elevation(_ context.Context, p orb.Point) (float64, error) {
	return f(p)
}

// loadingProvider is a provider that becomes ready when told to.
type loadingProvider struct {
	readySignal
	funcProvider
}
