package terrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/uber/h3-go/v4"
	"golang.org/x/sync/errgroup"

	"sightline/pkg/request"
)

// AccessConfig tunes the elevation access layer.
type AccessConfig struct {
	Attempts           int
	RetryDelay         time.Duration
	ChunkSize          int
	ChunkDelay         time.Duration
	Workers            int
	ReadyTimeout       time.Duration
	ValidationAttempts int
	ValidationDelay    time.Duration
	PreloadResolution  int
	PreloadMaxSamples  int
}

// DefaultAccessConfig returns the production defaults.
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		Attempts:           3,
		RetryDelay:         50 * time.Millisecond,
		ChunkSize:          50,
		ChunkDelay:         10 * time.Millisecond,
		Workers:            16,
		ReadyTimeout:       10 * time.Second,
		ValidationAttempts: 5,
		ValidationDelay:    500 * time.Millisecond,
		PreloadResolution:  8,
		PreloadMaxSamples:  400,
	}
}

// Sample is one resolved coordinate of a batch.
type Sample struct {
	Elevation float64
	// Fallback is set when the provider never produced a valid value and
	// Elevation was substituted.
	Fallback bool
}

// Access is the elevation access layer: cached, retried provider queries
// with fallback for batch work.
type Access struct {
	provider Provider
	cache    *ElevationCache
	cfg      AccessConfig
	metrics  *Metrics
	logger   *slog.Logger
}

// NewAccess wires a provider to a cache. A nil cache gets a private one.
func NewAccess(p Provider, cache *ElevationCache, cfg AccessConfig) *Access {
	if cache == nil {
		cache = NewElevationCache(0.05)
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 50
	}
	if cfg.Workers < 1 {
		cfg.Workers = cfg.ChunkSize
	}
	return &Access{
		provider: p,
		cache:    cache,
		cfg:      cfg,
		logger:   slog.With("component", "elevation"),
	}
}

// WithMetrics attaches metrics and returns a for chaining.
func (a *Access) WithMetrics(m *Metrics) *Access {
	a.metrics = m
	return a
}

// Cache exposes the underlying cache.
func (a *Access) Cache() *ElevationCache {
	return a.cache
}

// Elevation returns the terrain elevation at p. It fails, wrapping
// ErrElevationUnavailable, only after every attempt returned nothing usable.
func (a *Access) Elevation(ctx context.Context, p orb.Point) (float64, error) {
	lon, lat := p[0], p[1]
	if v, ok := a.cache.Get(lon, lat); ok {
		a.metrics.cacheHit()
		return v, nil
	}
	a.metrics.cacheMiss()

	v, err := request.Retry(ctx, a.cfg.Attempts, request.Linear(a.cfg.RetryDelay),
		func(ctx context.Context, attempt int) (float64, error) {
			a.metrics.query()
			elev, ok, err := a.provider.QueryElevation(ctx, lon, lat)
			if err != nil {
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				return 0, request.Retryable(err)
			}
			if !ok || math.IsNaN(elev) || math.IsInf(elev, 0) {
				return 0, request.Retryable(ErrElevationUnavailable)
			}
			return elev, nil
		})
	if err != nil {
		a.metrics.failure()
		if errors.Is(err, ErrElevationUnavailable) {
			return 0, fmt.Errorf("at %.5f,%.5f: %w", lon, lat, err)
		}
		return 0, fmt.Errorf("%w at %.5f,%.5f: %w", ErrElevationUnavailable, lon, lat, err)
	}

	a.cache.Put(lon, lat, v)
	return v, nil
}

// Batch resolves pts in chunks, concurrently within a chunk. Coordinates
// that fail fall back to the average of values resolved so far in this
// batch, or 0 before any exist. progress, if set, receives the percentage
// of processed coordinates after each chunk. Results are in input order.
// Only cancellation fails the call.
func (a *Access) Batch(ctx context.Context, pts []orb.Point, progress func(pct float64)) ([]Sample, error) {
	out := make([]Sample, len(pts))
	if len(pts) == 0 {
		return out, nil
	}

	var sum float64
	var count int
	for start := 0; start < len(pts); start += a.cfg.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+a.cfg.ChunkSize, len(pts))

		var mu sync.Mutex
		var g errgroup.Group
		g.SetLimit(a.cfg.Workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				v, err := a.Elevation(ctx, pts[i])
				if err != nil {
					out[i].Fallback = true
					return nil
				}
				out[i].Elevation = v
				mu.Lock()
				sum += v
				count++
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		fallback := 0.0
		if count > 0 {
			fallback = sum / float64(count)
		}
		for i := start; i < end; i++ {
			if out[i].Fallback {
				out[i].Elevation = fallback
				a.metrics.fallback()
			}
		}

		if progress != nil {
			progress(100 * float64(end) / float64(len(pts)))
		}
		if end < len(pts) && a.cfg.ChunkDelay > 0 {
			if err := sleep(ctx, a.cfg.ChunkDelay); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

var (
	errNotValidated = errors.New("elevation source returned no usable probe values")
	errNotLoaded    = errors.New("elevation source not loaded")
)

// WaitReady gates bulk work on the provider. It waits for the provider to
// report loaded (bounded by ReadyTimeout), then probes up to three of the
// given points until one returns a non-zero elevation, retrying validation
// a bounded number of times. It always proceeds eventually; only ctx
// cancellation is returned as an error. Providers without Readiness are
// considered loaded and skip validation.
func (a *Access) WaitReady(ctx context.Context, probes []orb.Point) error {
	r, ok := a.provider.(Readiness)
	if !ok {
		return nil
	}

	if !r.IsReady() {
		if err := a.awaitLoaded(ctx, r, probes); err != nil {
			return err
		}
	}

	if len(probes) > 3 {
		probes = []orb.Point{probes[0], probes[len(probes)/2], probes[len(probes)-1]}
	}
	if len(probes) == 0 {
		return nil
	}

	_, err := request.Retry(ctx, a.cfg.ValidationAttempts, request.Constant(a.cfg.ValidationDelay),
		func(ctx context.Context, attempt int) (struct{}, error) {
			for _, p := range probes {
				v, ok, err := a.provider.QueryElevation(ctx, p[0], p[1])
				if err == nil && ok && v != 0 && !math.IsNaN(v) {
					return struct{}{}, nil
				}
			}
			a.logger.Debug("Elevation validation failed", "attempt", attempt)
			return struct{}{}, request.Retryable(errNotValidated)
		})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("Elevation source still returning empty values, proceeding anyway", "error", err)
	}
	return nil
}

// Preload warms the cache for the area covered by pts: a coarse sampling
// grid over their bounding box plus the points themselves.
func (a *Access) Preload(ctx context.Context, pts []orb.Point) {
	if len(pts) == 0 {
		return
	}
	b := orb.MultiPoint(pts).Bound()
	samples := a.preloadGrid(b)
	samples = append(samples, pts...)

	start := time.Now()
	if _, err := a.Batch(ctx, samples, nil); err != nil {
		a.logger.Debug("Preload interrupted", "error", err)
		return
	}
	a.logger.Debug("Preload complete", "samples", len(samples), "took", time.Since(start))
}

// preloadGrid returns H3 cell centres covering b, thinned to at most
// PreloadMaxSamples. Boxes smaller than one cell get a 5x5 lattice instead.
func (a *Access) preloadGrid(b orb.Bound) []orb.Point {
	loop := h3.GeoLoop{
		{Lat: b.Min[1], Lng: b.Min[0]},
		{Lat: b.Min[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Min[0]},
	}
	var out []orb.Point
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, a.cfg.PreloadResolution)
	if err != nil {
		a.logger.Debug("H3 polyfill failed", "error", err)
	}

	stride := 1
	if limit := a.cfg.PreloadMaxSamples; limit > 0 && len(cells) > limit {
		stride = (len(cells) + limit - 1) / limit
	}
	for i := 0; i < len(cells); i += stride {
		ll, err := h3.CellToLatLng(cells[i])
		if err != nil {
			continue
		}
		out = append(out, orb.Point{ll.Lng, ll.Lat})
	}
	if len(out) > 0 {
		return out
	}

	const n = 5
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, orb.Point{
				b.Min[0] + (b.Max[0]-b.Min[0])*float64(i)/float64(n-1),
				b.Min[1] + (b.Max[1]-b.Min[1])*float64(j)/float64(n-1),
			})
		}
	}
	return out
}

// awaitLoaded blocks until r signals ready or ReadyTimeout passes. Sources
// that load on demand only become ready by answering a lookup, so the first
// probe is polled meanwhile.
func (a *Access) awaitLoaded(ctx context.Context, r Readiness, probes []orb.Point) error {
	timeout := a.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	readyCh := make(chan struct{})
	var once sync.Once
	r.OnReady(func() { once.Do(func() { close(readyCh) }) })

	if len(probes) > 0 {
		go a.pollLoaded(waitCtx, r, probes[0], timeout)
	}

	select {
	case <-readyCh:
		return nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		a.logger.Warn("Elevation source not ready, proceeding", "waited", timeout)
		return nil
	}
}

func (a *Access) pollLoaded(ctx context.Context, r Readiness, p orb.Point, timeout time.Duration) {
	delay := a.cfg.ValidationDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	_, _ = request.Retry(ctx, int(timeout/delay)+1, request.Constant(delay),
		func(ctx context.Context, attempt int) (struct{}, error) {
			if !r.IsReady() {
				_, _, _ = a.provider.QueryElevation(ctx, p[0], p[1])
			}
			if r.IsReady() {
				return struct{}{}, nil
			}
			return struct{}{}, request.Retryable(errNotLoaded)
		})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
