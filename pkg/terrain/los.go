package terrain

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/paulmach/orb"

	"sightline/pkg/geo"
	"sightline/pkg/logging"
	"sightline/pkg/model"
)

// ElevationSource is what the LOS kernel samples terrain from.
type ElevationSource interface {
	Elevation(ctx context.Context, p orb.Point) (float64, error)
}

// LOSConfig sets the sampling cadence of the kernel.
type LOSConfig struct {
	SampleSpacing float64 // meters between samples
	MinSamples    int
	MinClearance  float64 // added to the target elevation, meters
}

// DefaultLOSConfig samples every 50 m, at least 10 times, with 1 m clearance.
func DefaultLOSConfig() LOSConfig {
	return LOSConfig{SampleSpacing: 50, MinSamples: 10, MinClearance: 1}
}

// LOSChecker performs Line-of-Sight calculations against terrain.
type LOSChecker struct {
	elevation ElevationSource
	cfg       LOSConfig
}

// NewLOSChecker creates a new LOS checker.
func NewLOSChecker(e ElevationSource, cfg LOSConfig) *LOSChecker {
	if cfg.SampleSpacing <= 0 {
		cfg.SampleSpacing = 50
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 10
	}
	return &LOSChecker{elevation: e, cfg: cfg}
}

// ray is the sampling plan between two points.
type ray struct {
	src, dst model.Point3D
	dist     float64
	steps    int
	clear    float64
}

func (l *LOSChecker) plan(src, dst model.Point3D) ray {
	dist := geo.Distance(src.Point(), dst.Point())
	steps := max(l.cfg.MinSamples, int(math.Ceil(dist/l.cfg.SampleSpacing)))
	return ray{src: src, dst: dst, dist: dist, steps: steps, clear: l.cfg.MinClearance}
}

func (r ray) fraction(i int) float64 {
	return float64(i) / float64(r.steps)
}

func (r ray) position(f float64) orb.Point {
	return geo.Lerp(r.src.Point(), r.dst.Point(), f)
}

func (r ray) altitude(f float64) float64 {
	return r.src.Elevation + (r.dst.Elevation+r.clear-r.src.Elevation)*f
}

// scanner resolves terrain along one ray. Failed lookups fall back to the
// mean of the samples resolved so far, or 0.
type scanner struct {
	src   ElevationSource
	sum   float64
	count int
}

func (s *scanner) terrain(ctx context.Context, p orb.Point) float64 {
	v, err := s.src.Elevation(ctx, p)
	if err != nil {
		fallback := 0.0
		if s.count > 0 {
			fallback = s.sum / float64(s.count)
		}
		slog.Debug("LOS elevation fallback", "lon", p[0], "lat", p[1], "value", fallback, "error", err)
		return fallback
	}
	s.sum += v
	s.count++
	return v
}

// IsClear reports whether the ray from source to target clears the terrain
// at every sample. It returns at the first obstruction.
func (l *LOSChecker) IsClear(ctx context.Context, source, target model.Point3D) bool {
	if l.elevation == nil {
		return true // Fail open if no elevation data
	}

	r := l.plan(source, target)
	sc := &scanner{src: l.elevation}
	for i := 0; i <= r.steps; i++ {
		f := r.fraction(i)
		p := r.position(f)
		ground := sc.terrain(ctx, p)
		rayAlt := r.altitude(f)

		logging.TraceDefault("LOS sample", "step", i, "ground_m", ground, "ray_m", rayAlt)
		if ground > rayAlt {
			slog.Debug("LOS blocked by terrain",
				"step", i, "of", r.steps,
				"sample_lat", fmt.Sprintf("%.5f", p[1]),
				"sample_lon", fmt.Sprintf("%.5f", p[0]),
				"ground_m", ground,
				"ray_alt_m", fmt.Sprintf("%.1f", rayAlt),
				"dist_m", fmt.Sprintf("%.0f", r.dist))
			return false
		}
	}
	return true
}

// Profile samples the ray at the same cadence as IsClear and keeps every
// sample.
func (l *LOSChecker) Profile(ctx context.Context, source, target model.Point3D) []model.LOSProfilePoint {
	r := l.plan(source, target)
	out := make([]model.LOSProfilePoint, 0, r.steps+1)
	var sc *scanner
	if l.elevation != nil {
		sc = &scanner{src: l.elevation}
	}
	for i := 0; i <= r.steps; i++ {
		f := r.fraction(i)
		ground := 0.0
		if sc != nil {
			ground = sc.terrain(ctx, r.position(f))
		}
		out = append(out, model.LOSProfilePoint{
			Distance:    r.dist * f,
			Terrain:     ground,
			LOSAltitude: r.altitude(f),
		})
	}
	return out
}

// FindObstructedSpan returns the first and last obstructed sample indices.
// A lone obstructed sample is widened to include its successor, if any.
func FindObstructedSpan(profile []model.LOSProfilePoint) (start, end int, ok bool) {
	start, end = -1, -1
	for i, p := range profile {
		if !p.Obstructed() {
			continue
		}
		if start < 0 {
			start = i
		}
		end = i
	}
	if start < 0 {
		return 0, 0, false
	}
	if start == end && end+1 < len(profile) {
		end++
	}
	return start, end, true
}

// CheckStationToStation checks the ray between two station positions and
// locates the first obstruction.
func (l *LOSChecker) CheckStationToStation(ctx context.Context, a, b model.Point3D) model.StationLOSResult {
	profile := l.Profile(ctx, a, b)
	for i, p := range profile {
		if !p.Obstructed() {
			continue
		}
		frac := 0.0
		if n := len(profile) - 1; n > 0 {
			frac = float64(i) / float64(n)
		}
		return model.StationLOSResult{
			Clear:               false,
			ObstructionDistance: p.Distance,
			ObstructionFraction: frac,
		}
	}
	return model.StationLOSResult{Clear: true}
}
