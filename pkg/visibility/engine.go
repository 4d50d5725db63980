package visibility

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sightline/pkg/geo"
	"sightline/pkg/grid"
	"sightline/pkg/model"
	"sightline/pkg/terrain"
)

const tracerName = "sightline/pkg/visibility"

// Progress receives stage names ("grid", "analysis") and percentages.
type Progress func(stage string, pct float64)

// EngineConfig collects the settings of every engine component.
type EngineConfig struct {
	Grid          grid.Config
	LOS           terrain.LOSConfig
	Analysis      Config
	CacheCapacity int
	CacheTTL      time.Duration
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Grid:          grid.DefaultConfig(),
		LOS:           terrain.DefaultLOSConfig(),
		Analysis:      DefaultConfig(),
		CacheCapacity: 10,
		CacheTTL:      30 * time.Minute,
	}
}

// Engine is the entry point for every analysis.
type Engine struct {
	elev     *terrain.Access
	los      *terrain.LOSChecker
	grids    *grid.Builder
	analyzer *Analyzer
	cache    *ResultCache[model.GridResult]
	metrics  *Metrics
	tracer   trace.Tracer
	cfg      EngineConfig
	logger   *slog.Logger
}

// NewEngine wires the engine on top of an elevation access layer. metrics
// may be nil.
func NewEngine(elev *terrain.Access, cfg EngineConfig, metrics *Metrics) *Engine {
	los := terrain.NewLOSChecker(elev, cfg.LOS)
	if cfg.Analysis.Range <= 0 {
		cfg.Analysis.Range = cfg.Grid.Range
	}
	grids := grid.NewBuilder(elev, cfg.Grid)
	cfg.Grid = grids.Config()
	return &Engine{
		elev:     elev,
		los:      los,
		grids:    grids,
		analyzer: NewAnalyzer(los, cfg.Analysis),
		cache:    NewResultCache(cfg.CacheCapacity, cfg.CacheTTL, model.GridResult.Clone),
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
		cfg:      cfg,
		logger:   slog.With("component", "engine"),
	}
}

// WithTracerProvider reports spans to tp instead of the global provider and
// returns e for chaining.
func (e *Engine) WithTracerProvider(tp trace.TracerProvider) *Engine {
	e.tracer = tp.Tracer(tracerName)
	return e
}

// AnalyzeStation builds a grid over the station's range and scores it from
// the station.
func (e *Engine) AnalyzeStation(ctx context.Context, st model.Station, gridSize float64, progress Progress) (res model.GridResult, err error) {
	ctx, span := e.tracer.Start(ctx, "AnalyzeStation", trace.WithAttributes(
		attribute.String("station.role", string(st.Role)),
		attribute.Float64("grid.size", gridSize),
	))
	start := time.Now()
	defer func() { e.finish(span, "station", len(res.Cells), start, err) }()

	st, err = e.resolveStation(ctx, "station analysis", st)
	if err != nil {
		return model.GridResult{}, err
	}
	if err := e.waitReady(ctx, "station analysis", st.Base.Point()); err != nil {
		return model.GridResult{}, err
	}
	e.elev.Preload(ctx, boundCorners(geo.BoundAround(st.Base.Point(), st.Range)))

	cells, err := e.grids.PointRadius(ctx, st.Base.Point(), st.Range, gridSize, stagePct(progress, "grid"))
	if err != nil {
		return model.GridResult{}, err
	}
	return e.analyzer.AnalyzeStation(ctx, st, cells, stageCount(progress, "analysis"))
}

// AnalyzeFlightPath builds a corridor grid around the path and scores each
// cell from the path samples in range. Results are cached per path, grid
// size and range.
func (e *Engine) AnalyzeFlightPath(ctx context.Context, path model.FlightPath, gridSize, rangeM float64, progress Progress) (res model.GridResult, err error) {
	const op = "flight path analysis"
	ctx, span := e.tracer.Start(ctx, "AnalyzeFlightPath", trace.WithAttributes(
		attribute.Int("path.waypoints", len(path.Waypoints)),
	))
	start := time.Now()
	defer func() { e.finish(span, "flight_path", len(res.Cells), start, err) }()

	if len(path.Waypoints) < 2 {
		ierr := model.InputError(op, "flight path needs at least 2 waypoints")
		ierr.PathLength = len(path.Waypoints)
		return model.GridResult{}, ierr
	}
	if gridSize <= 0 {
		gridSize = e.cfg.Grid.GridSize
	}
	if rangeM <= 0 {
		rangeM = e.cfg.Analysis.Range
	}

	key := FlightPathKey(path, gridSize, rangeM)
	if cached, at, ok := e.cache.Get(key); ok {
		e.metrics.cacheLookup(true)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		e.logger.Debug("Flight path analysis served from cache", "key", key, "age", time.Since(at))
		return cached, nil
	}
	e.metrics.cacheLookup(false)

	pts := []orb.Point(path.LineString())
	if err := e.waitReady(ctx, op, pts...); err != nil {
		return model.GridResult{}, err
	}
	e.elev.Preload(ctx, pts)

	cells, err := e.grids.Corridor(ctx, path, rangeM, gridSize, stagePct(progress, "grid"))
	if err != nil {
		return model.GridResult{}, err
	}
	res, err = e.analyzer.AnalyzeFlightPath(ctx, path, cells, rangeM, stageCount(progress, "analysis"))
	if err != nil {
		return model.GridResult{}, err
	}
	e.cache.Put(key, res)
	return res, nil
}

// AnalyzeMerged scores a unified grid over two or more stations; a cell is
// visible if any station sees it.
func (e *Engine) AnalyzeMerged(ctx context.Context, stations []model.Station, gridSize float64, progress Progress) (res model.GridResult, err error) {
	const op = "merged analysis"
	ctx, span := e.tracer.Start(ctx, "AnalyzeMerged", trace.WithAttributes(
		attribute.Int("stations", len(stations)),
	))
	start := time.Now()
	defer func() { e.finish(span, "merged", len(res.Cells), start, err) }()

	if err := grid.CheckStations(op, stations); err != nil {
		return model.GridResult{}, err
	}
	resolved, err := e.resolveStations(ctx, op, stations)
	if err != nil {
		return model.GridResult{}, err
	}
	if err := e.waitReady(ctx, op, stationPoints(resolved)...); err != nil {
		return model.GridResult{}, err
	}
	e.elev.Preload(ctx, boundCorners(grid.UnifiedBound(resolved, e.cfg.Grid.Range, e.cfg.Grid.MaxExtent)))

	cells, box, err := e.grids.Unified(ctx, resolved, gridSize, stagePct(progress, "grid"))
	if err != nil {
		return model.GridResult{}, err
	}
	span.SetAttributes(attribute.Float64Slice("grid.bounds", []float64{box.Min[0], box.Min[1], box.Max[0], box.Max[1]}))
	return e.analyzer.AnalyzeMerged(ctx, resolved, cells, stageCount(progress, "analysis"))
}

// AnalyzeFlightPathVisibility splits the path into segments seen and not
// seen by any of the stations.
func (e *Engine) AnalyzeFlightPathVisibility(ctx context.Context, path model.FlightPath, stations []model.Station, progress Progress) (res model.PathResult, err error) {
	const op = "flight path visibility"
	ctx, span := e.tracer.Start(ctx, "AnalyzeFlightPathVisibility", trace.WithAttributes(
		attribute.Int("path.waypoints", len(path.Waypoints)),
		attribute.Int("stations", len(stations)),
	))
	start := time.Now()
	defer func() {
		n := 0
		for _, s := range res.Segments {
			n += len(s.Points)
		}
		e.finish(span, "path_visibility", n, start, err)
	}()

	if len(path.Waypoints) < 2 {
		ierr := model.InputError(op, "flight path needs at least 2 waypoints")
		ierr.PathLength = len(path.Waypoints)
		return model.PathResult{}, ierr
	}
	if len(stations) == 0 {
		return model.PathResult{}, model.InputError(op, "at least 1 station is required")
	}
	resolved, err := e.resolveStations(ctx, op, stations)
	if err != nil {
		return model.PathResult{}, err
	}

	pts := append([]orb.Point(path.LineString()), stationPoints(resolved)...)
	if err := e.waitReady(ctx, op, pts...); err != nil {
		return model.PathResult{}, err
	}
	e.elev.Preload(ctx, pts)

	return e.analyzer.AnalyzePathVisibility(ctx, path, resolved, stageCount(progress, "analysis"))
}

// CheckStationToStation tests the line of sight between two stations.
func (e *Engine) CheckStationToStation(ctx context.Context, a, b model.Station) (model.StationLOSResult, error) {
	ctx, span := e.tracer.Start(ctx, "CheckStationToStation")
	defer span.End()

	pa, pb, err := e.resolvePair(ctx, "station link", a, b)
	if err != nil {
		span.RecordError(err)
		return model.StationLOSResult{}, err
	}
	res := e.los.CheckStationToStation(ctx, pa, pb)
	span.SetAttributes(attribute.Bool("los.clear", res.Clear))
	return res, nil
}

// GetLOSProfile samples terrain and ray altitude between two stations.
func (e *Engine) GetLOSProfile(ctx context.Context, a, b model.Station) ([]model.LOSProfilePoint, error) {
	ctx, span := e.tracer.Start(ctx, "GetLOSProfile")
	defer span.End()

	pa, pb, err := e.resolvePair(ctx, "los profile", a, b)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return e.los.Profile(ctx, pa, pb), nil
}

// ElevationAt exposes the elevation layer for single lookups.
func (e *Engine) ElevationAt(ctx context.Context, p orb.Point) (float64, error) {
	return e.elev.Elevation(ctx, p)
}

func (e *Engine) resolvePair(ctx context.Context, op string, a, b model.Station) (model.Point3D, model.Point3D, error) {
	ra, err := e.resolveStation(ctx, op, a)
	if err != nil {
		return model.Point3D{}, model.Point3D{}, err
	}
	rb, err := e.resolveStation(ctx, op, b)
	if err != nil {
		return model.Point3D{}, model.Point3D{}, err
	}
	return ra.Position(), rb.Position(), nil
}

// resolveStation validates st and fills in what the caller left out: the
// default range and, for a zero base elevation, the terrain elevation.
func (e *Engine) resolveStation(ctx context.Context, op string, st model.Station) (model.Station, error) {
	if st.Role != "" && !st.Role.Valid() {
		return st, model.InputError(op, "unknown station role "+string(st.Role))
	}
	p := st.Base.Point()
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) || p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
		b := orb.Bound{Min: p, Max: p}
		return st, model.GridError(op, "station position out of range", &b)
	}
	if st.Range <= 0 {
		st.Range = e.cfg.Grid.Range
	}
	if st.Base.Elevation == 0 {
		if v, err := e.elev.Elevation(ctx, p); err == nil {
			st.Base.Elevation = v
		} else {
			e.logger.Debug("Station elevation unavailable, using 0", "lon", p[0], "lat", p[1], "error", err)
		}
	}
	return st, nil
}

func (e *Engine) resolveStations(ctx context.Context, op string, stations []model.Station) ([]model.Station, error) {
	out := make([]model.Station, len(stations))
	for i, st := range stations {
		r, err := e.resolveStation(ctx, op, st)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (e *Engine) waitReady(ctx context.Context, op string, probes ...orb.Point) error {
	if err := e.elev.WaitReady(ctx, probes); err != nil {
		return model.AbortError(op, 0, 0, err)
	}
	return nil
}

func (e *Engine) finish(span trace.Span, kind string, items int, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("Analysis failed", "kind", kind, "error", err)
	} else {
		span.SetAttributes(attribute.Int("items", items))
		e.logger.Info("Analysis complete", "kind", kind, "items", items, "took", elapsed.Round(time.Millisecond))
	}
	e.metrics.observe(kind, items, elapsed, err)
	span.End()
}

func stationPoints(stations []model.Station) []orb.Point {
	pts := make([]orb.Point, len(stations))
	for i, s := range stations {
		pts[i] = s.Base.Point()
	}
	return pts
}

func boundCorners(b orb.Bound) []orb.Point {
	return []orb.Point{b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]}}
}

func stagePct(p Progress, stage string) func(float64) {
	if p == nil {
		return nil
	}
	return func(pct float64) { p(stage, pct) }
}

func stageCount(p Progress, stage string) ProgressFunc {
	if p == nil {
		return nil
	}
	return func(done, total int) {
		if total == 0 {
			p(stage, 100)
			return
		}
		p(stage, 100*float64(done)/float64(total))
	}
}
