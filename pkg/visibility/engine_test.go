package visibility

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sightline/pkg/geo"
	"sightline/pkg/grid"
	"sightline/pkg/model"
	"sightline/pkg/terrain"
)

type terrainFunc func(lon, lat float64) float64

func (f terrainFunc) QueryElevation(_ context.Context, lon, lat float64) (float64, bool, error) {
	return f(lon, lat), true, nil
}

func newTestEngine(t *testing.T, p terrain.Provider) (*Engine, *Metrics) {
	t.Helper()
	acfg := terrain.DefaultAccessConfig()
	acfg.ChunkDelay = 0
	acfg.RetryDelay = time.Millisecond
	access := terrain.NewAccess(p, nil, acfg)

	cfg := DefaultEngineConfig()
	cfg.Analysis.ChunkPause = 0
	cfg.Grid.GridSize = 50
	cfg.Grid.Range = 300
	m := NewMetrics(prometheus.NewRegistry())
	return NewEngine(access, cfg, m), m
}

func TestEngine_AnalyzeStation_FlatTerrain(t *testing.T) {
	e, m := newTestEngine(t, terrain.FlatProvider{Elevation: 120})
	st := model.Station{Role: model.RoleGCS, Base: model.Point3D{Lon: 8.5, Lat: 47.4}, Offset: 2}

	var stages []string
	res, err := e.AnalyzeStation(context.Background(), st, 0, func(stage string, pct float64) {
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Cells)
	assert.Equal(t, []string{"grid", "analysis"}, stages)

	for _, c := range res.Cells {
		assert.Equal(t, 120.0, c.Elevation)
		assert.True(t, c.FullyVisible)
		assert.LessOrEqual(t, geo.Distance(c.Center, st.Base.Point()), 300.0)
	}
	assert.Equal(t, len(res.Cells), res.Stats.FullyVisible)
	assert.Equal(t, 100.0, res.Stats.AverageVisibility)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("station", "ok")))
}

func TestEngine_AnalyzeStation_RidgeBlocks(t *testing.T) {
	center := orb.Point{8.5, 47.4}
	ridgeLon := geo.DestinationPoint(center, 100, 90)[0]
	// A 200 m wall 100 m east of the station
	e, _ := newTestEngine(t, terrainFunc(func(lon, _ float64) float64 {
		if lon > ridgeLon && lon < ridgeLon+geo.MetersToLonDegrees(30, 47.4) {
			return 200
		}
		return 10
	}))
	st := model.Station{Role: model.RoleObserver, Base: model.Point3D{Lon: center[0], Lat: center[1], Elevation: 10}, Offset: 5}

	res, err := e.AnalyzeStation(context.Background(), st, 25, nil)
	require.NoError(t, err)

	east, west := 0, 0
	for _, c := range res.Cells {
		assert.Contains(t, []float64{0, 100}, c.VisibilityScore)
		if c.Center[0] > ridgeLon+geo.MetersToLonDegrees(60, 47.4) {
			assert.False(t, c.FullyVisible, "cell behind ridge at %v", c.Center)
			east++
		}
		if c.Center[0] < center[0] {
			assert.True(t, c.FullyVisible)
			west++
		}
	}
	assert.Positive(t, east)
	assert.Positive(t, west)
}

func TestEngine_CheckStationToStation(t *testing.T) {
	a := orb.Point{0, 0}
	b := geo.DestinationPoint(a, 3000, 90)
	mid := geo.Lerp(a, b, 0.5)
	sa := model.Station{Role: model.RoleGCS, Base: model.Point3D{Lon: a[0], Lat: a[1], Elevation: 5}}
	sb := model.Station{Role: model.RoleRepeater, Base: model.Point3D{Lon: b[0], Lat: b[1], Elevation: 5}}

	flat, _ := newTestEngine(t, terrain.FlatProvider{})
	res, err := flat.CheckStationToStation(context.Background(), sa, sb)
	require.NoError(t, err)
	assert.True(t, res.Clear)

	bumped, _ := newTestEngine(t, terrainFunc(func(lon, lat float64) float64 {
		if geo.Distance(orb.Point{lon, lat}, mid) <= 30 {
			return 50
		}
		return 0
	}))
	res, err = bumped.CheckStationToStation(context.Background(), sa, sb)
	require.NoError(t, err)
	assert.False(t, res.Clear)
	assert.InDelta(t, 0.5, res.ObstructionFraction, 0.02)

	profile, err := bumped.GetLOSProfile(context.Background(), sa, sb)
	require.NoError(t, err)
	start, end, ok := terrain.FindObstructedSpan(profile)
	require.True(t, ok)
	n := float64(len(profile) - 1)
	assert.LessOrEqual(t, float64(start)/n, 0.5+0.02)
	assert.GreaterOrEqual(t, float64(end)/n, 0.5-0.02)
}

func TestEngine_ResolvesStationElevationFromTerrain(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{Elevation: 300})
	a := model.Station{Base: model.Point3D{Lon: 1, Lat: 1}, Offset: 10}
	b := model.Station{Base: model.Point3D{Lon: 1.01, Lat: 1}, Offset: 10}

	profile, err := e.GetLOSProfile(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 310.0, profile[0].LOSAltitude)
	assert.Equal(t, 311.0, profile[len(profile)-1].LOSAltitude)
}

func TestEngine_InvalidStation(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{})
	_, err := e.CheckStationToStation(context.Background(),
		model.Station{Role: "tower", Base: model.Point3D{Lon: 1, Lat: 1}},
		model.Station{Base: model.Point3D{Lon: 2, Lat: 1}})
	assert.True(t, model.IsKind(err, model.KindInvalidInput))

	_, err = e.AnalyzeStation(context.Background(), model.Station{Base: model.Point3D{Lon: 1, Lat: 99}}, 30, nil)
	assert.True(t, model.IsKind(err, model.KindGridGeneration))
}

func TestEngine_AnalyzeFlightPath_Cached(t *testing.T) {
	e, m := newTestEngine(t, terrain.FlatProvider{Elevation: 20})
	start := orb.Point{6.6, 46.5}
	end := geo.DestinationPoint(start, 600, 45)
	path := model.FlightPath{Waypoints: []model.Point3D{
		{Lon: start[0], Lat: start[1], Elevation: 120},
		{Lon: end[0], Lat: end[1], Elevation: 120},
	}}

	first, err := e.AnalyzeFlightPath(context.Background(), path, 50, 150, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.Cells)

	samples := SamplePath(path, DefaultConfig().PathSampleInterval)
	for _, c := range first.Cells {
		covered := false
		for _, s := range samples {
			if geo.Distance(s.Point(), c.Center) <= 150 {
				covered = true
				break
			}
		}
		if covered {
			assert.Equal(t, 100.0, c.VisibilityScore)
		} else {
			assert.Zero(t, c.VisibilityScore)
		}
	}

	first.Cells[0].VisibilityScore = -1
	second, err := e.AnalyzeFlightPath(context.Background(), path, 50, 150, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, second.Cells[0].VisibilityScore)
	assert.Len(t, second.Cells, len(first.Cells))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("miss")))
}

func TestEngine_AnalyzeFlightPath_InvalidInput(t *testing.T) {
	e, m := newTestEngine(t, terrain.FlatProvider{})
	_, err := e.AnalyzeFlightPath(context.Background(), model.FlightPath{}, 30, 100, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidInput))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("flight_path", "error")))
}

func TestEngine_AnalyzeMerged(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{Elevation: 15})
	a := orb.Point{-3.7, 40.4}
	stations := []model.Station{
		{Role: model.RoleGCS, Base: model.Point3D{Lon: a[0], Lat: a[1]}, Offset: 3, Range: 400},
		{Role: model.RoleObserver, Base: model.Point3D{Lon: geo.DestinationPoint(a, 4000, 90)[0], Lat: a[1]}, Offset: 3, Range: 400},
	}

	res, err := e.AnalyzeMerged(context.Background(), stations, 100, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Cells)

	var box orb.Bound
	for i, c := range res.Cells {
		if i == 0 {
			box = orb.Bound{Min: c.Center, Max: c.Center}
		}
		box = box.Extend(c.Center)

		inRange := false
		for _, st := range stations {
			if geo.Distance(st.Base.Point(), c.Center) <= st.Range {
				inRange = true
			}
		}
		assert.Equal(t, inRange, c.FullyVisible, "cell %v", c.Center)
	}
	assert.LessOrEqual(t, geo.BoundWidth(box), 5000.0)
	assert.LessOrEqual(t, geo.BoundHeight(box), 5000.0)
	assert.Positive(t, res.Stats.FullyVisible)
	assert.Less(t, res.Stats.FullyVisible, res.Stats.Total)

	// Far apart stations still yield a grid inside the 5 km limit
	stations[1].Base.Lon = geo.DestinationPoint(a, 60000, 90)[0]
	far, err := e.AnalyzeMerged(context.Background(), stations, 250, nil)
	require.NoError(t, err)
	for i, c := range far.Cells {
		if i == 0 {
			box = orb.Bound{Min: c.Center, Max: c.Center}
		}
		box = box.Extend(c.Center)
	}
	assert.LessOrEqual(t, geo.BoundWidth(box), 5000.0)
}

func TestEngine_AnalyzeMerged_InvalidInput(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{})
	p := model.Point3D{Lon: 1, Lat: 1}
	_, err := e.AnalyzeMerged(context.Background(), []model.Station{{Base: p}, {Base: p}}, 30, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidInput))
}

func TestEngine_AnalyzeFlightPathVisibility(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{})
	start := orb.Point{151.2, -33.9}
	mid := geo.DestinationPoint(start, 400, 90)
	end := geo.DestinationPoint(mid, 400, 90)
	path := model.FlightPath{Waypoints: []model.Point3D{
		{Lon: start[0], Lat: start[1], Elevation: 100},
		{Lon: mid[0], Lat: mid[1], Elevation: 100},
		{Lon: end[0], Lat: end[1], Elevation: 100},
	}}
	stations := []model.Station{{Role: model.RoleGCS, Base: model.Point3D{Lon: mid[0], Lat: mid[1], Elevation: 50}}}

	res, err := e.AnalyzeFlightPathVisibility(context.Background(), path, stations, nil)
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.True(t, res.Segments[0].Visible)
	assert.InDelta(t, 800, res.Stats.TotalLength, 0.5)
	assert.InDelta(t, 100, res.Stats.CoveragePercent, 0.01)

	_, err = e.AnalyzeFlightPathVisibility(context.Background(), path, nil, nil)
	assert.True(t, model.IsKind(err, model.KindInvalidInput))
}

func TestEngine_Cancelled(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{Elevation: 5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.AnalyzeStation(ctx, model.Station{Base: model.Point3D{Lon: 1, Lat: 1, Elevation: 5}}, 30, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAborted)
}

func TestEngine_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e, _ := newTestEngine(t, terrain.FlatProvider{Elevation: 40})
	e.WithTracerProvider(tp)
	ctx := context.Background()

	st := model.Station{Role: model.RoleGCS, Base: model.Point3D{Lon: 8.5, Lat: 47.4}, Offset: 2}
	res, err := e.AnalyzeStation(ctx, st, 0, nil)
	require.NoError(t, err)

	p := model.Point3D{Lon: 1, Lat: 1}
	_, err = e.AnalyzeMerged(ctx, []model.Station{{Base: p}, {Base: p}}, 30, nil)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "AnalyzeStation", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("items", len(res.Cells)))
	assert.Contains(t, spans[0].Attributes(), attribute.String("station.role", "gcs"))

	assert.Equal(t, "AnalyzeMerged", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Status().Description, "distinct stations")
	require.NotEmpty(t, spans[1].Events())
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}

func TestEngine_PreloadsAnalysisArea(t *testing.T) {
	e, _ := newTestEngine(t, terrain.FlatProvider{Elevation: 75})
	ctx := context.Background()
	center := orb.Point{8.5, 47.4}

	_, err := e.AnalyzeStation(ctx, model.Station{Role: model.RoleGCS, Base: model.Point3D{Lon: center[0], Lat: center[1], Elevation: 75}}, 0, nil)
	require.NoError(t, err)
	box := geo.BoundAround(center, 300)
	for _, c := range boundCorners(box) {
		v, ok := e.elev.Cache().Get(c[0], c[1])
		assert.True(t, ok, "corner %v not preloaded", c)
		assert.Equal(t, 75.0, v)
	}

	stations := []model.Station{
		{Role: model.RoleGCS, Base: model.Point3D{Lon: -3.7, Lat: 40.4, Elevation: 75}},
		{Role: model.RoleObserver, Base: model.Point3D{Lon: -3.69, Lat: 40.4, Elevation: 75}},
	}
	_, err = e.AnalyzeMerged(ctx, stations, 100, nil)
	require.NoError(t, err)
	unified := grid.UnifiedBound(stations, 300, 5000)
	_, ok := e.elev.Cache().Get(unified.Max[0], unified.Max[1])
	assert.True(t, ok)
}
