package visibility

import (
	"context"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sightline/pkg/geo"
	"sightline/pkg/model"
)

func wp(p orb.Point, elev float64) model.Point3D {
	return model.Point3D{Lon: p[0], Lat: p[1], Elevation: elev}
}

func TestSamplePath_SteppedAltitude(t *testing.T) {
	a := orb.Point{9, 45}
	b := geo.DestinationPoint(a, 25, 90)
	c := geo.DestinationPoint(b, 27, 90)
	path := model.FlightPath{Waypoints: []model.Point3D{wp(a, 10), wp(b, 20), wp(c, 30)}}

	samples := SamplePath(path, 10)
	require.Len(t, samples, 7)

	var alts []float64
	for _, s := range samples {
		alts = append(alts, s.Elevation)
	}
	assert.Equal(t, []float64{10, 10, 10, 20, 20, 20, 30}, alts)

	// Spacing is kept across the waypoint boundary
	for i := 1; i < 6; i++ {
		assert.InDelta(t, 10, geo.Distance(samples[i-1].Point(), samples[i].Point()), 0.01)
	}
	assert.Equal(t, path.Waypoints[0], samples[0])
	assert.Equal(t, path.Waypoints[2], samples[6])
}

func TestSamplePath_Degenerate(t *testing.T) {
	assert.Nil(t, SamplePath(model.FlightPath{}, 10))

	p := model.Point3D{Lon: 1, Lat: 1, Elevation: 5}
	samples := SamplePath(model.FlightPath{Waypoints: []model.Point3D{p, p}}, 10)
	assert.Equal(t, []model.Point3D{p}, samples)
}

func TestBuildSegments_DuplicatesBoundary(t *testing.T) {
	pts := make([]model.Point3D, 5)
	for i := range pts {
		pts[i] = model.Point3D{Lon: float64(i)}
	}
	segs, err := buildSegments(pts, []bool{true, true, false, false, true})
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.True(t, segs[0].Visible)
	assert.Equal(t, pts[0:2], segs[0].Points)
	assert.False(t, segs[1].Visible)
	assert.Equal(t, pts[1:4], segs[1].Points)
	assert.True(t, segs[2].Visible)
	assert.Equal(t, pts[3:5], segs[2].Points)

	for i := 1; i < len(segs); i++ {
		prev := segs[i-1].Points
		assert.Equal(t, prev[len(prev)-1], segs[i].Points[0])
	}
}

func TestBuildSegments_SingleState(t *testing.T) {
	pts := []model.Point3D{{Lon: 1}, {Lon: 2}, {Lon: 3}}
	segs, err := buildSegments(pts, []bool{false, false, false})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Visible)
	assert.Len(t, segs[0].Points, 3)
}

func TestOrderStations(t *testing.T) {
	stations := []model.Station{
		{Name: "r", Role: model.RoleRepeater},
		{Name: "g1", Role: model.RoleGCS},
		{Name: "o", Role: model.RoleObserver},
		{Name: "x", Role: "unknown"},
		{Name: "g2", Role: model.RoleGCS},
	}
	var names []string
	for _, s := range orderStations(stations) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"g1", "g2", "o", "r", "x"}, names)
	assert.Equal(t, "r", stations[0].Name)
}

func TestAnalyzePathVisibility_Coverage(t *testing.T) {
	start := orb.Point{0, 0}
	end := geo.DestinationPoint(start, 1000, 90)
	mid := geo.Lerp(start, end, 0.5)
	path := model.FlightPath{Waypoints: []model.Point3D{wp(start, 100), wp(end, 100)}}

	los := &fakeLOS{fn: func(_, dst model.Point3D) bool { return dst.Lon < mid[0] }}
	a := NewAnalyzer(los, testConfig())
	stations := []model.Station{{Role: model.RoleGCS, Base: model.Point3D{Lon: 0, Lat: 0.01}}}

	var lastPct int
	res, err := a.AnalyzePathVisibility(context.Background(), path, stations, func(done, total int) { lastPct = 100 * done / total })
	require.NoError(t, err)
	assert.Equal(t, 100, lastPct)

	require.Len(t, res.Segments, 2)
	assert.True(t, res.Segments[0].Visible)
	assert.False(t, res.Segments[1].Visible)
	assert.InDelta(t, 1000, res.Stats.TotalLength, 0.01)
	assert.InDelta(t, 495, res.Stats.VisibleLength, 10)
	assert.InDelta(t, 49.5, res.Stats.CoveragePercent, 1)
}

func TestAnalyzePathVisibility_FirstStationWins(t *testing.T) {
	start := orb.Point{0, 0}
	path := model.FlightPath{Waypoints: []model.Point3D{wp(start, 100), wp(geo.DestinationPoint(start, 200, 0), 100)}}

	var mu sync.Mutex
	sources := make(map[float64]int)
	los := &fakeLOS{fn: func(src, _ model.Point3D) bool {
		mu.Lock()
		sources[src.Lon]++
		mu.Unlock()
		return true
	}}
	a := NewAnalyzer(los, testConfig())
	stations := []model.Station{
		{Role: model.RoleRepeater, Base: model.Point3D{Lon: 3}},
		{Role: model.RoleGCS, Base: model.Point3D{Lon: 1}},
		{Role: model.RoleObserver, Base: model.Point3D{Lon: 2}},
	}

	res, err := a.AnalyzePathVisibility(context.Background(), path, stations, nil)
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.True(t, res.Segments[0].Visible)
	assert.InDelta(t, 100, res.Stats.CoveragePercent, 1e-6)

	samples := len(SamplePath(path, testConfig().PathSampleInterval))
	assert.Equal(t, map[float64]int{1: samples}, sources)
}

func TestAnalyzePathVisibility_InvalidInput(t *testing.T) {
	a := NewAnalyzer(&fakeLOS{fn: func(_, _ model.Point3D) bool { return true }}, testConfig())
	good := model.FlightPath{Waypoints: []model.Point3D{{Lon: 0, Lat: 0}, {Lon: 0.01, Lat: 0}}}

	_, err := a.AnalyzePathVisibility(context.Background(), good, nil, nil)
	assert.True(t, model.IsKind(err, model.KindInvalidInput))

	_, err = a.AnalyzePathVisibility(context.Background(), model.FlightPath{}, []model.Station{{}}, nil)
	assert.True(t, model.IsKind(err, model.KindInvalidInput))
}
