package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   orb.Point
		p2   orb.Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   orb.Point{0, 0},
			p2:   orb.Point{0, 0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   orb.Point{-0.1278, 51.5074},
			p2:   orb.Point{2.3522, 48.8566},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   orb.Point{0, 0},
			p2:   orb.Point{1, 0},
			want: 111319,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// Allow 1% margin of error due to float precision/earth radius var
			margin := tt.want * 0.01
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	start := orb.Point{151.2, -33.8}
	for _, brng := range []float64{0, 45, 90, 200, 315} {
		dest := DestinationPoint(start, 2500, brng)
		assert.InDelta(t, 2500, Distance(start, dest), 0.5, "bearing %v", brng)
	}
}

func TestMetersToDegrees(t *testing.T) {
	lat := -33.8
	dLon := MetersToLonDegrees(1000, lat)
	got := Distance(orb.Point{151, lat}, orb.Point{151 + dLon, lat})
	assert.InDelta(t, 1000, got, 1)

	dLat := MetersToLatDegrees(1000)
	got = Distance(orb.Point{151, lat}, orb.Point{151, lat + dLat})
	assert.InDelta(t, 1000, got, 0.01)
}

func TestBoundAround(t *testing.T) {
	center := orb.Point{10, 45}
	b := BoundAround(center, 2000)
	assert.InDelta(t, 4000, BoundWidth(b), 5)
	assert.InDelta(t, 4000, BoundHeight(b), 0.5)
	assert.True(t, b.Contains(center))

	// Padding converts with the mean meridian degree, so it may overshoot
	// slightly but never falls short.
	padded := PadBound(b, 1000)
	assert.GreaterOrEqual(t, BoundHeight(padded), 6000.0)
	assert.InDelta(t, 6000, BoundHeight(padded), 5)
	assert.GreaterOrEqual(t, BoundWidth(padded), 6000.0)

	// Discs over the antimeridian cannot be gridded
	assert.False(t, ValidBound(BoundAround(orb.Point{179.99, 10}, 5000)))

	clamped := PadBound(orb.Bound{Min: orb.Point{179.9, 89.9}, Max: orb.Point{179.9, 89.9}}, 50000)
	assert.True(t, ValidBound(clamped))
}

func TestValidBound(t *testing.T) {
	tests := []struct {
		name string
		b    orb.Bound
		want bool
	}{
		{"Normal", orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{2, 2}}, true},
		{"NaN", orb.Bound{Min: orb.Point{math.NaN(), 1}, Max: orb.Point{2, 2}}, false},
		{"Lat out of range", orb.Bound{Min: orb.Point{1, -91}, Max: orb.Point{2, 2}}, false},
		{"Lon out of range", orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{181, 2}}, false},
		{"Inverted", orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{1, 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidBound(tt.b))
		})
	}
}

func TestCircle(t *testing.T) {
	center := orb.Point{8, 47}
	poly := Circle(center, 25, 16)
	ring := poly[0]
	assert.Len(t, ring, 17)
	assert.Equal(t, ring[0], ring[len(ring)-1])
	for _, p := range ring {
		assert.InDelta(t, 25, Distance(center, p), 0.01)
	}
	assert.True(t, planar.PolygonContains(poly, center))
}

func TestDistanceToLine(t *testing.T) {
	ls := orb.LineString{{0, 0}, {0.01, 0}}
	// Point ~111m north of the middle of the leg
	p := orb.Point{0.005, MetersToLatDegrees(111)}
	assert.InDelta(t, 111, DistanceToLine(p, ls), 0.5)

	// Beyond the end, distance is to the endpoint
	end := orb.Point{0.01 + MetersToLonDegrees(200, 0), 0}
	assert.InDelta(t, 200, DistanceToLine(end, ls), 0.5)

	assert.InDelta(t, 0, DistanceToLine(orb.Point{0.002, 0}, ls), 1e-6)
}

func TestLineLength(t *testing.T) {
	ls := orb.LineString{{0, 0}, {0.01, 0}, {0.02, 0}}
	assert.InDelta(t, Distance(ls[0], ls[2]), LineLength(ls), 1e-6)
	assert.Zero(t, LineLength(ls[:1]))
}
