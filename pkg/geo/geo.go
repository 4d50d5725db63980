package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadius is the sphere radius every helper here measures on, shared
// with orb/geo so its bounds and our distances agree.
const EarthRadius = orb.EarthRadius

const metersPerDegreeLat = EarthRadius * math.Pi / 180.0

// Distance is the Haversine distance between two lon/lat points in meters.
func Distance(p1, p2 orb.Point) float64 {
	return orbgeo.DistanceHaversine(p1, p2)
}

// DestinationPoint returns the point distMeters from start along bearing
// (degrees clockwise from north).
func DestinationPoint(start orb.Point, distMeters, bearing float64) orb.Point {
	return orbgeo.PointAtBearingAndDistance(start, bearing, distMeters)
}

// Lerp interpolates linearly in lon/lat space. t=0 is a, t=1 is b.
func Lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

// MetersToLatDegrees converts a north-south distance to degrees of latitude.
func MetersToLatDegrees(m float64) float64 {
	return m / metersPerDegreeLat
}

// MetersToLonDegrees converts an east-west distance along the parallel at
// lat to degrees of longitude.
func MetersToLonDegrees(m, lat float64) float64 {
	cosLat := math.Cos(lat * math.Pi / 180.0)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	return m / (metersPerDegreeLat * cosLat)
}

// BoundAround returns the bounding box of a disc of radius meters. A disc
// crossing the antimeridian yields an inverted box, which ValidBound rejects.
func BoundAround(center orb.Point, radius float64) orb.Bound {
	return orbgeo.NewBoundAroundPoint(center, radius)
}

// PadBound grows b by at least meters on every side, clamped to WGS84.
func PadBound(b orb.Bound, meters float64) orb.Bound {
	return orbgeo.BoundPad(b, meters)
}

// BoundWidth is the east-west extent of b along its center latitude, in meters.
func BoundWidth(b orb.Bound) float64 {
	lat := b.Center()[1]
	return Distance(orb.Point{b.Min[0], lat}, orb.Point{b.Max[0], lat})
}

// BoundHeight is the north-south extent of b, in meters.
func BoundHeight(b orb.Bound) float64 {
	lon := b.Center()[0]
	return Distance(orb.Point{lon, b.Min[1]}, orb.Point{lon, b.Max[1]})
}

// ValidBound reports whether b is finite, inside WGS84 ranges and not inverted.
func ValidBound(b orb.Bound) bool {
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.Min[0] < -180 || b.Max[0] > 180 || b.Min[1] < -90 || b.Max[1] > 90 {
		return false
	}
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1]
}

// Circle approximates a circle of radius meters as a closed polygon ring.
func Circle(center orb.Point, radius float64, steps int) orb.Polygon {
	if steps < 4 {
		steps = 4
	}
	ring := make(orb.Ring, 0, steps+1)
	for i := 0; i < steps; i++ {
		ring = append(ring, DestinationPoint(center, radius, float64(i)*360.0/float64(steps)))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// LineLength sums the Haversine lengths of the legs of ls.
func LineLength(ls orb.LineString) float64 {
	return orbgeo.LengthHaversine(ls)
}
