package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DistanceToLine returns the minimum distance in meters from p to any leg
// of ls. Legs are measured in a local equirectangular frame centred on p,
// which is accurate for the few-kilometre corridors used in analysis.
func DistanceToLine(p orb.Point, ls orb.LineString) float64 {
	if len(ls) == 0 {
		return math.MaxFloat64
	}
	if len(ls) == 1 {
		return Distance(p, ls[0])
	}

	origin := orb.Point{0, 0}
	minDist := math.MaxFloat64
	for i := 0; i < len(ls)-1; i++ {
		a := toLocal(p, ls[i])
		b := toLocal(p, ls[i+1])
		if d := distanceToSegment(origin, a, b); d < minDist {
			minDist = d
		}
	}
	return minDist
}

// toLocal projects q into meters east/north of ref.
func toLocal(ref, q orb.Point) orb.Point {
	cosLat := math.Cos(ref[1] * math.Pi / 180.0)
	return orb.Point{
		(q[0] - ref[0]) * metersPerDegreeLat * cosLat,
		(q[1] - ref[1]) * metersPerDegreeLat,
	}
}

// distanceToSegment calculates the minimum distance from a point to a line segment.
func distanceToSegment(p, a, b orb.Point) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]

	if dx == 0 && dy == 0 {
		return planar.Distance(p, a)
	}

	// Projection parameter of p onto ab
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)

	if t < 0 {
		return planar.Distance(p, a)
	} else if t > 1 {
		return planar.Distance(p, b)
	}

	closest := orb.Point{a[0] + t*dx, a[1] + t*dy}
	return planar.Distance(p, closest)
}
