package model

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Point3D is a WGS84 position with an elevation in meters AMSL.
type Point3D struct {
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Elevation float64 `json:"elevation"`
}

// Point returns the 2D position.
func (p Point3D) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// StationRole identifies what a ground station is used for.
type StationRole string

const (
	RoleGCS      StationRole = "gcs"
	RoleObserver StationRole = "observer"
	RoleRepeater StationRole = "repeater"
)

// Roles lists the known roles in their evaluation order.
var Roles = []StationRole{RoleGCS, RoleObserver, RoleRepeater}

// Valid reports whether r is one of the known roles.
func (r StationRole) Valid() bool {
	return r.Order() >= 0
}

// Order returns the position of the role in Roles, or -1.
func (r StationRole) Order() int {
	for i, known := range Roles {
		if r == known {
			return i
		}
	}
	return -1
}

// Station is a ground station placed on the map.
type Station struct {
	ID     int64       `json:"id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Role   StationRole `json:"role"`
	Base   Point3D     `json:"base"`
	Offset float64     `json:"offset"` // mounting height above Base.Elevation
	Range  float64     `json:"range"`  // analysis radius in meters
}

// EffectiveElevation is the antenna height AMSL.
func (s Station) EffectiveElevation() float64 {
	return s.Base.Elevation + s.Offset
}

// Position returns the station location at its effective elevation.
func (s Station) Position() Point3D {
	return Point3D{Lon: s.Base.Lon, Lat: s.Base.Lat, Elevation: s.EffectiveElevation()}
}

// FlightPath is an ordered 3D polyline. Each waypoint carries the altitude
// flown on the leg that starts at it.
type FlightPath struct {
	ID        int64     `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Waypoints []Point3D `json:"waypoints"`
}

// LineString returns the 2D centerline.
func (f FlightPath) LineString() orb.LineString {
	ls := make(orb.LineString, len(f.Waypoints))
	for i, wp := range f.Waypoints {
		ls[i] = wp.Point()
	}
	return ls
}

// GridCell is a circular sampling region on an analysis grid.
type GridCell struct {
	ID              string      `json:"id"`
	Center          orb.Point   `json:"center"`
	Polygon         orb.Polygon `json:"-"`
	Elevation       float64     `json:"elevation"`
	VisibilityScore float64     `json:"visibilityScore"`
	FullyVisible    bool        `json:"fullyVisible"`
	LastAnalyzed    time.Time   `json:"lastAnalyzed"`
}

// NewGridCell creates an unanalyzed cell.
func NewGridCell(id string, center orb.Point, poly orb.Polygon, elevation float64) GridCell {
	return GridCell{
		ID:        id,
		Center:    center,
		Polygon:   poly,
		Elevation: elevation,
	}
}

// Position returns the cell center at its terrain elevation.
func (c GridCell) Position() Point3D {
	return Point3D{Lon: c.Center[0], Lat: c.Center[1], Elevation: c.Elevation}
}

// SetScore records an analysis result. Scores are clamped to [0,100].
func (c *GridCell) SetScore(score float64, at time.Time) {
	switch {
	case score < 0 || score != score:
		score = 0
	case score > 100:
		score = 100
	}
	c.VisibilityScore = score
	c.FullyVisible = score == 100
	c.LastAnalyzed = at
}

// LOSProfilePoint is one sample of a line-of-sight profile.
type LOSProfilePoint struct {
	Distance    float64 `json:"distance"`
	Terrain     float64 `json:"terrain"`
	LOSAltitude float64 `json:"losAltitude"`
}

// Obstructed reports whether terrain rises above the ray at this sample.
func (p LOSProfilePoint) Obstructed() bool {
	return p.Terrain > p.LOSAltitude
}

// StationLOSResult is the outcome of a station-to-station check.
type StationLOSResult struct {
	Clear               bool    `json:"clear"`
	ObstructionDistance float64 `json:"obstructionDistance,omitempty"`
	ObstructionFraction float64 `json:"obstructionFraction,omitempty"`
}

// VisibilitySegment is a maximal run of flight path samples sharing one
// visibility state.
type VisibilitySegment struct {
	Visible bool      `json:"visible"`
	Points  []Point3D `json:"points"`
}

// NewVisibilitySegment returns an error for an empty point list.
func NewVisibilitySegment(visible bool, pts []Point3D) (VisibilitySegment, error) {
	if len(pts) == 0 {
		return VisibilitySegment{}, fmt.Errorf("visibility segment needs at least one point")
	}
	cp := make([]Point3D, len(pts))
	copy(cp, pts)
	return VisibilitySegment{Visible: visible, Points: cp}, nil
}

// AnalysisStats summarizes a grid analysis.
type AnalysisStats struct {
	Total             int           `json:"total"`
	FullyVisible      int           `json:"fullyVisible"`
	AverageVisibility float64       `json:"averageVisibility"`
	Duration          time.Duration `json:"duration"`
}

// FlightPathStats summarizes a flight path visibility analysis.
type FlightPathStats struct {
	TotalLength     float64       `json:"totalLength"`
	VisibleLength   float64       `json:"visibleLength"`
	CoveragePercent float64       `json:"coveragePercent"`
	Duration        time.Duration `json:"duration"`
}

// GridResult is the output of the grid analyzers.
type GridResult struct {
	Cells []GridCell    `json:"cells"`
	Stats AnalysisStats `json:"stats"`
}

// Clone returns a deep copy.
func (r GridResult) Clone() GridResult {
	out := GridResult{Stats: r.Stats, Cells: make([]GridCell, len(r.Cells))}
	for i, c := range r.Cells {
		c.Polygon = clonePolygon(c.Polygon)
		out.Cells[i] = c
	}
	return out
}

// PathResult is the output of the flight path visibility analyzer.
type PathResult struct {
	Segments []VisibilitySegment `json:"segments"`
	Stats    FlightPathStats     `json:"stats"`
}

// Clone returns a deep copy.
func (r PathResult) Clone() PathResult {
	out := PathResult{Stats: r.Stats, Segments: make([]VisibilitySegment, len(r.Segments))}
	for i, s := range r.Segments {
		pts := make([]Point3D, len(s.Points))
		copy(pts, s.Points)
		out.Segments[i] = VisibilitySegment{Visible: s.Visible, Points: pts}
	}
	return out
}

func clonePolygon(p orb.Polygon) orb.Polygon {
	if p == nil {
		return nil
	}
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = append(orb.Ring(nil), ring...)
	}
	return out
}
