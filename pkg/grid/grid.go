// Package grid lays regular lattices of circular sampling cells over the
// areas an analysis covers.
package grid

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"sightline/pkg/geo"
	"sightline/pkg/model"
	"sightline/pkg/terrain"
)

// cellNamespace scopes the name-based cell IDs.
var cellNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sightline/grid-cell"))

// Stamper resolves terrain elevations for cell centers.
type Stamper interface {
	Batch(ctx context.Context, pts []orb.Point, progress func(pct float64)) ([]terrain.Sample, error)
}

// Config holds the grid defaults.
type Config struct {
	GridSize    float64 // lattice spacing in meters
	Range       float64 // default corridor half-width and station radius
	MaxExtent   float64 // unified box limit per axis
	MaxCells    int
	CircleSteps int
}

// DefaultConfig returns 30 m cells, 500 m range, 5 km unified extent.
func DefaultConfig() Config {
	return Config{
		GridSize:    30,
		Range:       500,
		MaxExtent:   5000,
		MaxCells:    50000,
		CircleSteps: 16,
	}
}

// Builder generates elevation-stamped grids.
type Builder struct {
	elev   Stamper
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a Builder. Zero config fields take the defaults.
func NewBuilder(elev Stamper, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.GridSize <= 0 {
		cfg.GridSize = def.GridSize
	}
	if cfg.Range <= 0 {
		cfg.Range = def.Range
	}
	if cfg.MaxExtent <= 0 {
		cfg.MaxExtent = def.MaxExtent
	}
	if cfg.MaxCells <= 0 {
		cfg.MaxCells = def.MaxCells
	}
	if cfg.CircleSteps < 4 {
		cfg.CircleSteps = def.CircleSteps
	}
	return &Builder{elev: elev, cfg: cfg, logger: slog.With("component", "grid")}
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// PointRadius lays a lattice inside the disc of radius meters around center.
func (b *Builder) PointRadius(ctx context.Context, center orb.Point, radius, gridSize float64, progress func(float64)) ([]model.GridCell, error) {
	const op = "point-radius grid"
	if radius <= 0 {
		radius = b.cfg.Range
	}
	gridSize, err := b.gridSize(op, gridSize)
	if err != nil {
		return nil, err
	}

	box := geo.BoundAround(center, radius)
	if !finite(center) || !geo.ValidBound(box) {
		return nil, model.GridError(op, "degenerate bounding box", &box)
	}

	pts, err := b.lattice(op, box, gridSize, func(p orb.Point) bool {
		return geo.Distance(p, center) <= radius
	})
	if err != nil {
		return nil, err
	}
	return b.stamp(ctx, op, pts, gridSize, progress)
}

// Corridor lays a lattice over the flight path's bounding box extended by
// rangeM, keeping only points within rangeM of the centerline.
func (b *Builder) Corridor(ctx context.Context, path model.FlightPath, rangeM, gridSize float64, progress func(float64)) ([]model.GridCell, error) {
	const op = "corridor grid"
	if len(path.Waypoints) < 2 {
		e := model.InputError(op, "flight path needs at least 2 waypoints")
		e.PathLength = len(path.Waypoints)
		return nil, e
	}
	if rangeM <= 0 {
		rangeM = b.cfg.Range
	}
	gridSize, err := b.gridSize(op, gridSize)
	if err != nil {
		return nil, err
	}

	ls := path.LineString()
	raw := ls.Bound()
	if !geo.ValidBound(raw) {
		e := model.GridError(op, "degenerate bounding box", &raw)
		e.PathLength = len(ls)
		return nil, e
	}
	if geo.LineLength(ls) == 0 {
		e := model.GridError(op, "flight path has zero length", &raw)
		e.PathLength = len(ls)
		return nil, e
	}

	box := geo.PadBound(raw, rangeM)
	pts, err := b.lattice(op, box, gridSize, func(p orb.Point) bool {
		return geo.DistanceToLine(p, ls) <= rangeM
	})
	if err != nil {
		return nil, err
	}
	return b.stamp(ctx, op, pts, gridSize, progress)
}

// Unified lays an unmasked lattice over the clamped union of the stations'
// range boxes. It returns the box it used.
func (b *Builder) Unified(ctx context.Context, stations []model.Station, gridSize float64, progress func(float64)) ([]model.GridCell, orb.Bound, error) {
	const op = "unified grid"
	if err := CheckStations(op, stations); err != nil {
		return nil, orb.Bound{}, err
	}
	gridSize, err := b.gridSize(op, gridSize)
	if err != nil {
		return nil, orb.Bound{}, err
	}

	box := UnifiedBound(stations, b.cfg.Range, b.cfg.MaxExtent)
	if !geo.ValidBound(box) {
		e := model.GridError(op, "degenerate bounding box", &box)
		e.StationCount = len(stations)
		return nil, box, e
	}

	pts, err := b.lattice(op, box, gridSize, nil)
	if err != nil {
		return nil, box, err
	}
	cells, err := b.stamp(ctx, op, pts, gridSize, progress)
	return cells, box, err
}

// CheckStations requires at least two stations at distinct positions.
func CheckStations(op string, stations []model.Station) error {
	if len(stations) < 2 {
		e := model.InputError(op, "at least 2 stations are required")
		e.StationCount = len(stations)
		return e
	}
	first := stations[0].Base.Point()
	for _, s := range stations[1:] {
		if s.Base.Point() != first {
			return nil
		}
	}
	e := model.InputError(op, "at least 2 distinct stations are required")
	e.StationCount = len(stations)
	return e
}

// UnifiedBound unions each station's range box and clamps any axis wider
// than maxExtent to maxExtent around the union's center. Stations without a
// range use defaultRange.
func UnifiedBound(stations []model.Station, defaultRange, maxExtent float64) orb.Bound {
	var box orb.Bound
	for i, s := range stations {
		r := s.Range
		if r <= 0 {
			r = defaultRange
		}
		sb := geo.BoundAround(s.Base.Point(), r)
		if i == 0 {
			box = sb
			continue
		}
		box = box.Union(sb)
	}

	c := box.Center()
	if geo.BoundWidth(box) > maxExtent {
		half := geo.MetersToLonDegrees(maxExtent/2, c[1])
		box.Min[0], box.Max[0] = c[0]-half, c[0]+half
	}
	if geo.BoundHeight(box) > maxExtent {
		half := geo.MetersToLatDegrees(maxExtent / 2)
		box.Min[1], box.Max[1] = c[1]-half, c[1]+half
	}
	return box
}

// MinGridSize is the finest lattice spacing accepted, in meters.
const MinGridSize = 1.0

// gridSize resolves a requested spacing; zero or negative means the default.
func (b *Builder) gridSize(op string, g float64) (float64, error) {
	switch {
	case math.IsNaN(g) || math.IsInf(g, 0):
		return 0, model.InputError(op, "grid size must be finite")
	case g <= 0:
		return b.cfg.GridSize, nil
	case g < MinGridSize:
		return 0, model.InputError(op, fmt.Sprintf("grid size %gm is below the %gm minimum", g, MinGridSize))
	}
	return g, nil
}

// lattice returns the points of a regular grid with gridSize spacing,
// centred inside box, that pass keep (all when keep is nil).
func (b *Builder) lattice(op string, box orb.Bound, gridSize float64, keep func(orb.Point) bool) ([]orb.Point, error) {
	lat := box.Center()[1]
	dLon := geo.MetersToLonDegrees(gridSize, lat)
	dLat := geo.MetersToLatDegrees(gridSize)

	width := box.Max[0] - box.Min[0]
	height := box.Max[1] - box.Min[1]
	fCols := math.Floor(width / dLon)
	fRows := math.Floor(height / dLat)

	// Counted in float64 so huge lattices cannot wrap int.
	if total := (fCols + 1) * (fRows + 1); total > float64(b.cfg.MaxCells) {
		return nil, model.GridError(op,
			fmt.Sprintf("grid of %.0f cells exceeds limit of %d", total, b.cfg.MaxCells), &box)
	}
	cols, rows := int(fCols), int(fRows)

	x0 := box.Min[0] + (width-float64(cols)*dLon)/2
	y0 := box.Min[1] + (height-float64(rows)*dLat)/2

	pts := make([]orb.Point, 0, (cols+1)*(rows+1))
	for i := 0; i <= cols; i++ {
		for j := 0; j <= rows; j++ {
			p := orb.Point{x0 + float64(i)*dLon, y0 + float64(j)*dLat}
			if keep == nil || keep(p) {
				pts = append(pts, p)
			}
		}
	}
	return pts, nil
}

// stamp turns lattice points into cells and resolves their elevation. A
// cell whose elevation cannot be resolved gets 0.
func (b *Builder) stamp(ctx context.Context, op string, pts []orb.Point, gridSize float64, progress func(float64)) ([]model.GridCell, error) {
	samples, err := b.elev.Batch(ctx, pts, progress)
	if err != nil {
		return nil, model.AbortError(op, 0, len(pts), err)
	}

	cells := make([]model.GridCell, len(pts))
	fallbacks := 0
	for i, p := range pts {
		elev := samples[i].Elevation
		if samples[i].Fallback {
			elev = 0
			fallbacks++
			b.logger.Debug("Cell elevation unavailable, using 0", "lon", p[0], "lat", p[1])
		}
		cells[i] = model.NewGridCell(CellID(p, gridSize), p, geo.Circle(p, gridSize/2, b.cfg.CircleSteps), elev)
	}
	if fallbacks > 0 {
		b.logger.Warn("Grid cells without elevation", "op", op, "cells", fallbacks, "of", len(cells))
	}
	b.logger.Debug("Grid built", "op", op, "cells", len(cells), "grid_size_m", gridSize)
	return cells, nil
}

// CellID derives a stable identifier from the lattice position.
func CellID(center orb.Point, gridSize float64) string {
	name := fmt.Sprintf("%.7f,%.7f@%g", center[0], center[1], gridSize)
	return uuid.NewSHA1(cellNamespace, []byte(name)).String()
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
