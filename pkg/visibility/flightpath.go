package visibility

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"sightline/pkg/geo"
	"sightline/pkg/model"
)

// SamplePath walks the 2D centerline of path and emits a sample every
// interval meters, starting at the first waypoint and ending with the last.
// Each sample takes the altitude of the waypoint that starts its leg; there
// is no interpolation across a waypoint boundary.
func SamplePath(path model.FlightPath, interval float64) []model.Point3D {
	wps := path.Waypoints
	if len(wps) == 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultConfig().PathSampleInterval
	}

	var out []model.Point3D
	offset := 0.0 // distance into the next leg of the next sample
	for i := 0; i < len(wps)-1; i++ {
		a, b := wps[i].Point(), wps[i+1].Point()
		legLen := geo.Distance(a, b)
		if legLen == 0 {
			continue
		}
		d := offset
		for ; d < legLen; d += interval {
			p := geo.Lerp(a, b, d/legLen)
			out = append(out, model.Point3D{Lon: p[0], Lat: p[1], Elevation: wps[i].Elevation})
		}
		offset = d - legLen
	}
	out = append(out, wps[len(wps)-1])
	return out
}

// orderStations returns stations sorted by role, keeping input order
// within a role, so station precedence is deterministic.
func orderStations(stations []model.Station) []model.Station {
	ordered := make([]model.Station, len(stations))
	copy(ordered, stations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return roleRank(ordered[i].Role) < roleRank(ordered[j].Role)
	})
	return ordered
}

func roleRank(r model.StationRole) int {
	if o := r.Order(); o >= 0 {
		return o
	}
	return len(model.Roles)
}

// AnalyzePathVisibility samples the flight path and marks each sample
// visible if any station has clear line of sight to it. Runs of equal
// visibility become segments; each new segment starts with the last sample
// of the previous one so the rendered line has no gaps.
func (a *Analyzer) AnalyzePathVisibility(ctx context.Context, path model.FlightPath, stations []model.Station, progress ProgressFunc) (model.PathResult, error) {
	const op = "flight path visibility"
	if len(path.Waypoints) < 2 {
		e := model.InputError(op, "flight path needs at least 2 waypoints")
		e.PathLength = len(path.Waypoints)
		return model.PathResult{}, e
	}
	if len(stations) == 0 {
		e := model.InputError(op, "at least 1 station is required")
		e.PathLength = len(path.Waypoints)
		return model.PathResult{}, e
	}
	start := time.Now()

	samples := SamplePath(path, a.cfg.PathSampleInterval)
	ordered := orderStations(stations)
	visible := make([]bool, len(samples))
	var checks atomic.Int64

	err := a.runChunks(ctx, op, len(samples), func(ctx context.Context, i int) {
		for _, st := range ordered {
			checks.Add(1)
			if a.los.IsClear(ctx, st.Position(), samples[i]) {
				visible[i] = true
				return
			}
		}
	}, progress)
	if err != nil {
		return model.PathResult{}, err
	}

	segments, err := buildSegments(samples, visible)
	if err != nil {
		return model.PathResult{}, err
	}

	stats := model.FlightPathStats{TotalLength: geo.LineLength(path.LineString())}
	for _, seg := range segments {
		if seg.Visible {
			stats.VisibleLength += segmentLength(seg)
		}
	}
	if stats.TotalLength > 0 {
		stats.CoveragePercent = min(100, 100*stats.VisibleLength/stats.TotalLength)
	}
	stats.Duration = time.Since(start)

	a.logger.Debug("Flight path visibility complete", "samples", len(samples), "segments", len(segments),
		"coverage", stats.CoveragePercent, "los_checks", checks.Load())
	return model.PathResult{Segments: segments, Stats: stats}, nil
}

func buildSegments(samples []model.Point3D, visible []bool) ([]model.VisibilitySegment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	var segments []model.VisibilitySegment
	run := []model.Point3D{samples[0]}
	state := visible[0]
	for i := 1; i < len(samples); i++ {
		if visible[i] == state {
			run = append(run, samples[i])
			continue
		}
		seg, err := model.NewVisibilitySegment(state, run)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
		run = []model.Point3D{samples[i-1], samples[i]}
		state = visible[i]
	}
	seg, err := model.NewVisibilitySegment(state, run)
	if err != nil {
		return nil, err
	}
	return append(segments, seg), nil
}

func segmentLength(seg model.VisibilitySegment) float64 {
	total := 0.0
	for i := 1; i < len(seg.Points); i++ {
		total += geo.Distance(seg.Points[i-1].Point(), seg.Points[i].Point())
	}
	return total
}
