// Package visibility scores grid cells and flight path samples by their
// terrain line of sight to ground stations or to the flight path.
package visibility

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"sightline/pkg/geo"
	"sightline/pkg/model"
)

// LOS is the line-of-sight test the analyzers are built on.
type LOS interface {
	IsClear(ctx context.Context, source, target model.Point3D) bool
}

// Config tunes the analyzers.
type Config struct {
	Range              float64 // flight path mode sample radius, meters
	PathSampleInterval float64 // meters between flight path samples
	ChunkSize          int
	Workers            int
	ChunkPause         time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Range:              500,
		PathSampleInterval: 10,
		ChunkSize:          50,
		Workers:            16,
		ChunkPause:         5 * time.Millisecond,
	}
}

// ProgressFunc receives the number of processed items.
type ProgressFunc func(done, total int)

// Analyzer runs the single-source, merged and flight path analyses.
type Analyzer struct {
	los    LOS
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. Zero config fields take the defaults.
func NewAnalyzer(los LOS, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.Range <= 0 {
		cfg.Range = def.Range
	}
	if cfg.PathSampleInterval <= 0 {
		cfg.PathSampleInterval = def.PathSampleInterval
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = cfg.ChunkSize
	}
	return &Analyzer{
		los:    los,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.With("component", "visibility"),
	}
}

// AnalyzeStation scores every cell 0 or 100 by whether the station sees it.
func (a *Analyzer) AnalyzeStation(ctx context.Context, st model.Station, cells []model.GridCell, progress ProgressFunc) (model.GridResult, error) {
	const op = "station analysis"
	start := time.Now()
	src := st.Position()

	out := cloneCells(cells)
	err := a.runChunks(ctx, op, len(out), func(ctx context.Context, i int) {
		score := 0.0
		if a.los.IsClear(ctx, src, out[i].Position()) {
			score = 100
		}
		out[i].SetScore(score, a.now())
	}, progress)
	if err != nil {
		return model.GridResult{}, err
	}

	res := model.GridResult{Cells: out, Stats: computeStats(out, time.Since(start))}
	a.logger.Debug("Station analysis complete", "role", st.Role, "cells", res.Stats.Total, "visible", res.Stats.FullyVisible)
	return res, nil
}

// AnalyzeFlightPath scores every cell by the share of flight path samples
// within rangeM of its center that have clear line of sight to it. Cells
// with no sample in range score 0.
func (a *Analyzer) AnalyzeFlightPath(ctx context.Context, path model.FlightPath, cells []model.GridCell, rangeM float64, progress ProgressFunc) (model.GridResult, error) {
	const op = "flight path analysis"
	if len(path.Waypoints) < 2 {
		e := model.InputError(op, "flight path needs at least 2 waypoints")
		e.PathLength = len(path.Waypoints)
		return model.GridResult{}, e
	}
	if rangeM <= 0 {
		rangeM = a.cfg.Range
	}
	start := time.Now()
	samples := SamplePath(path, a.cfg.PathSampleInterval)

	out := cloneCells(cells)
	err := a.runChunks(ctx, op, len(out), func(ctx context.Context, i int) {
		target := out[i].Position()
		inRange, visible := 0, 0
		for _, s := range samples {
			if geo.Distance(s.Point(), out[i].Center) > rangeM {
				continue
			}
			inRange++
			if a.los.IsClear(ctx, s, target) {
				visible++
			}
		}
		score := 0.0
		if inRange > 0 {
			score = 100 * float64(visible) / float64(inRange)
		}
		out[i].SetScore(score, a.now())
	}, progress)
	if err != nil {
		return model.GridResult{}, err
	}

	res := model.GridResult{Cells: out, Stats: computeStats(out, time.Since(start))}
	a.logger.Debug("Flight path analysis complete", "samples", len(samples), "cells", res.Stats.Total,
		"avg", res.Stats.AverageVisibility)
	return res, nil
}

// AnalyzeMerged scores every cell with the best station-mode score over
// all stations. A station farther from the cell than its own range
// contributes 0 without a line of sight test.
func (a *Analyzer) AnalyzeMerged(ctx context.Context, stations []model.Station, cells []model.GridCell, progress ProgressFunc) (model.GridResult, error) {
	const op = "merged analysis"
	if len(stations) < 2 {
		e := model.InputError(op, "at least 2 stations are required")
		e.StationCount = len(stations)
		return model.GridResult{}, e
	}
	start := time.Now()
	ordered := orderStations(stations)

	var checks atomic.Int64
	out := cloneCells(cells)
	err := a.runChunks(ctx, op, len(out), func(ctx context.Context, i int) {
		best := 0.0
		for _, st := range ordered {
			r := st.Range
			if r <= 0 {
				r = a.cfg.Range
			}
			if geo.Distance(st.Base.Point(), out[i].Center) > r {
				continue
			}
			checks.Add(1)
			if a.los.IsClear(ctx, st.Position(), out[i].Position()) {
				best = 100
				break
			}
		}
		out[i].SetScore(best, a.now())
	}, progress)
	if err != nil {
		return model.GridResult{}, err
	}

	res := model.GridResult{Cells: out, Stats: computeStats(out, time.Since(start))}
	a.logger.Debug("Merged analysis complete", "stations", len(stations), "cells", res.Stats.Total,
		"los_checks", checks.Load(), "visible", res.Stats.FullyVisible)
	return res, nil
}

func cloneCells(cells []model.GridCell) []model.GridCell {
	return model.GridResult{Cells: cells}.Clone().Cells
}

func computeStats(cells []model.GridCell, elapsed time.Duration) model.AnalysisStats {
	stats := model.AnalysisStats{Total: len(cells), Duration: elapsed}
	if len(cells) == 0 {
		return stats
	}
	sum := 0.0
	for _, c := range cells {
		sum += c.VisibilityScore
		if c.FullyVisible {
			stats.FullyVisible++
		}
	}
	stats.AverageVisibility = sum / float64(len(cells))
	return stats
}
