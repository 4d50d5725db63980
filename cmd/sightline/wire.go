package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"sightline/pkg/config"
	"sightline/pkg/grid"
	"sightline/pkg/request"
	"sightline/pkg/terrain"
	"sightline/pkg/visibility"
)

// initProvider selects the elevation source. The returned func releases it.
func initProvider(cfg *config.Config) (terrain.Provider, func(), error) {
	noop := func() {}
	switch cfg.Terrain.Provider {
	case "flat":
		slog.Info("Terrain: flat provider, every elevation is 0")
		return terrain.FlatProvider{}, noop, nil
	case "http":
		client := request.New(request.ClientConfig{
			Retries:   cfg.Request.Retries,
			Timeout:   cfg.Request.Timeout.D(),
			BaseDelay: cfg.Request.Backoff.BaseDelay.D(),
			MaxDelay:  cfg.Request.Backoff.MaxDelay.D(),
		})
		slog.Info("Terrain: remote elevation service", "url", cfg.Terrain.ElevationURL)
		return terrain.NewRemoteProvider(client, cfg.Terrain.ElevationURL), noop, nil
	default:
		p, err := terrain.NewETOPO1Provider(cfg.Terrain.ElevationFile)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open elevation file %s: %w", cfg.Terrain.ElevationFile, err)
		}
		slog.Info("Terrain: ETOPO1 loaded", "path", cfg.Terrain.ElevationFile)
		return p, func() { _ = p.Close() }, nil
	}
}

// initEngine maps the config onto the engine components.
func initEngine(cfg *config.Config, p terrain.Provider, reg prometheus.Registerer) *visibility.Engine {
	e := cfg.Elevation
	access := terrain.NewAccess(p, terrain.NewElevationCache(e.MinValid), terrain.AccessConfig{
		Attempts:           e.Attempts,
		RetryDelay:         e.RetryDelay.D(),
		ChunkSize:          e.ChunkSize,
		ChunkDelay:         e.ChunkDelay.D(),
		Workers:            cfg.Analysis.Workers,
		ReadyTimeout:       e.ReadyTimeout.D(),
		ValidationAttempts: e.ValidationAttempts,
		ValidationDelay:    e.ValidationDelay.D(),
		PreloadResolution:  e.PreloadH3Resolution,
		PreloadMaxSamples:  e.PreloadMaxSamples,
	}).WithMetrics(terrain.NewMetrics(reg))

	a := cfg.Analysis
	ecfg := visibility.EngineConfig{
		Grid: grid.Config{
			GridSize:    a.GridSize.M(),
			Range:       a.Range.M(),
			MaxExtent:   a.MaxExtent.M(),
			MaxCells:    a.MaxCells,
			CircleSteps: grid.DefaultConfig().CircleSteps,
		},
		LOS: terrain.LOSConfig{
			SampleSpacing: a.SampleSpacing.M(),
			MinSamples:    a.MinSamples,
			MinClearance:  a.MinClearance.M(),
		},
		Analysis: visibility.Config{
			Range:              a.Range.M(),
			PathSampleInterval: a.PathSampleInterval.M(),
			ChunkSize:          a.ChunkSize,
			Workers:            a.Workers,
			ChunkPause:         a.ChunkPause.D(),
		},
		CacheCapacity: cfg.Cache.Capacity,
		CacheTTL:      cfg.Cache.TTL.D(),
	}
	return visibility.NewEngine(access, ecfg, visibility.NewMetrics(reg))
}
