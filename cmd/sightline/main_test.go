package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sightline/pkg/config"
	"sightline/pkg/model"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	tempConfig := fmt.Sprintf(`
server:
    address: localhost:0
log:
    server:
        path: %q
        level: "debug"
    requests:
        path: %q
        level: "info"
db:
    path: %q
    stations_file: %q
terrain:
    provider: flat
`,
		filepath.Join(dir, "server.log"),
		filepath.Join(dir, "requests.log"),
		filepath.Join(dir, "sightline.db"),
		filepath.Join(dir, "stations.geojson"),
	)
	path := filepath.Join(dir, "sightline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tempConfig), 0o644))

	// Cancel quickly to verify the startup sequence
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, path); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SIGHTLINE_CONFIG", "")
	assert.Equal(t, defaultConfigPath, resolveConfigPath(""))
	assert.Equal(t, "x.yaml", resolveConfigPath("x.yaml"))

	t.Setenv("SIGHTLINE_CONFIG", "env.yaml")
	assert.Equal(t, "env.yaml", resolveConfigPath(""))
	assert.Equal(t, "x.yaml", resolveConfigPath("x.yaml"))
}

func TestInitProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Terrain.Provider = "flat"
	p, closeFn, err := initProvider(cfg)
	require.NoError(t, err)
	defer closeFn()
	_, ok, err := p.QueryElevation(context.Background(), 8.5, 47.3)
	require.NoError(t, err)
	assert.True(t, ok)

	cfg.Terrain.Provider = "http"
	p, _, err = initProvider(cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.Terrain.Provider = "etopo1"
	cfg.Terrain.ElevationFile = filepath.Join(t.TempDir(), "missing.bin")
	_, _, err = initProvider(cfg)
	assert.Error(t, err)
}

func TestInitEngine_FlatTerrain(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Terrain.Provider = "flat"
	p, _, err := initProvider(cfg)
	require.NoError(t, err)

	eng := initEngine(cfg, p, prometheus.NewRegistry())
	a := model.Station{Role: model.RoleGCS, Base: model.Point3D{Lon: 8.5, Lat: 47.3}, Offset: 2}
	b := model.Station{Role: model.RoleObserver, Base: model.Point3D{Lon: 8.51, Lat: 47.3}, Offset: 2}
	res, err := eng.CheckStationToStation(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, res.Clear)
}

func TestRequestShutdown_NeverBlocks(t *testing.T) {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		for range 3 {
			requestShutdown(quit)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("repeated shutdown requests blocked")
	}
	assert.Len(t, quit, 1)
}
