package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"sightline/pkg/model"
	"sightline/pkg/store"
)

const stationsStateKeyPrefix = "stations_geojson_mtime:"

// Store is the subset of store.Store the maintenance tasks use.
type Store interface {
	store.StationStore
	store.StateStore
}

// Run executes all maintenance tasks. It blocks until completion.
// Import failures are logged and never stop startup.
func Run(ctx context.Context, s Store, stationsPath string) error {
	slog.Info("Starting database maintenance...")

	n, err := ImportStations(ctx, s, stationsPath, false)
	if err != nil {
		slog.Error("Station import failed", "path", stationsPath, "error", err)
	} else {
		slog.Info("Station import check completed", "imported", n)
	}
	return nil
}

// ImportStations loads ground stations from a GeoJSON FeatureCollection of
// Point features. The import is skipped when the file's modification time
// matches the last import unless force is set. Stations previously imported
// from the same file are replaced.
func ImportStations(ctx context.Context, s Store, path string, force bool) (int, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil // Nothing to import
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat stations file: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339)
	stateKey := stationsStateKeyPrefix + filepath.Base(path)

	if stored, found := s.GetState(ctx, stateKey); found && stored == fileMTime && !force {
		return 0, nil // Up to date
	}

	slog.Info("Importing stations from GeoJSON...", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read stations file: %w", err)
	}
	stations, err := ParseStations(data)
	if err != nil {
		return 0, err
	}

	if err := s.ReplaceStations(ctx, filepath.Base(path), stations); err != nil {
		return 0, fmt.Errorf("failed to store stations: %w", err)
	}
	slog.Info("Imported stations", "count", len(stations))

	if err := s.SetState(ctx, stateKey, fileMTime); err != nil {
		return len(stations), fmt.Errorf("failed to update state: %w", err)
	}
	return len(stations), nil
}

// ParseStations decodes Point features into stations. Recognised
// properties: name, role, height (mount offset), range, elevation.
// Features that are not points are skipped.
func ParseStations(data []byte) ([]model.Station, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	var out []model.Station
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			slog.Debug("Skipping non-point feature", "index", i)
			continue
		}
		role := model.StationRole(f.Properties.MustString("role", string(model.RoleGCS)))
		if !role.Valid() {
			return nil, fmt.Errorf("feature %d: invalid role %q", i, role)
		}
		out = append(out, model.Station{
			Name: f.Properties.MustString("name", ""),
			Role: role,
			Base: model.Point3D{
				Lon:       pt[0],
				Lat:       pt[1],
				Elevation: f.Properties.MustFloat64("elevation", 0),
			},
			Offset: f.Properties.MustFloat64("height", 0),
			Range:  f.Properties.MustFloat64("range", 0),
		})
	}
	return out, nil
}
