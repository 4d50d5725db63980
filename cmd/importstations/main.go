// Command importstations loads ground stations from a GeoJSON file into the
// sightline database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"sightline/pkg/config"
	"sightline/pkg/db"
	"sightline/pkg/db/maintenance"
	"sightline/pkg/store"
)

func main() {
	configPath := flag.String("config", "configs/sightline.yaml", "Path to the config file")
	input := flag.String("in", "", "GeoJSON FeatureCollection of station points (default: db.stations_file)")
	force := flag.Bool("force", false, "Import even if the file is unchanged since the last import")
	flag.Parse()

	if err := run(context.Background(), *configPath, *input, *force); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, input string, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if input == "" {
		input = cfg.DB.StationsFile
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("stations file: %w", err)
	}

	d, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s := store.NewSQLiteStore(d)
	defer s.Close()

	n, err := maintenance.ImportStations(ctx, s, input, force)
	if err != nil {
		return err
	}
	if n == 0 {
		slog.Info("Stations already up to date", "path", input)
		return nil
	}
	slog.Info("Stations imported", "path", input, "count", n, "db", cfg.DB.Path)
	return nil
}
