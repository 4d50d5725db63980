package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sightline/internal/api"
	"sightline/pkg/config"
	"sightline/pkg/db"
	"sightline/pkg/db/maintenance"
	"sightline/pkg/logging"
	"sightline/pkg/store"
	"sightline/pkg/tracing"
	"sightline/pkg/version"
)

const defaultConfigPath = "configs/sightline.yaml"

var (
	configPath = flag.String("config", "", "Path to the config file (default $SIGHTLINE_CONFIG or "+defaultConfigPath+")")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		}
	}

	path := resolveConfigPath(*configPath)

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", path)
		return
	}

	if err := run(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("SIGHTLINE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(
		logging.Config{Path: appCfg.Log.Server.Path, Level: appCfg.Log.Server.Level},
		logging.Config{Path: appCfg.Log.Requests.Path, Level: appCfg.Log.Requests.Level},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Sightline Started", "version", version.Version, "terrain", appCfg.Terrain.Provider)

	shutdownTracing, err := tracing.Init(ctx, appCfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, appCfg.DB.StationsFile); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	provider, closeProvider, err := initProvider(appCfg)
	if err != nil {
		return err
	}
	defer closeProvider()

	engine := initEngine(appCfg, provider, reg)

	return runServer(ctx, appCfg, engine, st, reg)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func runServer(ctx context.Context, cfg *config.Config, engine api.Engine, st store.Store, reg *prometheus.Registry) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { requestShutdown(quit) }

	hub := api.NewProgressHub()
	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Analysis:    api.NewAnalysisHandler(engine, st, st, hub),
		Stations:    api.NewStationHandler(st),
		FlightPaths: api.NewFlightPathHandler(st),
		Progress:    hub,
		Metrics:     reg,
	}, shutdownFunc)

	return runServerLifecycle(ctx, srv, quit)
}

// requestShutdown queues a stop without blocking; one pending request is
// enough.
func requestShutdown(quit chan<- os.Signal) {
	select {
	case quit <- syscall.SIGTERM:
	default:
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server exited properly")
	return nil
}
