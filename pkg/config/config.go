package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Server    ServerConfig    `yaml:"server"`
	Request   RequestConfig   `yaml:"request"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Elevation ElevationConfig `yaml:"elevation"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Cache     CacheConfig     `yaml:"cache"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds the station/flight plan database settings.
type DBConfig struct {
	Path         string `yaml:"path"`
	StationsFile string `yaml:"stations_file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// RequestConfig holds HTTP client settings for remote elevation sources.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// TerrainConfig selects the elevation source.
type TerrainConfig struct {
	Provider      string `yaml:"provider"` // "etopo1", "http", "flat"
	ElevationFile string `yaml:"elevation_file"`
	ElevationURL  string `yaml:"elevation_url"`
}

// ElevationConfig tunes the elevation access layer.
type ElevationConfig struct {
	MinValid            float64  `yaml:"min_valid"`
	Attempts            int      `yaml:"attempts"`
	RetryDelay          Duration `yaml:"retry_delay"`
	ChunkSize           int      `yaml:"chunk_size"`
	ChunkDelay          Duration `yaml:"chunk_delay"`
	ReadyTimeout        Duration `yaml:"ready_timeout"`
	ValidationAttempts  int      `yaml:"validation_attempts"`
	ValidationDelay     Duration `yaml:"validation_delay"`
	PreloadH3Resolution int      `yaml:"preload_h3_resolution"`
	PreloadMaxSamples   int      `yaml:"preload_max_samples"`
}

// AnalysisConfig holds the visibility analysis defaults.
type AnalysisConfig struct {
	GridSize           Distance `yaml:"grid_size"`
	Range              Distance `yaml:"range"`
	MaxExtent          Distance `yaml:"max_extent"`
	MaxCells           int      `yaml:"max_cells"`
	SampleSpacing      Distance `yaml:"sample_spacing"`
	MinSamples         int      `yaml:"min_samples"`
	MinClearance       Distance `yaml:"min_clearance"`
	PathSampleInterval Distance `yaml:"path_sample_interval"`
	ChunkSize          int      `yaml:"chunk_size"`
	Workers            int      `yaml:"workers"`
	ChunkPause         Duration `yaml:"chunk_pause"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Capacity int      `yaml:"capacity"`
	TTL      Duration `yaml:"ttl"`
}

// TracingConfig controls OpenTelemetry span export for analyses.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "stdout", "otlp"
	Path        string  `yaml:"path"`     // stdout exporter target; empty writes to stdout
	Endpoint    string  `yaml:"endpoint"` // otlp gRPC collector
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:         "./data/sightline.db",
			StationsFile: "./data/stations.geojson",
		},
		Server: ServerConfig{
			Address: "localhost:8710",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Terrain: TerrainConfig{
			Provider:      "etopo1",
			ElevationFile: "data/etopo1/etopo1_ice_g_i2.bin",
			ElevationURL:  "https://api.open-elevation.com",
		},
		Elevation: ElevationConfig{
			MinValid:            0.05,
			Attempts:            3,
			RetryDelay:          Duration(50 * time.Millisecond),
			ChunkSize:           50,
			ChunkDelay:          Duration(10 * time.Millisecond),
			ReadyTimeout:        Duration(10 * time.Second),
			ValidationAttempts:  5,
			ValidationDelay:     Duration(500 * time.Millisecond),
			PreloadH3Resolution: 8,
			PreloadMaxSamples:   400,
		},
		Analysis: AnalysisConfig{
			GridSize:           Distance(30),
			Range:              Distance(500),
			MaxExtent:          Distance(5000),
			MaxCells:           50000,
			SampleSpacing:      Distance(50),
			MinSamples:         10,
			MinClearance:       Distance(1),
			PathSampleInterval: Distance(10),
			ChunkSize:          50,
			Workers:            16,
			ChunkPause:         Duration(5 * time.Millisecond),
		},
		Cache: CacheConfig{
			Capacity: 10,
			TTL:      Duration(30 * time.Minute),
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			Path:        "./logs/traces.jsonl",
			Endpoint:    "localhost:4317",
			SampleRatio: 1,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Environment overrides are applied last and never written back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SIGHTLINE_ELEVATION_URL"); v != "" {
		cfg.Terrain.ElevationURL = v
	}
	if v := os.Getenv("SIGHTLINE_TERRAIN_PROVIDER"); v != "" {
		cfg.Terrain.Provider = v
	}
	if v := os.Getenv("SIGHTLINE_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SIGHTLINE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SIGHTLINE_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.Endpoint = v
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Terrain.Provider {
	case "etopo1", "http", "flat":
	default:
		return fmt.Errorf("invalid terrain provider %q: must be etopo1, http or flat", c.Terrain.Provider)
	}
	if c.Analysis.GridSize <= 0 {
		return fmt.Errorf("analysis.grid_size must be positive")
	}
	if c.Analysis.ChunkSize <= 0 || c.Elevation.ChunkSize <= 0 {
		return fmt.Errorf("chunk sizes must be positive")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("invalid tracing exporter %q: must be stdout or otlp", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# sightline configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: etopo1, http, flat\n${1}provider:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
