package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5ms", 5 * time.Millisecond, false},
		{"500ms", 500 * time.Millisecond, false},
		{"30m", 30 * time.Minute, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d12h", 36 * time.Hour, false},
		{"2w", 14 * Day, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"30m", 30, false},
		{"5km", 5000, false},
		{"0.5nm", 926, false},
		{"400ft", 121.92, false},
		{" 250 ", 250, false},
		{"", 0, false},
		{"3 miles", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDistance(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAnalysisUnitsFromYAML(t *testing.T) {
	var cfg AnalysisConfig
	err := yaml.Unmarshal([]byte(`
grid_size: 25
range: 1.2km
min_clearance: 10ft
chunk_pause: 2ms
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 25.0, cfg.GridSize.M(), "bare numbers are meters")
	assert.Equal(t, 1200.0, cfg.Range.M())
	assert.InDelta(t, 3.048, cfg.MinClearance.M(), 1e-9)
	assert.Equal(t, 2*time.Millisecond, cfg.ChunkPause.D())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "range: 1200m")
	assert.Contains(t, string(out), "chunk_pause: 2ms")
}
