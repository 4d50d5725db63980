package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"sightline/pkg/config"
)

func restoreGlobal(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInit_Disabled(t *testing.T) {
	restoreGlobal(t)

	shutdown, err := Init(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInit_StdoutToFile(t *testing.T) {
	restoreGlobal(t)
	path := filepath.Join(t.TempDir(), "traces", "spans.jsonl")

	shutdown, err := Init(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		Path:        path,
		SampleRatio: 1,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "AnalyzeStation")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"AnalyzeStation"`)
	assert.Contains(t, string(data), "sightline")
}

func TestInit_UnknownExporter(t *testing.T) {
	restoreGlobal(t)
	_, err := Init(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, "unsupported tracing exporter")
}
