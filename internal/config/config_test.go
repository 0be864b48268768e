package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsTelemetrySettings(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("OTEL_ENABLED", "off")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "console")

	cfg := Load()

	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.Equal(t, TelemetryConfig{
		LogLevel:      "warn",
		LogFormat:     "console",
		OtelEnabled:   false,
		OtelProtocol:  "http",
		SamplingRatio: 0.25,
	}, cfg.Telemetry)
}

func TestLoadFallsBackToLegacyEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "not-a-number")

	cfg := Load()

	assert.Equal(t, "otel:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.1, cfg.Telemetry.SamplingRatio)
	assert.True(t, cfg.Telemetry.OtelEnabled)
}
