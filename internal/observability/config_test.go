package observability

import (
	"testing"

	"github.com/smallbiznis/consigna/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDisablesOtelWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry:   config.TelemetryConfig{LogLevel: "DEBUG", OtelEnabled: true},
	})

	assert.Equal(t, "consigna", cfg.ServiceName)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigEnablesOtelWithEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      "consigna-api",
		AppVersion:   "1.2.0",
		Environment:  "staging",
		OTLPEndpoint: " collector:4317 ",
		Telemetry:    config.TelemetryConfig{OtelEnabled: true, OtelProtocol: "HTTP", SamplingRatio: 0.5},
	})

	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigHonoursExplicitOtelOptOut(t *testing.T) {
	cfg := LoadConfig(config.Config{
		OTLPEndpoint: "collector:4317",
		Telemetry:    config.TelemetryConfig{OtelEnabled: false, SamplingRatio: 7},
	})

	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
}
