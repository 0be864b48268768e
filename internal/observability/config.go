package observability

import (
	"strings"

	"github.com/smallbiznis/consigna/internal/config"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig projects the application config onto the logging and telemetry settings.
func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "consigna"
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName: serviceName,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		LogLevel:    lowerOr(cfg.Telemetry.LogLevel, "info"),
		LogFormat:   lowerOr(cfg.Telemetry.LogFormat, "json"),
		// Without a collector endpoint there is nowhere to export to.
		OtelEnabled:          cfg.Telemetry.OtelEnabled && endpoint != "",
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: lowerOr(cfg.Telemetry.OtelProtocol, "grpc"),
		OtelSamplingRatio:    ratio,
	}
}

func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lowerOr(value, def string) string {
	if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
		return value
	}
	return def
}
