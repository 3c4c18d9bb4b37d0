// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
)

type HTTPConfig struct {
	Addr string
}

type RateLimitConfig struct {
	// CreateLimit caps stream creations per wallet per window.
	CreateLimit  int
	CreateWindow time.Duration
}

type BillingConfig struct {
	// PollInterval is how often the billing driver sweeps active streams.
	PollInterval time.Duration
}

type TracingConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

type Config struct {
	ServiceName string
	Version     string
	Environment string

	HTTP      HTTPConfig
	RateLimit RateLimitConfig
	Billing   BillingConfig
	Tracing   TracingConfig
}

func (c Config) IsProduction() bool { return c.Environment == "production" }

// Load reads configuration from the environment, falling back to
// development defaults.
func Load() Config {
	return Config{
		ServiceName: envString("SERVICE_NAME", "payless"),
		Version:     envString("SERVICE_VERSION", "dev"),
		Environment: envString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Addr: envString("HTTP_ADDR", ":8080"),
		},
		RateLimit: RateLimitConfig{
			CreateLimit:  envInt("RATE_LIMIT_CREATE", 30),
			CreateWindow: envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Billing: BillingConfig{
			PollInterval: envDuration("BILLING_POLL_INTERVAL", 10*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:          envBool("OTEL_ENABLED", false),
			ExporterEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ExporterProtocol: envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SamplingRatio:    envFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}
}

var Module = fx.Module("config", fx.Provide(Load))

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return value
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && value > 0 {
		return value
	}
	return fallback
}
