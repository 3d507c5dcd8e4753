package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server and owner identity configuration
//   - pipeline.go: fetch, OCR, model and summary configuration
//   - services.go: Service mode, worker and reaper configuration
//   - observability.go: metrics, failure notifications and webhooks
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed origin checks).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker"`

	// Worker configuration
	Worker WorkerConfig

	// Pipeline stages
	Fetch      FetchConfig      `envPrefix:"FETCH_"`
	OCR        OCRConfig        `envPrefix:"OCR_"`
	AI         AIConfig         `envPrefix:"AI_"`
	Summary    SummaryConfig    `envPrefix:"SUMMARY_"`
	DigestSink DigestSinkConfig `envPrefix:"WEBHOOK_"`

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Redis.Sanitize()

	c.Worker.Sanitize()
	c.Fetch.Sanitize()
	c.OCR.Sanitize()
	c.AI.Sanitize()
	c.Summary.Sanitize()
	c.DigestSink.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the digest worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

// SplitProcess reports whether the HTTP gateway and worker run in separate processes,
// in which case terminal job events travel over Redis instead of in memory.
func (c *AppConfig) SplitProcess() bool {
	return c.IsHTTPServerEnabled() != c.IsWorkerEnabled()
}
