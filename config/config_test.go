package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "all services with spaces",
			input: " http , worker , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "duplicate services",
			input: "http,http,worker",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only spaces and commas", input: " , , ", expectError: true},
		{name: "invalid service name", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name           string
		services       string
		expectedHTTP   bool
		expectedWorker bool
		expectedReaper bool
		expectedSplit  bool
	}{
		{
			name:           "single process",
			services:       "http,worker",
			expectedHTTP:   true,
			expectedWorker: true,
		},
		{
			name:          "gateway only",
			services:      "http",
			expectedHTTP:  true,
			expectedSplit: true,
		},
		{
			name:           "worker and reaper",
			services:       "worker,reaper",
			expectedWorker: true,
			expectedReaper: true,
			expectedSplit:  true,
		},
		{
			name:     "invalid configuration disables everything",
			services: "invalid-service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v", tt.expectedHTTP)
			}
			if cfg.IsWorkerEnabled() != tt.expectedWorker {
				t.Errorf("IsWorkerEnabled(): expected %v", tt.expectedWorker)
			}
			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v", tt.expectedReaper)
			}
			if cfg.SplitProcess() != tt.expectedSplit {
				t.Errorf("SplitProcess(): expected %v", tt.expectedSplit)
			}
		})
	}
}

func TestAppConfig_ParsePipelineEnv(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "12s")
	t.Setenv("FETCH_MAX_ATTEMPTS", "4")
	t.Setenv("OCR_DPI", "200")
	t.Setenv("AI_PROVIDER", "Anthropic")
	t.Setenv("AI_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("SUMMARY_STRAY_TEXT_RATIO", "0.25")
	t.Setenv("WEBHOOK_URL", " https://hooks.example.com/digest ")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Fetch.Timeout != 12*time.Second || cfg.Fetch.MaxAttempts != 4 {
		t.Fatalf("unexpected fetch config: %+v", cfg.Fetch)
	}
	if cfg.Fetch.UserAgent == "" {
		t.Fatalf("expected default user agent")
	}
	if cfg.OCR.DPI != 200 {
		t.Fatalf("expected DPI 200, got %d", cfg.OCR.DPI)
	}
	if cfg.AI.Provider != AIProviderAnthropic || cfg.AI.APIKey() != "sk-test" {
		t.Fatalf("unexpected AI config: %+v", cfg.AI)
	}
	if cfg.AI.Model == "" {
		t.Fatalf("expected provider default model")
	}
	if cfg.Summary.MaxChars != 900000 || cfg.Summary.StrayTextRatio != 0.25 {
		t.Fatalf("unexpected summary config: %+v", cfg.Summary)
	}
	if !cfg.DigestSink.Enabled() || cfg.DigestSink.URL != "https://hooks.example.com/digest" {
		t.Fatalf("unexpected webhook config: %+v", cfg.DigestSink)
	}
	if cfg.Worker.IdleInterval != 5*time.Second {
		t.Fatalf("expected 5s idle interval, got %v", cfg.Worker.IdleInterval)
	}
}

func TestRedisConfig_Sanitize(t *testing.T) {
	t.Setenv("REDIS_URI", " rediss://cache.internal:6380/2 ")
	t.Setenv("REDIS_POOL_SIZE", "0")
	t.Setenv("REDIS_DB", "-1")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Redis.URI != "rediss://cache.internal:6380/2" || !cfg.Redis.Enabled {
		t.Fatalf("unexpected redis uri: %+v", cfg.Redis)
	}
	if cfg.Redis.PoolSize != 10 || cfg.Redis.DB != 0 {
		t.Fatalf("expected pool and db defaults, got %+v", cfg.Redis)
	}

	empty := RedisConfig{Enabled: true, URI: "   "}
	empty.Sanitize()
	if empty.Enabled {
		t.Fatal("expected redis disabled without a uri")
	}
}

func TestSummaryConfig_Sanitize(t *testing.T) {
	cfg := SummaryConfig{MaxChars: 10, ParseRetries: 7, StrayTextRatio: 3}
	cfg.Sanitize()

	if cfg.MaxChars != 1000 {
		t.Fatalf("expected max chars clamp, got %d", cfg.MaxChars)
	}
	if cfg.ParseRetries != 2 {
		t.Fatalf("expected parse retries clamp, got %d", cfg.ParseRetries)
	}
	if cfg.StrayTextRatio != 0.5 {
		t.Fatalf("expected ratio default, got %v", cfg.StrayTextRatio)
	}
}

func TestHTTPConfig_SanitizeOIDC(t *testing.T) {
	cfg := HTTPConfig{OIDC: OIDCConfig{IssuerURL: "https://login.example.com/", Required: true}}
	cfg.Sanitize()

	if cfg.OIDC.Enabled() {
		t.Fatalf("expected oidc disabled without client id")
	}
	if cfg.OIDC.Required {
		t.Fatalf("expected required to be cleared when oidc is disabled")
	}
	if cfg.OIDC.IssuerURL != "https://login.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.OIDC.IssuerURL)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatalf("expected slack to be disabled without a webhook url")
	}
	if cfg.Slack.Username != defaultObservabilityName {
		t.Fatalf("expected default username, got %q", cfg.Slack.Username)
	}
}
