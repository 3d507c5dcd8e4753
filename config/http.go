package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// OwnerHeader names the header set by a trusted upstream proxy that carries
	// the caller identity. The value is stored as the job owner verbatim.
	OwnerHeader string `env:"HTTP_OWNER_HEADER" envDefault:"X-Forwarded-User"`

	// AllowedOrigins lists origins accepted on live channel upgrades.
	// Empty means same-origin only (any origin in dev mode).
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envDefault:""`

	// AnalyzeTimeout bounds the synchronous analyze endpoint.
	AnalyzeTimeout time.Duration `env:"HTTP_ANALYZE_TIMEOUT" envDefault:"3m"`

	// HistoryMaxLimit caps the page size accepted by the history endpoint.
	HistoryMaxLimit int `env:"HTTP_HISTORY_MAX_LIMIT" envDefault:"100"`

	// OIDC bearer token verification. When IssuerURL is set, requests carrying
	// an Authorization bearer token are verified and the token subject becomes the owner.
	OIDC OIDCConfig `envPrefix:"HTTP_OIDC_"`
}

// OIDCConfig configures optional bearer token verification.
type OIDCConfig struct {
	IssuerURL string `env:"ISSUER_URL"`
	ClientID  string `env:"CLIENT_ID"`
	// Required rejects requests without a valid bearer token.
	Required bool `env:"REQUIRED" envDefault:"false"`
}

// Enabled reports whether bearer verification is configured.
func (o OIDCConfig) Enabled() bool {
	return o.IssuerURL != "" && o.ClientID != ""
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.OwnerHeader = strings.TrimSpace(h.OwnerHeader)
	if h.AnalyzeTimeout <= 0 {
		h.AnalyzeTimeout = 3 * time.Minute
	}
	if h.HistoryMaxLimit < 1 {
		h.HistoryMaxLimit = 100
	}
	h.OIDC.IssuerURL = strings.TrimSuffix(strings.TrimSpace(h.OIDC.IssuerURL), "/")
	h.OIDC.ClientID = strings.TrimSpace(h.OIDC.ClientID)
	if !h.OIDC.Enabled() {
		h.OIDC.Required = false
	}
}
