// Package llm adapts generative model SDKs to core.ModelClient.
package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/retry"
)

// ErrAPIKeyRequired is returned when a client is built without credentials.
var ErrAPIKeyRequired = errors.New("llm: api key is required")

// Config holds the settings shared by every provider.
type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	// Timeout bounds a single call.
	Timeout time.Duration
	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string
	Logger  *slog.Logger
}

func (c *Config) defaults(component string) *slog.Logger {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 4096
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// statusError converts a provider error carrying an HTTP status into *retry.StatusError
// so the summarizer can decide whether to retry.
func statusError(provider string, code int, message string) error {
	message = strings.TrimSpace(message)
	if len(message) > 200 {
		message = message[:200]
	}
	return fmt.Errorf("%s: %w", provider, &retry.StatusError{Code: code, Message: message})
}

var (
	_ core.ModelClient = (*GeminiClient)(nil)
	_ core.ModelClient = (*AnthropicClient)(nil)
)
