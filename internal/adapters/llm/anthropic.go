package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/target/paper-digest/internal/domain/digest"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	cfg    Config
	logger *slog.Logger
}

// NewAnthropicClient constructs an AnthropicClient. SDK-level retries are disabled;
// the summarizer owns the retry budget.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	logger := cfg.defaults("anthropic")

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name identifies the provider and model.
func (a *AnthropicClient) Name() string { return "anthropic/" + a.cfg.Model }

// Generate sends the prompt and returns the concatenated text blocks of the reply.
func (a *AnthropicClient) Generate(ctx context.Context, prompt digest.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if a.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(a.cfg.Temperature))
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("anthropic", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
		}
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		a.logger.WarnContext(ctx, "anthropic returned no text", "model", a.cfg.Model, "stop_reason", resp.StopReason)
	}
	return out.String(), nil
}
