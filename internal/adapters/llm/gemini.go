package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/target/paper-digest/internal/domain/digest"
)

// GeminiClient calls the Gemini API.
type GeminiClient struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

// NewGeminiClient constructs a GeminiClient.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-latest"
	}
	logger := cfg.defaults("gemini")

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("initialize genai client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg, logger: logger}, nil
}

// Name identifies the provider and model.
func (g *GeminiClient) Name() string { return "gemini/" + g.cfg.Model }

// Generate sends the prompt and returns the concatenated text of the first candidate with text.
// An empty reply is returned as "" so the caller's parser treats it as unparseable.
func (g *GeminiClient) Generate(ctx context.Context, prompt digest.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens: int32(g.cfg.MaxOutputTokens), // #nosec G115 - sanitized config value
	}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return "", g.mapError(err)
	}

	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" && !part.Thought {
					out.WriteString(part.Text)
				}
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	if out.Len() == 0 {
		g.logger.WarnContext(ctx, "gemini returned no text", "model", g.cfg.Model)
	}
	return out.String(), nil
}

func (g *GeminiClient) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError("gemini", apiErrPtr.Code, apiErrPtr.Message)
	}
	return fmt.Errorf("gemini generate: %w", err)
}
