package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/adapters/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildModelClient(t *testing.T) {
	ctx := context.Background()

	t.Run("anthropic", func(t *testing.T) {
		client, err := BuildModelClient(ctx, config.AIConfig{
			Provider:        config.AIProviderAnthropic,
			AnthropicAPIKey: "sk-test",
			Model:           "claude-test",
		}, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, "anthropic/claude-test", client.Name())
	})

	t.Run("gemini is the default", func(t *testing.T) {
		client, err := BuildModelClient(ctx, config.AIConfig{
			Provider:     config.AIProvider("unknown"),
			GeminiAPIKey: "g-test",
		}, quietLogger())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(client.Name(), "gemini/"), client.Name())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := BuildModelClient(ctx, config.AIConfig{Provider: config.AIProviderAnthropic}, quietLogger())
		require.ErrorIs(t, err, llm.ErrAPIKeyRequired)
	})
}

func TestBuildPipelineWithoutKeySkipsSummarizer(t *testing.T) {
	cfg := &config.AppConfig{Services: "http"}
	cfg.Sanitize()

	ext, sum, err := buildPipeline(context.Background(), PipelineDeps{Config: cfg, Logger: quietLogger()})
	require.NoError(t, err)
	assert.NotNil(t, ext)
	assert.Nil(t, sum)
}

func TestBuildPipelineWithKey(t *testing.T) {
	cfg := &config.AppConfig{
		Services: "worker",
		AI:       config.AIConfig{Provider: config.AIProviderAnthropic, AnthropicAPIKey: "sk-test"},
	}
	cfg.Sanitize()

	ext, sum, err := buildPipeline(context.Background(), PipelineDeps{Config: cfg, Logger: quietLogger()})
	require.NoError(t, err)
	assert.NotNil(t, ext)
	assert.NotNil(t, sum)
}
