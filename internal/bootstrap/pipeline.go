package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/adapters/extractor"
	"github.com/target/paper-digest/internal/adapters/llm"
	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/retry"
	"github.com/target/paper-digest/internal/observability/statsd"
	"github.com/target/paper-digest/internal/service"
)

// PipelineDeps groups what the extraction and summarization stages need.
type PipelineDeps struct {
	Config  *config.AppConfig
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// BuildExtractor wires the fetcher, PDF/OCR and HTML extractors from config.
func BuildExtractor(deps PipelineDeps) (*extractor.Service, error) {
	cfg := deps.Config
	logger := deps.Logger.With("component", "extractor")

	fetcher := extractor.NewFetcher(extractor.FetcherOptions{
		Timeout: cfg.Fetch.Timeout,
		Policy: retry.Policy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			BaseDelay:   cfg.Fetch.BaseDelay,
			MaxDelay:    10 * time.Second,
			Jitter:      true,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				logger.Info("retrying fetch", "attempt", attempt, "delay", delay, "error", err)
			},
		},
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    logger,
	})

	pdf := extractor.NewPDFExtractor(extractor.PDFOptions{
		PDFToText:       cfg.OCR.PDFToTextPath,
		PDFToPPM:        cfg.OCR.PDFToPPMPath,
		Tesseract:       cfg.OCR.TesseractPath,
		OCRLanguage:     cfg.OCR.Language,
		DPI:             cfg.OCR.DPI,
		MaxPages:        cfg.OCR.MaxPages,
		MinCharsPerPage: cfg.OCR.MinCharsPerPage,
		Logger:          logger,
	})

	svc, err := extractor.New(extractor.Options{
		Fetcher:       fetcher,
		PDF:           pdf,
		HTML:          extractor.NewHTMLExtractor(logger),
		Language:      extractor.NewLanguageDetector(),
		MinTextLength: cfg.OCR.MinTextLength,
		PDFTimeout:    cfg.OCR.Timeout,
		Metrics:       deps.Metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}
	return svc, nil
}

// BuildModelClient selects the generative model backend.
//
//nolint:ireturn // the provider is chosen at runtime.
func BuildModelClient(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (core.ModelClient, error) {
	llmCfg := llm.Config{
		APIKey:          cfg.APIKey(),
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         cfg.Timeout,
		Logger:          logger,
	}

	switch cfg.Provider {
	case config.AIProviderAnthropic:
		client, err := llm.NewAnthropicClient(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		client, err := llm.NewGeminiClient(ctx, llmCfg)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return client, nil
	}
}

// BuildSummarizer wires the model client behind the retry and rate-limit policy.
func BuildSummarizer(ctx context.Context, deps PipelineDeps) (*service.Summarizer, error) {
	cfg := deps.Config
	logger := deps.Logger.With("component", "summarizer")

	client, err := BuildModelClient(ctx, cfg.AI, logger)
	if err != nil {
		return nil, err
	}

	return service.NewSummarizer(service.SummarizerOptions{
		Client: client,
		Config: cfg.Summary,
		Policy: retry.Policy{
			MaxAttempts: cfg.AI.MaxAttempts,
			BaseDelay:   cfg.AI.BaseDelay,
			MaxDelay:    30 * time.Second,
			Jitter:      true,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				logger.Info("retrying model call", "model", client.Name(), "attempt", attempt, "delay", delay, "error", err)
			},
		},
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		Metrics:           deps.Metrics,
		Logger:            logger,
	})
}
