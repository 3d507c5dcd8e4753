package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/model"
	apperrors "github.com/target/paper-digest/internal/errors"
)

// AnalyzeServiceOptions groups dependencies for AnalyzeService.
type AnalyzeServiceOptions struct {
	Extractor  core.Extractor  // Required
	Summarizer core.Summarizer // Required
	Cache      core.DigestCache
	// Timeout bounds one analysis. Zero means 2 minutes.
	Timeout time.Duration
	Logger  *slog.Logger
}

// AnalyzeService runs extraction and summarization inline without creating a job.
type AnalyzeService struct {
	extractor  core.Extractor
	summarizer core.Summarizer
	cache      core.DigestCache
	timeout    time.Duration
	validate   *validator.Validate
	logger     *slog.Logger
}

// AnalyzeResult is the outcome of a synchronous analysis.
type AnalyzeResult struct {
	URL      string                 `json:"url"`
	Method   model.ExtractionMethod `json:"extraction_method"`
	Language string                 `json:"language,omitempty"`
	Digest   model.Digest           `json:"digest"`
}

// NewAnalyzeService constructs an AnalyzeService.
func NewAnalyzeService(opts AnalyzeServiceOptions) (*AnalyzeService, error) {
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if opts.Summarizer == nil {
		return nil, errors.New("summarizer is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeService{
		extractor:  opts.Extractor,
		summarizer: opts.Summarizer,
		cache:      opts.Cache,
		timeout:    timeout,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With("component", "analyze_service"),
	}, nil
}

// Analyze fetches url, extracts its text and returns a digest. Nothing is persisted,
// though a successful digest is offered to the cache for later jobs.
// Stage failures come back as *model.StageError; use model.UserMessage for display.
func (s *AnalyzeService) Analyze(ctx context.Context, rawURL string) (*AnalyzeResult, error) {
	req := &model.CreateJobRequest{URL: strings.TrimSpace(rawURL)}
	if err := validateJobRequest(s.validate, req); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if d, ok := s.cache.Lookup(ctx, req.URL); ok {
			return &AnalyzeResult{URL: req.URL, Method: model.ExtractionCached, Digest: *d}, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	ext, err := s.extractor.Extract(ctx, req.URL)
	if err != nil {
		s.logger.InfoContext(ctx, "analyze failed", "url", req.URL, "stage", describeStage(err), "error", err)
		return nil, err
	}

	d, err := s.summarizer.Summarize(ctx, *ext)
	if err != nil {
		s.logger.InfoContext(ctx, "analyze failed", "url", req.URL, "stage", describeStage(err), "error", err)
		return nil, err
	}
	if d == nil {
		return nil, apperrors.Internal("summarizer returned no digest")
	}

	if s.cache != nil {
		s.cache.Store(ctx, req.URL, *d)
	}
	s.logger.InfoContext(ctx, "analyze completed",
		"url", req.URL,
		"method", ext.Method,
		"duration", time.Since(start),
	)
	return &AnalyzeResult{URL: req.URL, Method: ext.Method, Language: ext.Language, Digest: *d}, nil
}

// IsStageFailure reports whether err is a pipeline failure rather than a validation error.
func IsStageFailure(err error) bool {
	var se *model.StageError
	return errors.As(err, &se)
}

// describeStage renders the stage that failed for logs.
func describeStage(err error) string {
	var se *model.StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s/%v", se.Stage, se.Kind)
	}
	return "internal"
}
