package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/digest"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/domain/retry"
	"github.com/target/paper-digest/internal/observability/metrics"
	"github.com/target/paper-digest/internal/observability/statsd"
)

// StageSummarize names the summarization stage in errors and metrics.
const StageSummarize = "summarize"

// SummarizerOptions groups dependencies for Summarizer.
type SummarizerOptions struct {
	Client core.ModelClient     // Required: generative model client
	Config config.SummaryConfig // Prompt budget and parse tolerance
	Policy retry.Policy         // Retry budget for transient model errors
	// RequestsPerMinute throttles model calls made through this Summarizer. Zero disables throttling.
	RequestsPerMinute int
	Metrics           statsd.Sink  // Optional: metrics sink
	Logger            *slog.Logger // Optional: structured logger
}

// Summarizer turns extracted text into a digest using a generative model.
//
// Transient model errors (rate limits, 5xx, timeouts) are retried under Policy. A reply whose
// required blocks cannot be recovered is retried with a restated prompt up to
// Config.ParseRetries times before the job fails with model.ErrAIParseError.
type Summarizer struct {
	client       core.ModelClient
	parser       digest.Parser
	maxChars     int
	parseRetries int
	policy       retry.Policy
	limiter      *rate.Limiter
	metrics      statsd.Sink
	logger       *slog.Logger
}

var _ core.Summarizer = (*Summarizer)(nil)

// NewSummarizer constructs a Summarizer.
func NewSummarizer(opts SummarizerOptions) (*Summarizer, error) {
	if opts.Client == nil {
		return nil, errors.New("ModelClient is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Summarizer{
		client:       opts.Client,
		parser:       digest.NewParser(cfg.StrayTextRatio),
		maxChars:     cfg.MaxChars,
		parseRetries: cfg.ParseRetries,
		policy:       opts.Policy,
		limiter:      limiter,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "summarizer", "model", opts.Client.Name()),
	}, nil
}

// Summarize produces a digest for ext. Errors are *model.StageError values wrapping
// model.ErrAIError or model.ErrAIParseError.
func (s *Summarizer) Summarize(ctx context.Context, ext model.Extraction) (*model.Digest, error) {
	start := time.Now()
	totalAttempts := 0
	var last digest.Result

	for round := 0; round <= s.parseRetries; round++ {
		prompt := digest.BuildPrompt(ext.Text, digest.PromptOptions{
			MaxChars: s.maxChars,
			Language: ext.Language,
			Restate:  round > 0,
		})
		if round == 0 && prompt.Truncated {
			s.logger.InfoContext(ctx, "paper text truncated for model", "max_chars", s.maxChars)
		}

		reply, attempts, err := s.generate(ctx, prompt)
		totalAttempts += attempts
		if err != nil {
			stageErr := model.NewStageError(StageSummarize, model.ErrAIError, err)
			s.emit(metrics.ResultError, "", totalAttempts, time.Since(start), stageErr)
			return nil, stageErr
		}

		last = s.parser.Parse(reply)
		if last.Outcome != digest.Unparseable {
			if last.Outcome == digest.PartiallyParsed {
				s.logger.InfoContext(ctx, "model reply partially parsed", "gaps", last.Reason(), "round", round+1)
			}
			s.emit(metrics.ResultSuccess, last.Outcome.String(), totalAttempts, time.Since(start), nil)
			d := last.Digest
			return &d, nil
		}

		s.logger.WarnContext(ctx, "model reply unparseable",
			"gaps", last.Reason(),
			"round", round+1,
			"rounds", s.parseRetries+1,
			"reply_chars", len(reply),
		)
	}

	stageErr := model.NewStageError(StageSummarize, model.ErrAIParseError, errors.New(last.Reason()))
	s.emit(metrics.ResultError, digest.Unparseable.String(), totalAttempts, time.Since(start), stageErr)
	return nil, stageErr
}

// generate calls the model under the retry policy and rate limiter.
func (s *Summarizer) generate(ctx context.Context, prompt digest.Prompt) (string, int, error) {
	policy := s.policy
	if policy.Retryable == nil {
		policy.Retryable = retry.Transient
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.InfoContext(ctx, "model call retry", "attempt", attempt, "delay", delay, "error", err)
	}

	var reply string
	attempts := 0
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}
		out, err := s.client.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	return reply, attempts, err
}

func (s *Summarizer) emit(result, outcome string, attempts int, d time.Duration, err error) {
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:    StageSummarize,
		Result:   result,
		Method:   outcome,
		Attempts: attempts,
		Duration: d,
		Err:      err,
	})
}
