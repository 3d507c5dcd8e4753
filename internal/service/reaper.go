package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/model"
	obserrors "github.com/target/paper-digest/internal/observability/errors"
	"github.com/target/paper-digest/internal/observability/metrics"
	"github.com/target/paper-digest/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService fails jobs orphaned in processing by a crashed or stuck worker.
//
// A job stays in processing only while a worker owns it. When the worker dies mid-job
// nothing else would ever move it forward, so the reaper fails it after ProcessingMaxAge.
// A late Complete from the original worker then sees an invalid transition.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"processing_max_age", opts.Config.ProcessingMaxAge,
		"batch_size", opts.Config.BatchSize,
	)

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return errors.New("reaper interval must be greater than zero")
	}
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(ctx, err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(ctx, err, "cleanup")
			}
		}
	}
}

// RunOnce fails every stale processing job, batch by batch, and refreshes the queue
// depth gauges. It returns the number of jobs failed.
func (s *ReaperService) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := s.failStaleProcessing(ctx)
	s.emitCleanupMetrics(count, err, time.Since(start))
	s.emitQueueDepth(ctx)

	if err != nil {
		if isContextCancellation(err) {
			return count, context.Canceled
		}
		return count, fmt.Errorf("fail stale processing jobs: %w", err)
	}
	return count, nil
}

// failStaleProcessing loops until no more rows are affected so large backlogs are
// handled in bounded batches.
func (s *ReaperService) failStaleProcessing(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.FailStaleProcessing(ctx, s.config.ProcessingMaxAge, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 {
		s.logger.InfoContext(ctx, "failed orphaned processing jobs",
			"count", totalCount,
			"max_age", s.config.ProcessingMaxAge,
		)
	}
	return totalCount, nil
}

func (s *ReaperService) emitCleanupMetrics(count int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	metricErr := suppressContextCancellation(err)
	result := metrics.ResultSuccess
	switch {
	case metricErr != nil:
		result = metrics.ResultError
	case count == 0:
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": "fail_processing",
		"result":    result,
	}
	if metricErr != nil {
		if class := obserrors.Classify(metricErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if metricErr == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
	if metricErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitQueueDepth(ctx context.Context) {
	if s.metrics == nil || ctx.Err() != nil {
		return
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "queue depth unavailable", "error", err)
		return
	}
	metrics.EmitQueueDepth(s.metrics, map[string]int{
		string(model.JobStatusPending):    stats.Pending,
		string(model.JobStatusProcessing): stats.Processing,
		string(model.JobStatusCompleted):  stats.Completed,
		string(model.JobStatusFailed):     stats.Failed,
	})
}

func (s *ReaperService) logCleanupError(ctx context.Context, err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
