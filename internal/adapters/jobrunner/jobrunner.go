// Package jobrunner runs the digest worker loop: claim a pending job, extract its text,
// summarize it and record the terminal outcome.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/core"
	domainjob "github.com/target/paper-digest/internal/domain/job"
	"github.com/target/paper-digest/internal/domain/model"
	obserrors "github.com/target/paper-digest/internal/observability/errors"
	"github.com/target/paper-digest/internal/observability/metrics"
	"github.com/target/paper-digest/internal/observability/notify"
	"github.com/target/paper-digest/internal/observability/statsd"
	"github.com/target/paper-digest/internal/service/failurenotifier"
)

// ErrStoreWrite marks a terminal write that failed for a reason other than a lost
// transition. The worker cannot make progress without the store, so Run stops.
var ErrStoreWrite = errors.New("job store write failed")

// RunnerOptions configures the worker.
type RunnerOptions struct {
	Jobs       core.JobRepository // Required
	Extractor  core.Extractor     // Required
	Summarizer core.Summarizer    // Required

	// Optional collaborators
	Notifier        domainjob.Notifier     // wakes idle workers; defaults to LISTEN/NOTIFY on Jobs
	Events          core.JobEventPublisher // terminal events for live channels
	Cache           core.DigestCache
	Sinks           []core.JobSink
	FailureNotifier *failurenotifier.Service
	Metrics         statsd.Sink
	Logger          *slog.Logger

	Config config.WorkerConfig
}

// Runner claims and processes digest jobs.
type Runner struct {
	jobs       core.JobRepository
	extractor  core.Extractor
	summarizer core.Summarizer
	notifier   domainjob.Notifier
	events     core.JobEventPublisher
	cache      core.DigestCache
	sinks      []core.JobSink
	failures   *failurenotifier.Service
	metrics    statsd.Sink
	logger     *slog.Logger

	workers      int
	idle         time.Duration
	jobTimeout   time.Duration
	storeTimeout time.Duration
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if opts.Summarizer == nil {
		return nil, errors.New("summarizer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := opts.Notifier
	if notifier == nil {
		n, err := domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: opts.Jobs})
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
		notifier = n
	}

	cfg := opts.Config
	r := &Runner{
		jobs:         opts.Jobs,
		extractor:    opts.Extractor,
		summarizer:   opts.Summarizer,
		notifier:     notifier,
		events:       opts.Events,
		cache:        opts.Cache,
		failures:     opts.FailureNotifier,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "job_runner"),
		workers:      max(cfg.Concurrency, 1),
		idle:         cfg.IdleInterval,
		jobTimeout:   cfg.JobTimeout,
		storeTimeout: cfg.StoreTimeout,
	}
	for _, s := range opts.Sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	if r.idle <= 0 {
		r.idle = 5 * time.Second
	}
	if r.jobTimeout <= 0 {
		r.jobTimeout = 10 * time.Minute
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = 10 * time.Second
	}
	return r, nil
}

// Run starts the worker goroutines and blocks until ctx is cancelled or a terminal store
// write fails. A job that is already claimed runs to completion after cancellation.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "idle_interval", r.idle)

	unsub, wake := r.notifier.Subscribe()
	defer unsub()

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		g.Go(func() error {
			return r.workerLoop(gctx, i, wake)
		})
	}

	err := g.Wait()
	if err != nil {
		r.logger.ErrorContext(ctx, "job runner stopped", "error", err)
		return err
	}
	r.logger.InfoContext(ctx, "job runner stopped", "reason", ctx.Err())
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, worker int, wake <-chan struct{}) error {
	logger := r.logger.With("worker", worker)
	for ctx.Err() == nil {
		job, err := r.jobs.ClaimNext(ctx)
		switch {
		case err == nil:
			metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
				Transition: metrics.TransitionClaim,
				Result:     metrics.ResultSuccess,
			})
			if perr := r.ProcessJob(ctx, job); perr != nil {
				return perr
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitIdle(ctx, wake) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			logger.WarnContext(ctx, "claim failed", "error", err)
			metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
				Transition: metrics.TransitionClaim,
				Result:     metrics.ResultError,
				Err:        err,
			})
			if !r.waitIdle(ctx, nil) {
				return nil
			}
		}
	}
	return nil
}

// waitIdle sleeps for the idle interval or until a submission wakes the worker.
// It returns false when ctx is done.
func (r *Runner) waitIdle(ctx context.Context, wake <-chan struct{}) bool {
	timer := time.NewTimer(r.idle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}

// outcome is the result of running the pipeline for one job.
type outcome struct {
	digest *model.Digest
	method model.ExtractionMethod
	err    error
	// abandoned is set when the job left PROCESSING while the pipeline ran.
	abandoned bool
}

// ProcessJob runs one claimed job to a terminal state. It returns an error only when the
// terminal write itself fails; every pipeline failure becomes a failed job.
func (r *Runner) ProcessJob(ctx context.Context, job *model.Job) error {
	start := time.Now()
	base := context.WithoutCancel(ctx)
	logger := r.logger.With("job_id", job.ID)
	logger.InfoContext(ctx, "processing job", "url", job.URL)

	jobCtx, cancel := context.WithTimeout(base, r.jobTimeout)
	out := r.runPipeline(jobCtx, job, logger)
	cancel()

	if out.abandoned {
		logger.WarnContext(ctx, "job no longer processing, skipping summarization")
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: metrics.TransitionComplete,
			Result:     metrics.ResultNoop,
			Method:     string(out.method),
			Duration:   time.Since(start),
		})
		return nil
	}

	storeCtx, storeCancel := context.WithTimeout(base, r.storeTimeout)
	defer storeCancel()

	var (
		transition = metrics.TransitionComplete
		status     = model.JobStatusCompleted
		writeErr   error
	)
	if out.err == nil {
		writeErr = r.jobs.Complete(storeCtx, job.ID, *out.digest)
	} else {
		transition = metrics.TransitionFail
		status = model.JobStatusFailed
		writeErr = r.jobs.Fail(storeCtx, job.ID, model.UserMessage(out.err))
	}

	switch {
	case errors.Is(writeErr, model.ErrInvalidTransition):
		// The reaper already failed this job; the late result is dropped.
		logger.WarnContext(ctx, "terminal write rejected, job no longer processing",
			"target_status", status, "error", writeErr)
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: transition,
			Result:     metrics.ResultNoop,
			Method:     string(out.method),
			Duration:   time.Since(start),
		})
		return nil
	case writeErr != nil:
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: transition,
			Result:     metrics.ResultError,
			Method:     string(out.method),
			Duration:   time.Since(start),
			Err:        writeErr,
		})
		return fmt.Errorf("%w: %s job %s: %w", ErrStoreWrite, status, job.ID, writeErr)
	}

	result := metrics.ResultSuccess
	if out.err != nil {
		result = metrics.ResultError
		logger.InfoContext(ctx, "job failed", "error", out.err, "duration", time.Since(start))
	} else {
		logger.InfoContext(ctx, "job completed", "method", out.method, "duration", time.Since(start))
	}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Method:     string(out.method),
		Duration:   time.Since(start),
		Err:        out.err,
	})

	r.afterTerminal(storeCtx, job, status, out)
	return nil
}

// runPipeline isolates one job: panics are converted into a failure.
func (r *Runner) runPipeline(ctx context.Context, job *model.Job, logger *slog.Logger) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "job panicked", "panic", rec, "stack", string(debug.Stack()))
			out = outcome{method: out.method, err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if r.cache != nil {
		if d, ok := r.cache.Lookup(ctx, job.URL); ok {
			logger.InfoContext(ctx, "reusing cached digest")
			return outcome{digest: d, method: model.ExtractionCached}
		}
	}

	ext, err := r.extractor.Extract(ctx, job.URL)
	if err != nil {
		return outcome{err: err}
	}
	out.method = ext.Method

	if err := r.jobs.SetExtraction(ctx, job.ID, *ext); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			out.abandoned = true
			return out
		}
		logger.WarnContext(ctx, "record extraction failed", "error", err)
	}

	d, err := r.summarizer.Summarize(ctx, *ext)
	if err != nil {
		out.err = err
		return out
	}
	if d == nil || !d.Complete() {
		out.err = model.NewStageError("summarize", model.ErrAIParseError, errors.New("incomplete digest"))
		return out
	}
	if r.cache != nil {
		r.cache.Store(ctx, job.URL, *d)
	}
	out.digest = d
	return out
}

// afterTerminal announces the outcome. Every step is best-effort.
func (r *Runner) afterTerminal(ctx context.Context, job *model.Job, status model.JobStatus, out outcome) {
	if r.events != nil {
		ev := model.JobEvent{JobID: job.ID, Status: status, OccurredAt: time.Now().UTC()}
		if err := r.events.PublishJobEvent(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "publish job event failed", "job_id", job.ID, "error", err)
		}
	}

	if status == model.JobStatusFailed && r.failures != nil {
		r.failures.NotifyJobFailure(ctx, failurePayload(job, out.err))
	}

	if len(r.sinks) == 0 {
		return
	}
	final, err := r.jobs.GetByID(ctx, job.ID)
	if err != nil {
		r.logger.WarnContext(ctx, "load job for delivery failed", "job_id", job.ID, "error", err)
		return
	}
	for _, sink := range r.sinks {
		if err := sink.Deliver(ctx, *final); err != nil {
			r.logger.WarnContext(ctx, "job delivery failed", "job_id", job.ID, "error", err)
		}
	}
}

func failurePayload(job *model.Job, err error) notify.JobFailurePayload {
	p := notify.JobFailurePayload{
		JobID:      job.ID,
		URL:        job.URL,
		Stage:      "internal",
		Error:      model.UserMessage(err),
		ErrorClass: obserrors.Classify(err),
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Now().UTC(),
		Metadata:   map[string]string{"component": "job_runner"},
	}
	if job.Owner != nil {
		p.Owner = *job.Owner
	}
	var se *model.StageError
	if errors.As(err, &se) {
		p.Stage = se.Stage
	}
	// Bad input from the submitter is not an operational problem.
	if errors.Is(err, model.ErrUnreachableURL) ||
		errors.Is(err, model.ErrUnsupportedFormat) ||
		errors.Is(err, model.ErrExtractionEmpty) {
		p.Severity = notify.SeverityWarning
	}
	return p
}
