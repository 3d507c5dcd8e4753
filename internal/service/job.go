package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/target/paper-digest/internal/core"
	domainjob "github.com/target/paper-digest/internal/domain/job"
	"github.com/target/paper-digest/internal/domain/model"
	apperrors "github.com/target/paper-digest/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	Logger          *slog.Logger              // Optional: structured logger
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
	// HistoryMaxLimit caps history page sizes. Zero means 100.
	HistoryMaxLimit int
}

// JobService provides the gateway-facing job operations: submission, lookup and history.
// It also owns the notifier that wakes idle workers when a job is submitted.
type JobService struct {
	repo            core.JobRepository
	notifier        domainjob.Notifier
	validate        *validator.Validate
	historyMaxLimit int
	logger          *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.HistoryMaxLimit
	if limit <= 0 {
		limit = 100
	}

	return &JobService{
		repo:            opts.Repo,
		notifier:        notifier,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		historyMaxLimit: limit,
		logger:          logger.With("component", "job_service"),
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates the request and enqueues a pending job.
func (s *JobService) Submit(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	normalized := *req
	normalized.URL = strings.TrimSpace(normalized.URL)
	if normalized.Owner != nil {
		owner := strings.TrimSpace(*normalized.Owner)
		normalized.Owner = &owner
		if owner == "" {
			normalized.Owner = nil
		}
	}

	if err := validateJobRequest(s.validate, &normalized); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "url", job.URL)
	return job, nil
}

// validateJobRequest applies struct tags and rejects URLs the fetcher cannot use.
func validateJobRequest(v *validator.Validate, req *model.CreateJobRequest) error {
	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return validationError(verrs[0])
		}
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return apperrors.ValidationField("url", "url must be an absolute http or https URL")
	}
	return nil
}

func validationError(fe validator.FieldError) error {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperrors.ValidationField(field, field+" is required")
	case "max":
		return apperrors.ValidationField(field, fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param()))
	case "http_url", "url":
		return apperrors.ValidationField(field, field+" must be an absolute http or https URL")
	default:
		return apperrors.ValidationField(field, field+" is invalid")
	}
}

// Get returns one job. Unknown ids map to a not-found application error.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// History returns completed jobs, newest first. Limit is clamped to the configured maximum.
func (s *JobService) History(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = min(20, s.historyMaxLimit)
	case opts.Limit > s.historyMaxLimit:
		opts.Limit = s.historyMaxLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Status = nil

	jobs, err := s.repo.ListCompleted(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return jobs, nil
}

// List returns jobs in any status for administrative views.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats returns job counts by status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// Subscribe creates a subscription for job availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// StopAllListeners stops the notifier's background listener.
func (s *JobService) StopAllListeners() {
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
