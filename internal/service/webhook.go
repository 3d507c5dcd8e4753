package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/domain/retry"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// NewJMESPathEvaluator returns the library-backed evaluator.
func NewJMESPathEvaluator() JMESPathEvaluator {
	return jmespathLibEvaluator{}
}

// WebhookServiceOptions groups dependencies for WebhookService.
type WebhookServiceOptions struct {
	Config     config.DigestSinkConfig // Required: URL must be set
	HTTPClient *http.Client            // Optional: defaults to a client with Config.Timeout
	Evaluator  JMESPathEvaluator       // Optional: defaults to go-jmespath
	BaseDelay  time.Duration           // Optional: first retry wait, default 500ms
	Logger     *slog.Logger            // Optional: structured logger
}

// WebhookService POSTs terminal jobs to a configured endpoint.
type WebhookService struct {
	url           string
	bodyExpr      string
	onlyCompleted bool
	client        *http.Client
	jems          JMESPathEvaluator
	policy        retry.Policy
	logger        *slog.Logger
}

// NewWebhookService validates the sink configuration and constructs the service.
func NewWebhookService(opts WebhookServiceOptions) (*WebhookService, error) {
	cfg := opts.Config
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook URL scheme: %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("invalid webhook URL: missing host")
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	expr := strings.TrimSpace(cfg.BodyExpr)
	if err := jems.Validate(expr); err != nil {
		return nil, fmt.Errorf("invalid body JMESPath: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "webhook_service")

	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	svc := &WebhookService{
		url:           u.String(),
		bodyExpr:      expr,
		onlyCompleted: cfg.OnlyCompleted,
		client:        client,
		jems:          jems,
		logger:        logger,
	}
	svc.policy = retry.Policy{
		MaxAttempts: max(cfg.RetryLimit, 0) + 1,
		BaseDelay:   baseDelay,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			svc.logger.Warn("webhook delivery failed, retrying",
				"attempt", attempt, "delay", delay, "error", err)
		},
	}
	return svc, nil
}

// Deliver sends the job document, shaped by the body expression when one is configured.
// Non-terminal jobs are ignored, as are failed jobs when OnlyCompleted is set.
func (s *WebhookService) Deliver(ctx context.Context, job model.Job) error {
	if !job.Status.Terminal() {
		return nil
	}
	if s.onlyCompleted && job.Status != model.JobStatusCompleted {
		return nil
	}

	body, err := s.buildBody(job)
	if err != nil {
		return err
	}

	err = s.policy.Do(ctx, func(ctx context.Context, _ int) error {
		return s.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("deliver webhook for job %s: %w", job.ID, err)
	}
	s.logger.DebugContext(ctx, "webhook delivered", "job_id", job.ID, "status", job.Status)
	return nil
}

func (s *WebhookService) buildBody(job model.Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if s.bodyExpr == "" {
		return payload, nil
	}
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	res, err := s.jems.Evaluate(s.bodyExpr, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate body JMESPath: %w", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal derived body: %w", err)
	}
	return b, nil
}

func (s *WebhookService) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &retry.StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if retry.RetryableStatus(resp.StatusCode) {
		return statusErr
	}
	return retry.Permanent(statusErr)
}
