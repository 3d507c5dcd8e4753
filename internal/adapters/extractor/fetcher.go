package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/target/paper-digest/internal/domain/retry"
)

// ErrBodyTooLarge is returned when a document exceeds the configured size limit.
var ErrBodyTooLarge = errors.New("document exceeds size limit")

// Document is a fetched resource.
type Document struct {
	Body        []byte
	ContentType string
	// FinalURL is the URL after redirects.
	FinalURL string
	Attempts int
}

// FetcherOptions configure a Fetcher.
type FetcherOptions struct {
	Client    *http.Client
	Timeout   time.Duration
	Policy    retry.Policy
	MaxBytes  int64
	UserAgent string
	Logger    *slog.Logger
}

// Fetcher downloads documents with a bounded timeout and retry budget.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	policy    retry.Policy
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:    client,
		timeout:   timeout,
		policy:    opts.Policy,
		maxBytes:  maxBytes,
		userAgent: opts.UserAgent,
		logger:    logger.With("component", "fetcher"),
	}
}

// Fetch downloads rawURL. Timeouts, connection errors, 408, 429 and 5xx responses are retried;
// other 4xx responses fail at once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid document url %q", rawURL)
	}

	policy := f.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.logger.InfoContext(ctx, "fetch retry",
			"url", rawURL, "attempt", attempt, "delay", delay, "error", err)
	}

	var doc *Document
	attempts := 0
	err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		d, err := f.fetchOnce(ctx, u.String())
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	doc.Attempts = attempts
	return doc, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/pdf,text/html;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := &retry.StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if retry.RetryableStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.maxBytes))
	}

	return &Document{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// fetchAttempts reports how many attempts a failed fetch made.
func fetchAttempts(err error) int {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return 1
}
