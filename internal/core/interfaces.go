// Package core defines the ports between the digest services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/paper-digest/internal/domain/digest"
	"github.com/target/paper-digest/internal/domain/model"
)

// This file contains port definitions (hexagonal architecture).
// Services depend on these interfaces; data and adapter packages provide implementations.

// JobRepository defines job store operations.
//
// ClaimNext atomically moves the oldest pending job to processing and returns it, or
// model.ErrNoJobsAvailable when there is none (including when another claimant won the race).
// Complete and Fail return model.ErrInvalidTransition unless the job is processing.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ClaimNext(ctx context.Context) (*model.Job, error)
	WaitForNotification(ctx context.Context) error
	SetExtraction(ctx context.Context, id string, ext model.Extraction) error
	Complete(ctx context.Context, id string, d model.Digest) error
	Fail(ctx context.Context, id, errMsg string) error
	ListCompleted(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// ReaperRepository defines maintenance operations on the job store.
type ReaperRepository interface {
	// FailStaleProcessing fails jobs stuck in processing longer than maxAge.
	FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// Stats reports job counts per status for queue depth gauges.
	Stats(ctx context.Context) (*model.JobStats, error)
}

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// Extractor turns a URL into text.
type Extractor interface {
	Extract(ctx context.Context, url string) (*model.Extraction, error)
}

// ModelClient sends one prompt to a generative model and returns the raw reply text.
// Errors carrying an HTTP status should wrap *retry.StatusError so callers can classify them.
type ModelClient interface {
	Generate(ctx context.Context, prompt digest.Prompt) (string, error)
	Name() string
}

// Summarizer turns extracted text into a digest.
type Summarizer interface {
	Summarize(ctx context.Context, ext model.Extraction) (*model.Digest, error)
}

// JobEventPublisher announces terminal job transitions to live channel holders.
type JobEventPublisher interface {
	PublishJobEvent(ctx context.Context, ev model.JobEvent) error
}

// DigestCache reuses digests for recently summarized URLs.
type DigestCache interface {
	Lookup(ctx context.Context, url string) (*model.Digest, bool)
	Store(ctx context.Context, url string, d model.Digest)
}

// JobSink receives terminal jobs for outbound delivery such as webhooks.
type JobSink interface {
	Deliver(ctx context.Context, job model.Job) error
}
