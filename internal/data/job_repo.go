package data

import (
	"database/sql"
	"log/slog"
)

// jobsAddedChannel is the Postgres NOTIFY channel signalled on every insert.
const jobsAddedChannel = "digest_jobs_added"

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for digest jobs.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  url,
  owner,
  status,
  created_at,
  started_at,
  completed_at,
  extracted_text,
  extraction_method,
  language,
  title,
  summary,
  methodology,
  takeaways,
  error_message
`

// jobColumnsJ is jobColumns qualified with the "j" alias for UPDATE ... FROM statements.
const jobColumnsJ = `
  j.id,
  j.url,
  j.owner,
  j.status,
  j.created_at,
  j.started_at,
  j.completed_at,
  j.extracted_text,
  j.extraction_method,
  j.language,
  j.title,
  j.summary,
  j.methodology,
  j.takeaways,
  j.error_message
`

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
