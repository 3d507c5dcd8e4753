// Package model defines the core data types shared across the paper digest pipeline.
package model

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a digest job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker has claimed the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a digest was produced and stored.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job ended with an error message.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether next is the legal successor of s.
// Transitions only move forward: pending -> processing -> completed|failed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses can be parsed from flags and query strings.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// ExtractionMethod records how the text of a document was obtained.
type ExtractionMethod string

const (
	// ExtractionDirect is embedded PDF text.
	ExtractionDirect ExtractionMethod = "direct"
	// ExtractionOCR is text recognized from rendered PDF pages.
	ExtractionOCR ExtractionMethod = "ocr"
	// ExtractionHTML is readable text pulled from an HTML page.
	ExtractionHTML ExtractionMethod = "html"
	// ExtractionCached means the digest was reused and no extraction ran.
	ExtractionCached ExtractionMethod = "cached"
)

// Job is one submitted URL and its processing state.
type Job struct {
	ID               string           `json:"id"                          db:"id"`
	URL              string           `json:"url"                         db:"url"`
	Owner            *string          `json:"owner,omitempty"             db:"owner"`
	Status           JobStatus        `json:"status"                      db:"status"`
	CreatedAt        time.Time        `json:"created_at"                  db:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"        db:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"      db:"completed_at"`
	ExtractedText    *string          `json:"-"                           db:"extracted_text"`
	ExtractionMethod ExtractionMethod `json:"extraction_method,omitempty" db:"extraction_method"`
	Language         string           `json:"language,omitempty"          db:"language"`
	Digest           *Digest          `json:"digest,omitempty"`
	ErrorMessage     *string          `json:"error_message,omitempty"     db:"error_message"`
}

// CreateJobRequest represents a request to enqueue a new digest job.
type CreateJobRequest struct {
	URL   string  `json:"url"             validate:"required,http_url,max=2048"`
	Owner *string `json:"owner,omitempty" validate:"omitempty,max=320"`
}

// Extraction is the text recovered from a fetched document.
type Extraction struct {
	Text     string
	Method   ExtractionMethod
	Language string
	Pages    int
	Source   string // final URL after redirects
}

// JobStats represents counts of jobs per status.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// JobListOptions filters list queries.
type JobListOptions struct {
	Status *JobStatus
	Owner  *string
	Limit  int
	Offset int
}
