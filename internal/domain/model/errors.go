package model

import (
	"errors"
	"strings"
)

// Store outcomes.
var (
	// ErrNoJobsAvailable is returned when no pending job could be claimed.
	// Losing a claim race surfaces the same way and is not an error for callers.
	ErrNoJobsAvailable = errors.New("no jobs available")
	// ErrInvalidTransition is returned when a terminal write targets a job that is not processing.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
)

// Pipeline stage failures. Each carries a user-safe message via UserMessage.
var (
	ErrUnreachableURL    = errors.New("unreachable url")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionEmpty   = errors.New("extraction empty")
	ErrAIError           = errors.New("ai error")
	ErrAIParseError      = errors.New("ai parse error")
)

// StageError tags a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewStageError builds a StageError.
func NewStageError(stage string, kind, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: cause}
}

// UserMessage maps an error to the concise text stored on a failed job.
// Raw causes are never exposed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachableURL):
		return "Could not download the document: the URL was unreachable after several attempts."
	case errors.Is(err, ErrUnsupportedFormat):
		return "The URL does not point to a PDF or HTML document."
	case errors.Is(err, ErrExtractionEmpty):
		return "No readable text could be extracted from the document."
	case errors.Is(err, ErrAIParseError):
		return "The summarization service returned a reply that could not be understood."
	case errors.Is(err, ErrAIError):
		return "The summarization service is unavailable. Please try again later."
	default:
		return "Processing failed due to an internal error."
	}
}
