// Package errors turns pipeline errors into short metric/log tags.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/target/paper-digest/internal/domain/model"
)

var kindClasses = []struct {
	kind  error
	class string
}{
	{model.ErrUnreachableURL, "unreachable_url"},
	{model.ErrUnsupportedFormat, "unsupported_format"},
	{model.ErrExtractionEmpty, "extraction_empty"},
	{model.ErrAIParseError, "ai_parse_error"},
	{model.ErrAIError, "ai_error"},
	{model.ErrInvalidTransition, "invalid_transition"},
	{model.ErrJobNotFound, "job_not_found"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
}

// Classify returns a normalized error name suitable for tagging metrics/logs.
// Known pipeline kinds map to fixed names; anything else is named after its innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for _, kc := range kindClasses {
		if goerrors.Is(err, kc.kind) {
			return kc.class
		}
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
