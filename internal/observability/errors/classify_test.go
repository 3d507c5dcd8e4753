package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/target/paper-digest/internal/domain/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"stage error", model.NewStageError("extract", model.ErrUnsupportedFormat, errors.New("image/png")), "unsupported_format"},
		{"wrapped parse", fmt.Errorf("summarize: %w", model.ErrAIParseError), "ai_parse_error"},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{"concrete type", &net.DNSError{Err: "no such host"}, "net_dnserror"},
		{"plain", errors.New("x"), "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
