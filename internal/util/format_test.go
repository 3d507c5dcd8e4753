package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatProcessingDuration(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "zero", in: 0, want: "—"},
		{name: "negative", in: -time.Second, want: "—"},
		{name: "sub millisecond", in: 250 * time.Microsecond, want: "250µs"},
		{name: "truncated", in: 1234567 * time.Microsecond, want: "1.234s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProcessingDuration(tt.in))
		})
	}
}

func TestJobProcessingDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	assert.Equal(t, 90*time.Second, JobProcessingDuration(&start, &end))
	assert.Zero(t, JobProcessingDuration(nil, &end))
	assert.Zero(t, JobProcessingDuration(&start, nil))
}
