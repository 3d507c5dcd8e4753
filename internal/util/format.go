package util //nolint:revive // package name util hosts shared formatting helpers for operator output

import "time"

// FormatProcessingDuration formats a time.Duration for display, handling edge cases.
// Returns "—" for zero or negative durations, truncates to milliseconds for readability.
func FormatProcessingDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "—"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// JobProcessingDuration returns how long a job spent between claim and its terminal
// transition, or zero when either timestamp is missing.
func JobProcessingDuration(startedAt, completedAt *time.Time) time.Duration {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return completedAt.Sub(*startedAt)
}
