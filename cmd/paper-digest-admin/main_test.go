package main

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/migrate"
)

func strPtr(s string) *string { return &s }

func sampleJobs() []*model.Job {
	completedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	startedAt := completedAt.Add(-42 * time.Second)
	return []*model.Job{
		{
			ID:               "job-1",
			URL:              "https://arxiv.org/pdf/2401.00001",
			Owner:            strPtr("alice@example.com"),
			Status:           model.JobStatusCompleted,
			CreatedAt:        completedAt.Add(-time.Minute),
			StartedAt:        &startedAt,
			CompletedAt:      &completedAt,
			ExtractionMethod: model.ExtractionDirect,
			Language:         "en",
			Digest: &model.Digest{
				Title:       "Sleep and Memory",
				Summary:     "Researchers looked at sleep.",
				Methodology: "They surveyed 500 people.",
				Takeaways:   []string{"Sleep helps", "Naps help less"},
			},
		},
		{
			ID:           "job-2",
			URL:          "https://example.com/broken",
			Status:       model.JobStatusFailed,
			CreatedAt:    completedAt,
			ErrorMessage: strPtr("could not reach the URL"),
		},
	}
}

func TestNewAppHelpDoesNotLoadConfig(t *testing.T) {
	app := newApp(func() (*commandContext, error) {
		return nil, errors.New("config should not be loaded")
	})
	app.Writer = io.Discard

	require.NoError(t, app.Run([]string{"paper-digest-admin", "--help"}))

	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"migrate", "jobs", "stats", "reap", "export", "cache-purge"}, names)
}

func TestCommandSurfacesConfigError(t *testing.T) {
	app := newApp(func() (*commandContext, error) {
		return nil, errors.New("load config: boom")
	})
	app.Writer = io.Discard
	app.ErrWriter = io.Discard

	err := app.Run([]string{"paper-digest-admin", "stats"})
	require.ErrorContains(t, err, "boom")
}

func TestParseStatusFlag(t *testing.T) {
	status, err := parseStatusFlag("")
	require.NoError(t, err)
	assert.Nil(t, status)

	status, err = parseStatusFlag(" Completed ")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, model.JobStatusCompleted, *status)

	_, err = parseStatusFlag("done")
	require.Error(t, err)
}

func TestQueryJobs(t *testing.T) {
	result, err := queryJobs(sampleJobs(), "[?status=='completed'].digest.title")
	require.NoError(t, err)
	assert.Equal(t, []any{"Sleep and Memory"}, result)

	result, err = queryJobs(sampleJobs(), "length(@)")
	require.NoError(t, err)
	assert.InDelta(t, 2, result, 0)

	_, err = queryJobs(sampleJobs(), "[?status==")
	require.ErrorContains(t, err, "invalid query")
}

func TestPrintJobsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobsTable(&buf, sampleJobs()))

	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "Sleep and Memory")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, "could not reach the URL")
	assert.Contains(t, out, "Total: 2 jobs")
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, &model.JobStats{Pending: 2, Processing: 1, Completed: 5, Failed: 1}))

	out := buf.String()
	assert.Regexp(t, `pending\s+2`, out)
	assert.Regexp(t, `completed\s+5`, out)
	assert.Regexp(t, `total\s+9`, out)
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.Migration{
		{Version: "0001_digest_jobs", AppliedAt: &applied},
		{Version: "0002_digest_jobs_transition_guard"},
	}))

	out := buf.String()
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Regexp(t, `0002_digest_jobs_transition_guard\s+pending`, out)
}

func TestBuildHistoryWorkbook(t *testing.T) {
	f, err := buildHistoryWorkbook(sampleJobs())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus the one job with a digest")

	assert.Equal(t, historyHeaders, rows[0])
	assert.Equal(t, "2026-03-04T05:06:07Z", rows[1][0])
	assert.Equal(t, "Sleep and Memory", rows[1][1])
	assert.Equal(t, "• Sleep helps\n• Naps help less", rows[1][4])
	assert.Equal(t, "alice@example.com", rows[1][7])
	assert.Equal(t, "job-1", rows[1][9])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
