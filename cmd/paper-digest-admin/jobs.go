package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/paper-digest/internal/adapters/reaper"
	"github.com/target/paper-digest/internal/bootstrap"
	"github.com/target/paper-digest/internal/data"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/migrate"
	"github.com/target/paper-digest/internal/service"
	"github.com/target/paper-digest/internal/service/digestcache"
	"github.com/target/paper-digest/internal/util"
	"github.com/urfave/cli/v2"
)

func runMigrate(cmdCtx *commandContext, c *cli.Context) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, c.Duration("timeout"))
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	if c.Bool("status") {
		migrations, statusErr := migrate.Status(ctx, db)
		if statusErr != nil {
			return fmt.Errorf("migration status: %w", statusErr)
		}
		return printMigrationStatus(cmdCtx.Out, migrations)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	return writeln(cmdCtx.Out, "migrations applied")
}

func printMigrationStatus(w io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "VERSION\tAPPLIED\n"); err != nil {
		return err
	}
	for _, m := range migrations {
		applied := "pending"
		if m.AppliedAt != nil {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\n", m.Version, applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseStatusFlag(raw string) (*model.JobStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var status model.JobStatus
	if err := status.UnmarshalText([]byte(raw)); err != nil {
		return nil, err
	}
	return &status, nil
}

func optionalString(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	return &v
}

func runJobsList(cmdCtx *commandContext, c *cli.Context) error {
	status, err := parseStatusFlag(c.String("status"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	jobs, err := repo.List(ctx, model.JobListOptions{
		Status: status,
		Owner:  optionalString(c.String("owner")),
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if expr := strings.TrimSpace(c.String("query")); expr != "" {
		result, queryErr := queryJobs(jobs, expr)
		if queryErr != nil {
			return queryErr
		}
		return printJSON(cmdCtx.Out, result)
	}
	return printJobsTable(cmdCtx.Out, jobs)
}

// queryJobs evaluates a JMESPath expression against the jobs' JSON representation.
func queryJobs(jobs []*model.Job, expr string) (any, error) {
	evaluator := service.NewJMESPathEvaluator()
	if err := evaluator.Validate(expr); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	raw, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("encode jobs: %w", err)
	}
	var doc any
	if err = json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	result, err := evaluator.Evaluate(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate query: %w", err)
	}
	return result, nil
}

func printJobsTable(w io.Writer, jobs []*model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tSTATUS\tCREATED\tDURATION\tOWNER\tTITLE / ERROR\tURL\n"); err != nil {
		return err
	}
	for _, job := range jobs {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID,
			job.Status,
			job.CreatedAt.UTC().Format(time.RFC3339),
			util.FormatProcessingDuration(util.JobProcessingDuration(job.StartedAt, job.CompletedAt)),
			derefOr(job.Owner, "-"),
			truncate(jobHeadline(job), 60),
			job.URL,
		); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "\nTotal: %d jobs\n", len(jobs))
}

func jobHeadline(job *model.Job) string {
	switch {
	case job.Digest != nil:
		return job.Digest.Title
	case job.ErrorMessage != nil:
		return *job.ErrorMessage
	default:
		return ""
	}
}

func runJobsShow(cmdCtx *commandContext, c *cli.Context) error {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return errors.New("job id is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	job, err := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}
	return printJSON(cmdCtx.Out, job)
}

func runStats(cmdCtx *commandContext, _ *cli.Context) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	stats, err := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).Stats(ctx)
	if err != nil {
		return fmt.Errorf("job stats: %w", err)
	}
	return printStats(cmdCtx.Out, stats)
}

func printStats(w io.Writer, stats *model.JobStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		name  string
		count int
	}{
		{string(model.JobStatusPending), stats.Pending},
		{string(model.JobStatusProcessing), stats.Processing},
		{string(model.JobStatusCompleted), stats.Completed},
		{string(model.JobStatusFailed), stats.Failed},
	}
	total := 0
	for _, row := range rows {
		total += row.count
		if err := writef(tw, "%s\t%d\n", row.name, row.count); err != nil {
			return err
		}
	}
	if err := writef(tw, "total\t%d\n", total); err != nil {
		return err
	}
	return tw.Flush()
}

func runReap(cmdCtx *commandContext, c *cli.Context) error {
	cfg := cmdCtx.Config.Reaper
	if maxAge := c.Duration("max-age"); maxAge > 0 {
		cfg.ProcessingMaxAge = maxAge
	}
	if batch := c.Int("batch-size"); batch > 0 {
		cfg.BatchSize = batch
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	runner, err := reaper.NewRunner(reaper.RunnerOptions{DB: db, Config: cfg, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	reaped, err := runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reap: %w", err)
	}
	return writef(cmdCtx.Out, "failed %d orphaned job(s) older than %s\n", reaped, cfg.ProcessingMaxAge)
}

func runCachePurge(cmdCtx *commandContext, c *cli.Context) error {
	rawURL := strings.TrimSpace(c.Args().First())
	if rawURL == "" {
		return errors.New("url is required")
	}

	client, err := connectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	repo := data.NewRedisCacheRepo(client, cmdCtx.Config.Redis.CachePrefix)
	deleted, err := repo.Delete(ctx, digestcache.Key(rawURL))
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	if !deleted {
		return writeln(cmdCtx.Out, "no cached digest for", rawURL)
	}
	return writeln(cmdCtx.Out, "purged cached digest for", rawURL)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
