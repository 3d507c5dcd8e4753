package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/target/paper-digest/internal/data/pgxutil"
	"github.com/target/paper-digest/internal/domain/model"
)

type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(condition string, value any) {
	if value != nil {
		b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
		b.args = append(b.args, value)
		b.argIdx++
	}
}

func (b *jobFilterQueryBuilder) page(limit, offset int) {
	b.query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", b.argIdx, b.argIdx+1)
	b.args = append(b.args, clampLimit(limit), max(offset, 0))
	b.argIdx += 2
}

// buildJobListQuery constructs the admin job list query, newest first.
func buildJobListQuery(opts model.JobListOptions) (string, []any) {
	builder := &jobFilterQueryBuilder{
		query:  `SELECT ` + jobColumns + ` FROM digest_jobs WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.Status != nil {
		builder.addFilter("status", string(*opts.Status))
	}
	if owner := normalizeOwner(opts.Owner); owner != nil {
		builder.addFilter("owner", *owner)
	}
	builder.query += " ORDER BY created_at DESC, id DESC"
	builder.page(opts.Limit, opts.Offset)
	return builder.query, builder.args
}

// buildHistoryQuery constructs the completed-jobs history query, most recently completed first.
func buildHistoryQuery(opts model.JobListOptions) (string, []any) {
	builder := &jobFilterQueryBuilder{
		query:  `SELECT ` + jobColumns + ` FROM digest_jobs WHERE status = 'completed'`,
		args:   []any{},
		argIdx: 1,
	}
	if owner := normalizeOwner(opts.Owner); owner != nil {
		builder.addFilter("owner", *owner)
	}
	builder.query += " ORDER BY completed_at DESC, id DESC"
	builder.page(opts.Limit, opts.Offset)
	return builder.query, builder.args
}

// List returns jobs in any status with optional status and owner filters.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	query, args := buildJobListQuery(opts)
	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListCompleted returns completed jobs for the history view. Opts.Status is ignored.
func (r *JobRepo) ListCompleted(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	query, args := buildHistoryQuery(opts)
	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	return jobs, nil
}

func (r *JobRepo) queryJobs(ctx context.Context, query string, args []any) ([]*model.Job, error) {
	var result []*model.Job
	err := pgxutil.Conn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = make([]*model.Job, 0)
		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return scanErr
			}
			result = append(result, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns job counts by status.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var stats model.JobStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'processing'),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed')
		FROM digest_jobs
	`).Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &stats, nil
}
