package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/paper-digest/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations, used with two-arg pg_try_advisory_xact_lock.
const (
	advisoryLockReaperMajor          = 1000
	advisoryLockReaperFailProcessing = 1
)

// StaleProcessingMessage is stored on jobs the reaper fails.
const StaleProcessingMessage = "Processing timed out."

// FailStaleProcessing marks jobs that have been processing longer than maxAge as failed.
// At most batchSize rows are touched per call; concurrent reapers skip the call via an
// advisory lock. Returns the number of jobs failed.
func (r *JobRepo) FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if maxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.Tx(ctx, r.DB, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var locked bool
		if err := tx.QueryRow(
			ctx,
			"SELECT pg_try_advisory_xact_lock($1, $2)",
			advisoryLockReaperMajor,
			advisoryLockReaperFailProcessing,
		).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}

		now := r.timeProvider.Now().UTC()
		tag, err := tx.Exec(ctx, `
			UPDATE digest_jobs
			SET status = 'failed',
			    error_message = $1,
			    completed_at = $2
			WHERE id IN (
				SELECT id FROM digest_jobs
				WHERE status = 'processing'
				  AND started_at < $3
				ORDER BY started_at
				LIMIT $4
				FOR UPDATE SKIP LOCKED
			)
			AND status = 'processing'
		`, StaleProcessingMessage, now, now.Add(-maxAge), batchSize)
		if err != nil {
			return fmt.Errorf("fail stale digest jobs: %w", err)
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if rowsAffected > 0 {
		r.logger.InfoContext(ctx, "failed stale processing jobs", "count", rowsAffected, "max_age", maxAge)
	}
	return rowsAffected, nil
}
