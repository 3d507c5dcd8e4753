package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/paper-digest/internal/data/pgxutil"
	"github.com/target/paper-digest/internal/domain/model"
)

// defaultFailMessage is stored when Fail is called with a blank message.
const defaultFailMessage = "Processing failed."

// SQL used by ClaimNext to atomically move the oldest pending job to processing.
// SKIP LOCKED lets concurrent claimants pass over a row another transaction is claiming,
// and the status predicate in the UPDATE keeps the write conditional on (id, pending).
const claimNextSQL = `
  WITH cte AS (
    SELECT id FROM digest_jobs
    WHERE status = 'pending'
    ORDER BY created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE digest_jobs j
  SET status = 'processing',
      started_at = $1
  FROM cte
  WHERE j.id = cte.id AND j.status = 'pending'
  RETURNING ` + jobColumnsJ

// Create inserts a pending job and signals waiting workers.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, ErrCreateRequestMissing
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, errors.New("url is required")
	}

	var job *model.Job
	if txErr := pgxutil.Tx(ctx, r.DB, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var insertErr error
		job, insertErr = r.insertJobInTx(ctx, tx, url, req.Owner)
		return insertErr
	}); txErr != nil {
		return nil, txErr
	}

	return job, nil
}

func (r *JobRepo) insertJobInTx(ctx context.Context, tx pgx.Tx, url string, owner *string) (*model.Job, error) {
	rows, err := tx.Query(ctx, `
		INSERT INTO digest_jobs (id, url, owner, status, created_at)
		VALUES ($1, $2, $3, 'pending', $4)
		RETURNING `+jobColumns,
		uuid.NewString(), url, normalizeOwner(owner), r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect job: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobsAddedChannel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send job notification: %w", execErr)
	}

	return job, nil
}

// ClaimNext transitions the oldest pending job to processing and returns it.
// It returns model.ErrNoJobsAvailable when nothing could be claimed.
func (r *JobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.Tx(ctx, r.DB, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimNextSQL, r.timeProvider.Now().UTC())
		if err != nil {
			return fmt.Errorf("claim next job: %w", err)
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNoJobsAvailable
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// SetExtraction records the extracted text of a processing job.
func (r *JobRepo) SetExtraction(ctx context.Context, id string, ext model.Extraction) error {
	if !validJobID(id) {
		return model.ErrJobNotFound
	}

	var lang *string
	if ext.Language != "" {
		lang = &ext.Language
	}
	var updatedID string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE digest_jobs
		SET extracted_text = $2,
		    extraction_method = $3,
		    language = $4
		WHERE id = $1 AND status = 'processing'
		RETURNING id
	`, id, ext.Text, string(ext.Method), lang).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return r.transitionError(ctx, id, model.JobStatusProcessing)
	}
	if err != nil {
		return fmt.Errorf("set extraction: %w", err)
	}
	return nil
}

// Complete stores the digest and marks the job completed.
// The digest is normalized first; it must carry title, summary and methodology.
func (r *JobRepo) Complete(ctx context.Context, id string, d model.Digest) error {
	if !validJobID(id) {
		return model.ErrJobNotFound
	}
	d = d.Normalize()
	if !d.Complete() {
		return ErrDigestIncomplete
	}

	var updatedID string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE digest_jobs
		SET status = 'completed',
		    title = $2,
		    summary = $3,
		    methodology = $4,
		    takeaways = $5,
		    completed_at = $6
		WHERE id = $1 AND status = 'processing'
		RETURNING id
	`, id, d.Title, d.Summary, d.Methodology, d.Takeaways, r.timeProvider.Now().UTC()).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return r.transitionError(ctx, id, model.JobStatusCompleted)
	}
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail marks a processing job failed with a user-facing message.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) error {
	if !validJobID(id) {
		return model.ErrJobNotFound
	}
	errMsg = strings.TrimSpace(errMsg)
	if errMsg == "" {
		errMsg = defaultFailMessage
	}

	var updatedID string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE digest_jobs
		SET status = 'failed',
		    error_message = $2,
		    completed_at = $3
		WHERE id = $1 AND status = 'processing'
		RETURNING id
	`, id, errMsg, r.timeProvider.Now().UTC()).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return r.transitionError(ctx, id, model.JobStatusFailed)
	}
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// transitionError explains why a guarded update matched no row.
func (r *JobRepo) transitionError(ctx context.Context, id string, target model.JobStatus) error {
	var current model.JobStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM digest_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s, cannot move to %s", model.ErrInvalidTransition, id, current, target)
}

// WaitForNotification blocks until a job is inserted or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobsAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobsAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID. Unknown or malformed ids return model.ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if !validJobID(id) {
		return nil, model.ErrJobNotFound
	}

	var job *model.Job
	err := pgxutil.Conn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM digest_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func validJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func normalizeOwner(owner *string) *string {
	if owner == nil {
		return nil
	}
	v := strings.TrimSpace(*owner)
	if v == "" {
		return nil
	}
	return &v
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	owner, extractedText, method, language sql.NullString
	title, summary, methodology, errorMsg  sql.NullString
	startedAt, completedAt                 sql.NullTime
	takeaways                              []string
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.URL,
		&d.owner,
		&job.Status,
		&job.CreatedAt,
		&d.startedAt,
		&d.completedAt,
		&d.extractedText,
		&d.method,
		&d.language,
		&d.title,
		&d.summary,
		&d.methodology,
		&d.takeaways,
		&d.errorMsg,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.CreatedAt = job.CreatedAt.UTC()
	job.Owner = cloneNullableString(d.owner)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.ExtractedText = cloneNullableString(d.extractedText)
	job.ExtractionMethod = model.ExtractionMethod(d.method.String)
	job.Language = d.language.String
	job.ErrorMessage = cloneNullableString(d.errorMsg)

	if d.title.Valid {
		takeaways := make([]string, len(d.takeaways))
		copy(takeaways, d.takeaways)
		job.Digest = &model.Digest{
			Title:       d.title.String,
			Summary:     d.summary.String,
			Methodology: d.methodology.String,
			Takeaways:   takeaways,
		}
	}
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
