package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the field name from a unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// constraintFields maps digest_jobs check constraints to the field they guard.
var constraintFields = map[string]string{
	"digest_jobs_status_check":            "status",
	"digest_jobs_extraction_method_check": "extraction_method",
	"digest_jobs_started_check":           "started_at",
	"digest_jobs_completed_check":         "completed_at",
	"digest_jobs_digest_check":            "digest",
	"digest_jobs_error_check":             "error_message",
}

// MapDBError maps database errors to AppError instances:
//   - sql.ErrNoRows / pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - check violations raised by the transition trigger → Conflict
//   - other check, NOT NULL and malformed-input errors → Validation
//   - connection failures → Unavailable
//   - context timeouts/cancellations → Timeout/Canceled
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return &AppError{Code: ErrCodeUnavailable, Message: "The database is unavailable. Please try again.", Cause: err}
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.CheckViolation:
		return mapCheckViolation(pgErr)
	case pgerrcode.NotNullViolation:
		return mapNotNullViolation(pgErr)
	case pgerrcode.InvalidTextRepresentation:
		// Typically a malformed UUID in a lookup.
		return &AppError{Code: ErrCodeValidation, Message: "Malformed identifier.", Cause: pgErr}
	case pgerrcode.AdminShutdown, pgerrcode.CrashShutdown, pgerrcode.CannotConnectNow,
		pgerrcode.TooManyConnections, pgerrcode.ConnectionFailure:
		return &AppError{Code: ErrCodeUnavailable, Message: "The database is unavailable. Please try again.", Cause: pgErr}
	default:
		if pgerrcode.IsConnectionException(pgErr.Code) {
			return &AppError{Code: ErrCodeUnavailable, Message: "The database is unavailable. Please try again.", Cause: pgErr}
		}
		return &AppError{Code: ErrCodeInternal, Message: "A database error occurred. Please try again.", Cause: pgErr}
	}
}

func mapUniqueViolation(pgErr *pgconn.PgError) error {
	field := pgErr.ColumnName
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}
	return &AppError{
		Code:    ErrCodeConflict,
		Message: "This value already exists.",
		Field:   field,
		Cause:   pgErr,
	}
}

func mapNotNullViolation(pgErr *pgconn.PgError) error {
	if pgErr.ColumnName != "" {
		return &AppError{Code: ErrCodeValidation, Message: "This field is required.", Field: pgErr.ColumnName, Cause: pgErr}
	}
	return &AppError{Code: ErrCodeValidation, Message: "Required field is missing. Please check your input.", Cause: pgErr}
}

func mapCheckViolation(pgErr *pgconn.PgError) error {
	// The transition trigger raises check_violation without a constraint name.
	if pgErr.ConstraintName == "" && isTransitionViolation(pgErr.Message) {
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "The job is not in a state that allows this change.",
			Cause:   pgErr,
		}
	}

	field := pgErr.ColumnName
	if field == "" {
		field = constraintFields[pgErr.ConstraintName]
	}
	if field != "" {
		return &AppError{Code: ErrCodeValidation, Message: "This field has an invalid value.", Field: field, Cause: pgErr}
	}
	return &AppError{Code: ErrCodeValidation, Message: "Invalid data. Please check your input.", Cause: pgErr}
}

func isTransitionViolation(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "is terminal") ||
		strings.Contains(msg, "cannot move from") ||
		strings.Contains(msg, "are immutable")
}
