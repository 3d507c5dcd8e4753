package errors

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "wrapped deadline", err: fmt.Errorf("claim: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(MapDBError(tt.err)); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	for _, err := range []error{pgx.ErrNoRows, sql.ErrNoRows} {
		if !IsNotFound(MapDBError(err)) {
			t.Errorf("MapDBError(%v) should be NotFound", err)
		}
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantCode  ErrorCode
		wantField string
	}{
		{
			name: "unique violation with detail",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: `Key (id)=(0b6c) already exists.`,
			},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name: "transition trigger",
			pgErr: &pgconn.PgError{
				Code:    pgerrcode.CheckViolation,
				Message: "digest job 0b6c cannot move from completed to processing",
			},
			wantCode: ErrCodeConflict,
		},
		{
			name: "terminal row",
			pgErr: &pgconn.PgError{
				Code:    pgerrcode.CheckViolation,
				Message: "digest job 0b6c is terminal (failed)",
			},
			wantCode: ErrCodeConflict,
		},
		{
			name: "named check constraint",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.CheckViolation,
				ConstraintName: "digest_jobs_digest_check",
			},
			wantCode:  ErrCodeValidation,
			wantField: "digest",
		},
		{
			name: "unknown check constraint",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.CheckViolation,
				ConstraintName: "something_else",
			},
			wantCode: ErrCodeValidation,
		},
		{
			name:      "not null",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "url"},
			wantCode:  ErrCodeValidation,
			wantField: "url",
		},
		{
			name:     "malformed uuid",
			pgErr:    &pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "admin shutdown",
			pgErr:    &pgconn.PgError{Code: pgerrcode.AdminShutdown},
			wantCode: ErrCodeUnavailable,
		},
		{
			name:     "unhandled",
			pgErr:    &pgconn.PgError{Code: pgerrcode.DivisionByZero},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(fmt.Errorf("exec: %w", tt.pgErr))
			if got := GetCode(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (err=%v)", got, tt.wantCode, err)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	orig := fmt.Errorf("some other failure")
	if got := MapDBError(orig); got != orig { //nolint:errorlint // identity check
		t.Errorf("MapDBError() = %v, want original error", got)
	}
}
