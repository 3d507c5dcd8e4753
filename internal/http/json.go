// Package httpx provides the HTTP gateway for the paper digest service.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/target/paper-digest/internal/domain/model"
	apperrors "github.com/target/paper-digest/internal/errors"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

// writeServiceError maps a service error to a status code and a client-safe body.
// Causes wrapped inside application errors are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperrors.AppError
	var stageErr *model.StageError
	switch {
	case errors.As(err, &appErr):
		if appErr.Code == apperrors.ErrCodeInternal || appErr.Code == apperrors.ErrCodeUnavailable {
			logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    appErr.Code.HTTPStatus(),
			ErrCode: string(appErr.Code),
			Err:     errors.New(appErr.Message),
			Field:   appErr.Field,
		})
	case errors.As(err, &stageErr):
		WriteError(w, ErrorParams{
			Code:    http.StatusUnprocessableEntity,
			ErrCode: "analysis_failed",
			Err:     errors.New(model.UserMessage(err)),
		})
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, ErrorParams{
			Code:    http.StatusGatewayTimeout,
			ErrCode: string(apperrors.ErrCodeTimeout),
			Err:     errors.New("request timed out"),
		})
	default:
		if mapped := apperrors.MapDBError(err); errors.As(mapped, &appErr) {
			writeServiceError(w, r, logger, mapped)
			return
		}
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: string(apperrors.ErrCodeInternal),
			Err:     errors.New("internal error"),
		})
	}
}
