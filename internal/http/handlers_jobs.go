package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/service"
)

const defaultHistoryLimit = 20

// JobHandlers provides HTTP handlers for job submission, lookup and history.
type JobHandlers struct {
	Svc             *service.JobService
	HistoryMaxLimit int
	Logger          *slog.Logger
}

type submitJobRequest struct {
	URL string `json:"url"`
}

// HistoryResponse is one page of completed jobs.
type HistoryResponse struct {
	Jobs   []*model.Job `json:"jobs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// SubmitJob handles POST /api/jobs.
func (h *JobHandlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var body submitJobRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	req := &model.CreateJobRequest{URL: body.URL}
	if owner, ok := OwnerFromContext(r.Context()); ok {
		req.Owner = &owner
	}

	job, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	WriteJSON(w, http.StatusCreated, job)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// History handles GET /api/history. Callers with a resolved owner see only their own jobs.
func (h *JobHandlers) History(w http.ResponseWriter, r *http.Request) {
	maxLimit := h.HistoryMaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	limit, offset := ParseLimitOffset(r, defaultHistoryLimit, maxLimit)

	opts := model.JobListOptions{Limit: limit, Offset: offset}
	if owner, ok := OwnerFromContext(r.Context()); ok {
		opts.Owner = &owner
	}

	jobs, err := h.Svc.History(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, HistoryResponse{Jobs: jobs, Limit: limit, Offset: offset})
}
