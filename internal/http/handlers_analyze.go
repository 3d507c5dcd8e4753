package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/paper-digest/internal/service"
)

// AnalyzeHandlers serves the synchronous analyze endpoint.
type AnalyzeHandlers struct {
	Svc    *service.AnalyzeService
	Logger *slog.Logger
}

type analyzeRequest struct {
	URL string `json:"url"`
}

// Analyze handles POST /api/analyze. Pipeline failures answer 422 with the user-safe message.
func (h *AnalyzeHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	res, err := h.Svc.Analyze(r.Context(), body.URL)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
