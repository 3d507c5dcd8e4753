package httpx

import (
	"log/slog"
	"net/http"

	domainjob "github.com/target/paper-digest/internal/domain/job"
	"github.com/target/paper-digest/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs    *service.JobService
	Analyze *service.AnalyzeService // Optional: enables POST /api/analyze
	Live    *domainjob.LiveRegistry // Optional: enables the live channel
	Ready   map[string]ReadyCheck   // Optional: dependency checks for /readyz
	Owner   OwnerOptions

	HistoryMaxLimit int
	AllowedOrigins  []string
	IsDev           bool
	Logger          *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	api := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, HistoryMaxLimit: services.HistoryMaxLimit, Logger: logger}
	api.HandleFunc("POST /api/jobs", jobHandlers.SubmitJob)
	api.HandleFunc("GET /api/jobs/{id}", jobHandlers.GetJob)
	api.HandleFunc("GET /api/history", jobHandlers.History)

	if services.Live != nil {
		live := NewLiveHandlers(services.Jobs, services.Live, services.AllowedOrigins, services.IsDev, logger)
		api.HandleFunc("GET /api/jobs/{id}/live", live.Live)
	}
	if services.Analyze != nil {
		analyze := &AnalyzeHandlers{Svc: services.Analyze, Logger: logger}
		api.HandleFunc("POST /api/analyze", analyze.Analyze)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", ResolveOwner(services.Owner, logger)(api))
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.Handle("GET /readyz", readinessHandler(services.Ready))

	return Recover(logger)(Logging(logger)(mux))
}
