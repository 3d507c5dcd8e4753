package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/paper-digest/config"
	domainjob "github.com/target/paper-digest/internal/domain/job"
	httpx "github.com/target/paper-digest/internal/http"
	"github.com/target/paper-digest/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(buildRouterServices(cfg, appCfg, logger))
	return startServer(logger, handler, appCfg.HTTP)
}

func buildRouterServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	svc := cfg.Services
	owner := httpx.OwnerOptions{
		Header:   appCfg.HTTP.OwnerHeader,
		Required: appCfg.HTTP.OIDC.Required,
	}
	// Keep the interface nil when verification is off.
	if svc.OwnerVerifier != nil {
		owner.Verifier = svc.OwnerVerifier
	}
	return httpx.RouterServices{
		Jobs:            svc.Jobs,
		Analyze:         svc.Analyze,
		Live:            svc.Live,
		Ready:           readinessChecks(cfg.DB, svc),
		Owner:           owner,
		HistoryMaxLimit: appCfg.HTTP.HistoryMaxLimit,
		AllowedOrigins:  appCfg.HTTP.AllowedOrigins,
		IsDev:           appCfg.IsDev,
		Logger:          logger,
	}
}

func readinessChecks(db *sql.DB, svc ServiceContainer) map[string]httpx.ReadyCheck {
	checks := make(map[string]httpx.ReadyCheck, 2)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if svc.CacheRepo != nil {
		checks["redis"] = svc.CacheRepo.Health
	}
	return checks
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// Synchronous analysis holds the response open for the whole pipeline.
	writeTimeout := 30 * time.Second
	if cfg.AnalyzeTimeout+30*time.Second > writeTimeout {
		writeTimeout = cfg.AnalyzeTimeout + 30*time.Second
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Live       *domainjob.LiveRegistry
	Logger     *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down HTTP server")

	if cfg.JobService != nil {
		cfg.JobService.StopAllListeners()
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	if cfg.Live != nil {
		cfg.Live.CloseAll()
	}

	ctx := cfg.Context
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if err := cfg.Server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
