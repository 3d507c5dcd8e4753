package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/adapters/extractor"
	"github.com/target/paper-digest/internal/adapters/jobrunner"
	"github.com/target/paper-digest/internal/adapters/oidc"
	redisadapter "github.com/target/paper-digest/internal/adapters/redis"
	"github.com/target/paper-digest/internal/adapters/reaper"
	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/data"
	domainjob "github.com/target/paper-digest/internal/domain/job"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/observability/notify/slack"
	"github.com/target/paper-digest/internal/observability/statsd"
	"github.com/target/paper-digest/internal/service"
	"github.com/target/paper-digest/internal/service/digestcache"
	"github.com/target/paper-digest/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs       *service.JobService
	Analyze    *service.AnalyzeService // nil when no model API key is configured
	Live       *domainjob.LiveRegistry // nil unless the HTTP gateway runs in this process
	JobRepo    *data.JobRepo
	CacheRepo  *data.RedisCacheRepo
	Extractor  *extractor.Service
	Summarizer *service.Summarizer
	Cache      *digestcache.Cache
	Sinks      []core.JobSink
	// EventBus carries terminal events between processes in split mode.
	EventBus      *redisadapter.EventBus
	OwnerVerifier *oidc.BearerVerifier
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     statsd.Sink
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig

	statsdClient *statsd.Client
}

// Close sends buffered metrics and releases the StatsD socket.
func (o ObservabilityContainer) Close() error {
	return o.statsdClient.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Context     context.Context
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var (
		metricsSink  statsd.Sink
		statsdClient *statsd.Client
	)
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
			statsdClient = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
		statsdClient:    statsdClient,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 1)
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:  baseLogger.With("component", "failure_notifier"),
		Sinks:   sinks,
		Timeout: cfg.Timeout,
	})
}

// buildPipeline wires the extraction and summarization stages. The summarizer is
// skipped when no model API key is configured; only the worker requires it.
func buildPipeline(ctx context.Context, deps PipelineDeps) (*extractor.Service, *service.Summarizer, error) {
	ext, err := BuildExtractor(deps)
	if err != nil {
		return nil, nil, err
	}
	if deps.Config.AI.APIKey() == "" {
		deps.Logger.Warn("no model API key configured; summarization disabled", "provider", deps.Config.AI.Provider)
		return ext, nil, nil
	}
	sum, err := BuildSummarizer(ctx, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("build summarizer: %w", err)
	}
	return ext, sum, nil
}

func buildDigestCache(cacheRepo *data.RedisCacheRepo, cfg config.RedisConfig, obs ObservabilityContainer, logger *slog.Logger) *digestcache.Cache {
	opts := digestcache.Options{
		TTL:     cfg.CacheTTL,
		Metrics: obs.MetricsSink,
		Logger:  logger,
	}
	if cacheRepo != nil {
		opts.Redis = cacheRepo
	}
	return digestcache.New(opts)
}

func buildSinks(cfg config.DigestSinkConfig, logger *slog.Logger) ([]core.JobSink, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	webhook, err := service.NewWebhookService(service.WebhookServiceOptions{
		Config: cfg,
		Logger: logger.With("component", "webhook"),
	})
	if err != nil {
		return nil, fmt.Errorf("build webhook sink: %w", err)
	}
	return []core.JobSink{webhook}, nil
}

func buildOwnerVerifier(ctx context.Context, cfg config.OIDCConfig, logger *slog.Logger) (*oidc.BearerVerifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	verifier, err := oidc.NewBearerVerifier(ctx, oidc.Config{
		IssuerURL:        cfg.IssuerURL,
		ClientID:         cfg.ClientID,
		UserInfoFallback: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build oidc verifier: %w", err)
	}
	logger.Info("bearer token verification enabled", "issuer", cfg.IssuerURL, "required", cfg.Required)
	return verifier, nil
}

// NewServices wires repositories, pipeline stages and gateway services from config.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies and config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})

	var cacheRepo *data.RedisCacheRepo
	var eventBus *redisadapter.EventBus
	if deps.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(deps.RedisClient, cfg.Redis.CachePrefix)
		eventBus = redisadapter.NewEventBus(deps.RedisClient, cfg.Redis.EventChannel, logger)
	}

	ext, sum, err := buildPipeline(ctx, PipelineDeps{Config: cfg, Metrics: observability.MetricsSink, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}
	cache := buildDigestCache(cacheRepo, cfg.Redis, observability, logger)

	sinks, err := buildSinks(cfg.DigestSink, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            jobRepo,
		Logger:          logger,
		HistoryMaxLimit: cfg.HTTP.HistoryMaxLimit,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	container := ServiceContainer{
		Jobs:          jobs,
		JobRepo:       jobRepo,
		CacheRepo:     cacheRepo,
		Extractor:     ext,
		Summarizer:    sum,
		Cache:         cache,
		Sinks:         sinks,
		EventBus:      eventBus,
		Observability: observability,
	}

	if !cfg.IsHTTPServerEnabled() {
		return container, nil
	}

	live, err := domainjob.NewLiveRegistry(domainjob.LiveRegistryOptions{Jobs: jobRepo, Logger: logger})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build live registry: %w", err)
	}
	container.Live = live

	if sum != nil {
		container.Analyze, err = service.NewAnalyzeService(service.AnalyzeServiceOptions{
			Extractor:  ext,
			Summarizer: sum,
			Cache:      cache,
			Timeout:    cfg.HTTP.AnalyzeTimeout,
			Logger:     logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build analyze service: %w", err)
		}
	}

	container.OwnerVerifier, err = buildOwnerVerifier(ctx, cfg.HTTP.OIDC, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	return container, nil
}

// eventPublisher picks where the worker announces terminal transitions: the live
// registry when the gateway shares the process, otherwise the Redis bus.
//
//nolint:ireturn // publisher depends on the process layout.
func (c ServiceContainer) eventPublisher(cfg *config.AppConfig) core.JobEventPublisher {
	if cfg != nil && cfg.SplitProcess() {
		if c.EventBus != nil {
			return c.EventBus
		}
		return nil
	}
	if c.Live != nil {
		return c.Live
	}
	return nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			if svc.Summarizer == nil {
				return errors.New("worker requires a model API key")
			}
			runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
				Jobs:            svc.JobRepo,
				Extractor:       svc.Extractor,
				Summarizer:      svc.Summarizer,
				Events:          svc.eventPublisher(deps.cfg.Config),
				Cache:           svc.Cache,
				Sinks:           svc.Sinks,
				FailureNotifier: svc.Observability.FailureNotifier,
				Metrics:         svc.Observability.MetricsSink,
				Logger:          deps.logger.With("component", "worker"),
				Config:          deps.cfg.Config.Worker,
			})
			if err != nil {
				return fmt.Errorf("create worker: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:      deps.cfg.DB,
				Config:  deps.cfg.Config.Reaper,
				Logger:  deps.logger.With("component", "reaper"),
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("create reaper: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

// newEventForwarderBackgroundService relays terminal events from the Redis bus to
// the live registry when the worker runs in another process.
func newEventForwarderBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "job event forwarder",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			return svc.EventBus.Subscribe(ctx, func(ctx context.Context, ev model.JobEvent) {
				svc.Live.Notify(ctx, ev)
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil {
		return nil
	}
	services := []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
	svc := deps.cfg.Services
	if deps.cfg.Config.SplitProcess() && svc.EventBus != nil && svc.Live != nil {
		services = append(services, newEventForwarderBackgroundService(deps))
	}
	return services
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		services:    cfg.Services,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	// The event forwarder rides along with the HTTP mode.
	if enabled[config.ServiceModeHTTP] {
		count++
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	services    ServiceContainer
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		stopErr = ShutdownHTTPServer(ShutdownConfig{
			Context:    shutdownCtx,
			Server:     cfg.httpServer,
			JobService: cfg.services.Jobs,
			Live:       cfg.services.Live,
			Logger:     cfg.logger,
		})
	} else if cfg.services.Jobs != nil {
		cfg.services.Jobs.StopAllListeners()
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if err := cfg.services.Observability.Close(); err != nil {
		cfg.logger.Warn("close statsd client", "error", err)
	}

	return stopErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
