package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP gateway.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the digest worker loop.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the orphaned job reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains digest worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines claiming jobs.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// IdleInterval is how long a worker sleeps after finding no pending job.
	// Submissions wake idle workers early through LISTEN/NOTIFY.
	IdleInterval time.Duration `env:"WORKER_IDLE_INTERVAL" envDefault:"5s"`

	// JobTimeout bounds extraction plus summarization for a single job.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"10m"`

	// StoreTimeout bounds each terminal store write.
	StoreTimeout time.Duration `env:"WORKER_STORE_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.IdleInterval < 100*time.Millisecond {
		w.IdleInterval = 100 * time.Millisecond
	}
	if w.JobTimeout < 30*time.Second {
		w.JobTimeout = 30 * time.Second
	}
	if w.StoreTimeout <= 0 {
		w.StoreTimeout = 10 * time.Second
	}
}

// ReaperConfig contains orphaned job reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// ProcessingMaxAge is the maximum time a job may stay in processing before it is
	// considered orphaned (worker crashed mid-job) and failed.
	ProcessingMaxAge time.Duration `env:"REAPER_PROCESSING_MAX_AGE" envDefault:"30m"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.ProcessingMaxAge < 5*time.Minute {
		r.ProcessingMaxAge = 5 * time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
