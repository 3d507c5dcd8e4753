package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/target/paper-digest/internal/domain/model"
)

// ErrJobReaderRequired indicates a live registry cannot be constructed without a job reader.
var ErrJobReaderRequired = errors.New("live registry job reader is required")

// LiveChannel is a connected client waiting for one job's outcome.
// Implementations must tolerate Send and Close being called from different goroutines.
type LiveChannel interface {
	Send(ctx context.Context, msg model.LiveMessage) error
	Close() error
}

// JobReader loads the current snapshot of a job.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*model.Job, error)
}

// LiveRegistryOptions configure a LiveRegistry.
type LiveRegistryOptions struct {
	Jobs        JobReader
	Logger      *slog.Logger
	SendTimeout time.Duration
}

type liveEntry struct {
	ch LiveChannel

	mu        sync.Mutex
	delivered bool
}

// LiveRegistry maps a job id to at most one live channel and pushes terminal outcomes to it.
// Delivery is best-effort: an event for a job with no registered channel is dropped.
type LiveRegistry struct {
	jobs        JobReader
	logger      *slog.Logger
	sendTimeout time.Duration

	mu       sync.Mutex
	channels map[string]*liveEntry
}

// NewLiveRegistry constructs a LiveRegistry.
func NewLiveRegistry(opts LiveRegistryOptions) (*LiveRegistry, error) {
	if opts.Jobs == nil {
		return nil, ErrJobReaderRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LiveRegistry{
		jobs:        opts.Jobs,
		logger:      logger.With("component", "live_registry"),
		sendTimeout: timeout,
		channels:    make(map[string]*liveEntry),
	}, nil
}

// Register attaches ch to jobID, replacing and closing any previous channel for the same job.
// It then re-reads the job and pushes its outcome at once if it is already terminal, so a client
// that connects after completion is not left waiting. The returned function removes the
// registration if it is still current; it is safe to call more than once.
func (r *LiveRegistry) Register(ctx context.Context, jobID string, ch LiveChannel) (func(), error) {
	entry := &liveEntry{ch: ch}

	r.mu.Lock()
	prev := r.channels[jobID]
	r.channels[jobID] = entry
	r.mu.Unlock()

	if prev != nil {
		r.closeEntry(jobID, prev, "replaced")
	}

	unregister := func() { r.remove(jobID, entry) }

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		unregister()
		return func() {}, err
	}

	if job.Status.Terminal() {
		r.deliver(ctx, jobID, entry, job)
	}
	return unregister, nil
}

// Notify pushes the job's current outcome to its registered channel, if any.
func (r *LiveRegistry) Notify(ctx context.Context, ev model.JobEvent) {
	r.mu.Lock()
	entry := r.channels[ev.JobID]
	r.mu.Unlock()

	if entry == nil {
		r.logger.DebugContext(ctx, "no live channel for job event", "job_id", ev.JobID, "status", ev.Status)
		return
	}

	job, err := r.jobs.GetByID(ctx, ev.JobID)
	if err != nil {
		r.logger.WarnContext(ctx, "load job for live push failed", "job_id", ev.JobID, "error", err)
		return
	}
	r.deliver(ctx, ev.JobID, entry, job)
}

// PublishJobEvent lets the registry act as the in-process terminal event publisher.
func (r *LiveRegistry) PublishJobEvent(ctx context.Context, ev model.JobEvent) error {
	r.Notify(ctx, ev)
	return nil
}

// Len reports the number of registered channels.
func (r *LiveRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// CloseAll closes every registered channel.
func (r *LiveRegistry) CloseAll() {
	r.mu.Lock()
	entries := r.channels
	r.channels = make(map[string]*liveEntry)
	r.mu.Unlock()

	for id, entry := range entries {
		r.closeEntry(id, entry, "shutdown")
	}
}

func (r *LiveRegistry) deliver(ctx context.Context, jobID string, entry *liveEntry, job *model.Job) {
	if !job.Status.Terminal() {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.delivered {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sendTimeout)
	defer cancel()

	if err := entry.ch.Send(sendCtx, model.NewLiveMessage(*job)); err != nil {
		r.logger.InfoContext(ctx, "live push failed, dropping channel", "job_id", jobID, "error", err)
		r.remove(jobID, entry)
		return
	}
	entry.delivered = true
	r.logger.DebugContext(ctx, "live push delivered", "job_id", jobID, "status", job.Status)
}

func (r *LiveRegistry) remove(jobID string, entry *liveEntry) {
	r.mu.Lock()
	current, ok := r.channels[jobID]
	if ok && current == entry {
		delete(r.channels, jobID)
	}
	r.mu.Unlock()

	if ok && current == entry {
		r.closeEntry(jobID, entry, "removed")
	}
}

func (r *LiveRegistry) closeEntry(jobID string, entry *liveEntry, reason string) {
	if err := entry.ch.Close(); err != nil {
		r.logger.Debug("close live channel", "job_id", jobID, "reason", reason, "error", err)
	}
}
