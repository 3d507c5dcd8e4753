package jobrunner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/testutil"
)

// memRepo is an in-memory job store whose ClaimNext is atomic under its mutex.
type memRepo struct {
	mu      sync.Mutex
	order   []string
	jobs    map[string]*model.Job
	claims  map[string]int
	history map[string][]model.JobStatus
}

func newMemRepo(n int) *memRepo {
	r := &memRepo{
		jobs:    make(map[string]*model.Job),
		claims:  make(map[string]int),
		history: make(map[string][]model.JobStatus),
	}
	for i := range n {
		id := fmt.Sprintf("job-%02d", i)
		r.order = append(r.order, id)
		r.jobs[id] = &model.Job{ID: id, URL: fmt.Sprintf("https://example.com/%d.pdf", i), Status: model.JobStatusPending}
		r.history[id] = []model.JobStatus{model.JobStatusPending}
	}
	return r
}

func (r *memRepo) Create(context.Context, *model.CreateJobRequest) (*model.Job, error) {
	return nil, fmt.Errorf("not supported")
}

func (r *memRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memRepo) ClaimNext(context.Context) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		j := r.jobs[id]
		if j.Status == model.JobStatusPending {
			r.transition(j, model.JobStatusProcessing)
			r.claims[id]++
			cp := *j
			return &cp, nil
		}
	}
	return nil, model.ErrNoJobsAvailable
}

func (r *memRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *memRepo) SetExtraction(context.Context, string, model.Extraction) error { return nil }

func (r *memRepo) Complete(_ context.Context, id string, d model.Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j.Status != model.JobStatusProcessing {
		return model.ErrInvalidTransition
	}
	j.Digest = &d
	r.transition(j, model.JobStatusCompleted)
	return nil
}

func (r *memRepo) Fail(_ context.Context, id, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j.Status != model.JobStatusProcessing {
		return model.ErrInvalidTransition
	}
	j.ErrorMessage = &msg
	r.transition(j, model.JobStatusFailed)
	return nil
}

func (r *memRepo) ListCompleted(context.Context, model.JobListOptions) ([]*model.Job, error) {
	return nil, nil
}

func (r *memRepo) List(context.Context, model.JobListOptions) ([]*model.Job, error) { return nil, nil }

func (r *memRepo) Stats(context.Context) (*model.JobStats, error) { return &model.JobStats{}, nil }

// caller holds r.mu.
func (r *memRepo) transition(j *model.Job, next model.JobStatus) {
	j.Status = next
	r.history[j.ID] = append(r.history[j.ID], next)
}

func (r *memRepo) terminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.Status.Terminal() {
			n++
		}
	}
	return n
}

type fakeExtractor struct{ failURL string }

func (f fakeExtractor) Extract(_ context.Context, url string) (*model.Extraction, error) {
	if url == f.failURL {
		return nil, model.NewStageError("extract", model.ErrExtractionEmpty, nil)
	}
	return &model.Extraction{Text: "text of " + url, Method: model.ExtractionDirect}, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(context.Context, model.Extraction) (*model.Digest, error) {
	time.Sleep(2 * time.Millisecond)
	d := testutil.SampleDigest()
	return &d, nil
}

func TestRun_ConcurrentWorkersClaimEachJobOnce(t *testing.T) {
	repo := newMemRepo(20)
	r, err := NewRunner(RunnerOptions{
		Jobs:       repo,
		Extractor:  fakeExtractor{failURL: "https://example.com/3.pdf"},
		Summarizer: fakeSummarizer{},
		Notifier:   stubNotifier{},
		Config:     config.WorkerConfig{Concurrency: 4, IdleInterval: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.terminalCount() == 20 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for id, n := range repo.claims {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
	for id, seq := range repo.history {
		require.Len(t, seq, 3, id)
		assert.Equal(t, model.JobStatusPending, seq[0])
		assert.Equal(t, model.JobStatusProcessing, seq[1])
		if id == "job-03" {
			assert.Equal(t, model.JobStatusFailed, seq[2])
			assert.Nil(t, repo.jobs[id].Digest)
			require.NotNil(t, repo.jobs[id].ErrorMessage)
			continue
		}
		assert.Equal(t, model.JobStatusCompleted, seq[2])
		assert.Nil(t, repo.jobs[id].ErrorMessage)
		assert.True(t, repo.jobs[id].Digest.Complete())
	}
}

type wakeNotifier struct{ ch chan struct{} }

func (w wakeNotifier) Subscribe() (func(), <-chan struct{}) { return func() {}, w.ch }
func (wakeNotifier) StopAll()                               {}

func TestRun_WakesOnNotification(t *testing.T) {
	repo := newMemRepo(0)
	wake := wakeNotifier{ch: make(chan struct{}, 1)}
	r, err := NewRunner(RunnerOptions{
		Jobs:       repo,
		Extractor:  fakeExtractor{},
		Summarizer: fakeSummarizer{},
		Notifier:   wake,
		Config:     config.WorkerConfig{IdleInterval: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	repo.mu.Lock()
	repo.order = append(repo.order, "late")
	repo.jobs["late"] = &model.Job{ID: "late", URL: "https://example.com/late.pdf", Status: model.JobStatusPending}
	repo.mu.Unlock()
	wake.ch <- struct{}{}

	require.Eventually(t, func() bool { return repo.terminalCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

type brokenStore struct{ *memRepo }

func (b brokenStore) Complete(context.Context, string, model.Digest) error {
	return fmt.Errorf("disk full")
}

func TestRun_StopsWhenTerminalWriteFails(t *testing.T) {
	repo := brokenStore{newMemRepo(1)}
	r, err := NewRunner(RunnerOptions{
		Jobs:       repo,
		Extractor:  fakeExtractor{},
		Summarizer: fakeSummarizer{},
		Notifier:   stubNotifier{},
		Config:     config.WorkerConfig{Concurrency: 2, IdleInterval: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrStoreWrite)
}
