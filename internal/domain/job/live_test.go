package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/paper-digest/internal/domain/model"
)

type fakeChannel struct {
	mu      sync.Mutex
	sent    []model.LiveMessage
	sendErr error
	closed  int
}

func (f *fakeChannel) Send(_ context.Context, msg model.LiveMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) messages() []model.LiveMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LiveMessage(nil), f.sent...)
}

type fakeReader struct {
	mu   sync.Mutex
	jobs map[string]model.Job
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return &j, nil
}

func (f *fakeReader) set(j model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func newRegistry(t *testing.T, jobs ...model.Job) (*LiveRegistry, *fakeReader) {
	t.Helper()
	reader := &fakeReader{jobs: map[string]model.Job{}}
	for _, j := range jobs {
		reader.set(j)
	}
	reg, err := NewLiveRegistry(LiveRegistryOptions{Jobs: reader})
	require.NoError(t, err)
	return reg, reader
}

func completedJob(id string) model.Job {
	return model.Job{
		ID:     id,
		Status: model.JobStatusCompleted,
		Digest: &model.Digest{Title: "T", Summary: "S", Methodology: "M", Takeaways: []string{"a", "b", "c"}},
	}
}

func TestNewLiveRegistryRequiresReader(t *testing.T) {
	reg, err := NewLiveRegistry(LiveRegistryOptions{})
	require.ErrorIs(t, err, ErrJobReaderRequired)
	assert.Nil(t, reg)
}

func TestLiveRegistry_RegisterAfterCompletionPushesImmediately(t *testing.T) {
	reg, _ := newRegistry(t, completedJob("j1"))
	ch := &fakeChannel{}

	unregister, err := reg.Register(context.Background(), "j1", ch)
	require.NoError(t, err)
	defer unregister()

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.JobStatusCompleted, msgs[0].Status)
	assert.Equal(t, "T", msgs[0].Title)
	assert.Equal(t, []string{"a", "b", "c"}, msgs[0].Takeaways)
}

func TestLiveRegistry_NotifyPushesOnceOnTerminal(t *testing.T) {
	reg, reader := newRegistry(t, model.Job{ID: "j1", Status: model.JobStatusProcessing})
	ch := &fakeChannel{}

	unregister, err := reg.Register(context.Background(), "j1", ch)
	require.NoError(t, err)
	defer unregister()
	assert.Empty(t, ch.messages(), "non-terminal job must not push on register")

	msg := "The URL does not point to a PDF or HTML document."
	reader.set(model.Job{ID: "j1", Status: model.JobStatusFailed, ErrorMessage: &msg})

	ev := model.JobEvent{JobID: "j1", Status: model.JobStatusFailed}
	reg.Notify(context.Background(), ev)
	require.NoError(t, reg.PublishJobEvent(context.Background(), ev))

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.JobStatusFailed, msgs[0].Status)
	assert.Equal(t, msg, msgs[0].ErrorMessage)
	assert.Empty(t, msgs[0].Title)
}

func TestLiveRegistry_NotifyWithoutChannelIsDropped(t *testing.T) {
	reg, _ := newRegistry(t, completedJob("j1"))
	reg.Notify(context.Background(), model.JobEvent{JobID: "j1", Status: model.JobStatusCompleted})
	assert.Equal(t, 0, reg.Len())
}

func TestLiveRegistry_SendFailureRemovesChannel(t *testing.T) {
	reg, _ := newRegistry(t, completedJob("j1"))
	ch := &fakeChannel{sendErr: errors.New("broken pipe")}

	_, err := reg.Register(context.Background(), "j1", ch)
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 1, ch.closed)
}

func TestLiveRegistry_SecondRegistrationReplacesFirst(t *testing.T) {
	reg, _ := newRegistry(t, model.Job{ID: "j1", Status: model.JobStatusPending})
	first := &fakeChannel{}
	second := &fakeChannel{}

	unregisterFirst, err := reg.Register(context.Background(), "j1", first)
	require.NoError(t, err)
	unregisterSecond, err := reg.Register(context.Background(), "j1", second)
	require.NoError(t, err)

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, reg.Len())

	// A stale unregister must not evict the newer channel.
	unregisterFirst()
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 0, second.closed)

	unregisterSecond()
	unregisterSecond()
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 1, second.closed)
}

func TestLiveRegistry_RegisterUnknownJob(t *testing.T) {
	reg, _ := newRegistry(t)
	ch := &fakeChannel{}

	_, err := reg.Register(context.Background(), "missing", ch)
	require.ErrorIs(t, err, model.ErrJobNotFound)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 1, ch.closed)
}

func TestLiveRegistry_ConcurrentRegisterAndNotify(t *testing.T) {
	reg, _ := newRegistry(t, completedJob("j1"), completedJob("j2"))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		id := "j1"
		if i%2 == 0 {
			id = "j2"
		}
		go func() {
			defer wg.Done()
			unregister, err := reg.Register(context.Background(), id, &fakeChannel{})
			if err == nil {
				unregister()
			}
		}()
		go func() {
			defer wg.Done()
			reg.Notify(context.Background(), model.JobEvent{JobID: id, Status: model.JobStatusCompleted})
		}()
	}
	wg.Wait()

	reg.CloseAll()
	assert.Equal(t, 0, reg.Len())
}
