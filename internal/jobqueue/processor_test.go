package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/cache"
	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/output"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return l
}

// fakeJobRepo is an in-memory JobRepository sufficient to exercise the poll
// loop's claim/complete/fail cycle without a database.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (f *fakeJobRepo) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.JobID] = job
	return job, nil
}

func (f *fakeJobRepo) FindByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, errFakeNotFound
	}
	return j, nil
}

func (f *fakeJobRepo) FindReadyForProcessing(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Job
	for _, j := range f.jobs {
		if j.Eligible(now) {
			out = append(out, j)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobRepo) ClaimForProcessing(ctx context.Context, jobID, executionID uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || !j.Status.Eligible() {
		return false, nil
	}
	j.MarkProcessing(at, executionID)
	return true, nil
}

func (f *fakeJobRepo) MarkCompleted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.MarkCompleted(at)
	return nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, jobID uuid.UUID, at time.Time, message string) (repository.WillRetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Fail(at, message)
	if j.Status == domain.JobRetrying {
		return repository.WillRetry{Retry: true, ProcessAt: j.ProcessAt}, nil
	}
	return repository.WillRetry{Retry: false}, nil
}

func (f *fakeJobRepo) Cancel(ctx context.Context, jobID uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[jobID].Cancel(at), nil
}

func (f *fakeJobRepo) status(jobID uuid.UUID) domain.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[jobID].Status
}

var _ repository.JobRepository = (*fakeJobRepo)(nil)

// fakeExecutionRepo is an in-memory ExecutionRepository.
type fakeExecutionRepo struct {
	mu    sync.Mutex
	execs map[uuid.UUID]*domain.Execution
}

func newFakeExecutionRepo() *fakeExecutionRepo {
	return &fakeExecutionRepo{execs: make(map[uuid.UUID]*domain.Execution)}
}

func (f *fakeExecutionRepo) Create(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[exec.ExecutionID] = exec
	return exec, nil
}

func (f *fakeExecutionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return e, nil
}

func (f *fakeExecutionRepo) List(ctx context.Context, filters []repository.Filter, sort []repository.Sort, page repository.Pagination) (repository.Page[*domain.Execution], error) {
	return repository.Page[*domain.Execution]{}, nil
}

func (f *fakeExecutionRepo) MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[id].MarkStarted(at)
	return nil
}

func (f *fakeExecutionRepo) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, output []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[id].MarkCompleted(at, output)
	return nil
}

func (f *fakeExecutionRepo) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, message string, details []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[id].MarkFailed(at, message, details)
	return nil
}

func (f *fakeExecutionRepo) status(id uuid.UUID) domain.ExecutionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execs[id].Status
}

var _ repository.ExecutionRepository = (*fakeExecutionRepo)(nil)

var errFakeNotFound = errors.New("not found")
var errFakeExecFailure = errors.New("script threw")

// fakeTaskLookup returns a fixed task regardless of ID.
type fakeTaskLookup struct {
	task *domain.TaskDefinition
}

func (f *fakeTaskLookup) FindEnabled(ctx context.Context, taskID uuid.UUID) (*domain.TaskDefinition, error) {
	return f.task, nil
}

// fakeExecutor runs a scripted function instead of a JS runtime.
type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	run   func(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.run(ctx, task, input)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testProcessor(t *testing.T, exec *fakeExecutor, task *domain.TaskDefinition, cch *cache.Cache) (*Processor, *fakeJobRepo, *fakeExecutionRepo) {
	t.Helper()
	jobs := newFakeJobRepo()
	execs := newFakeExecutionRepo()
	outCfg := config.OutputConfig{}
	outCfg.SetDefaults()
	deliv := output.NewDispatcher(outCfg, testLogger(t))

	cfg := config.JobQueueConfig{PollInterval: 20 * time.Millisecond, BatchSize: 10, MaxBackoff: time.Second}
	p := New(cfg, jobs, execs, &fakeTaskLookup{task: task}, exec, cch, deliv, testLogger(t))
	return p, jobs, execs
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestProcessor_PollLoop_ExecutesAndCompletesJob(t *testing.T) {
	task := domain.NewTaskDefinition("greet", "1.0.0", "filesystem")
	exec := &fakeExecutor{run: func(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"greeting":"hi"}`), nil
	}}
	p, jobs, execs := testProcessor(t, exec, task, nil)

	job := domain.NewJob(task.TaskID, domain.PriorityNormal, json.RawMessage(`{"name":"ray"}`))
	_, err := jobs.Create(context.Background(), job)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	waitUntil(t, 2*time.Second, func() bool { return jobs.status(job.JobID) == domain.JobCompleted })
	require.Equal(t, 1, exec.callCount())
	assert.Equal(t, domain.ExecutionCompleted, execs.status(*job.ExecutionID))
}

func TestProcessor_FailedExecutionRequeuesUnderMaxRetries(t *testing.T) {
	task := domain.NewTaskDefinition("flaky", "1.0.0", "filesystem")
	exec := &fakeExecutor{run: func(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error) {
		return nil, errFakeExecFailure
	}}
	p, jobs, _ := testProcessor(t, exec, task, nil)

	job := domain.NewJob(task.TaskID, domain.PriorityNormal, json.RawMessage(`{}`))
	_, err := jobs.Create(context.Background(), job)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	waitUntil(t, 2*time.Second, func() bool { return jobs.status(job.JobID) == domain.JobRetrying })
	jobs.mu.Lock()
	retryCount := jobs.jobs[job.JobID].RetryCount
	jobs.mu.Unlock()
	assert.Equal(t, 1, retryCount)
}

func TestProcessor_CacheableTask_SecondRunServedFromCache(t *testing.T) {
	task := domain.NewTaskDefinition("deterministic", "1.0.0", "filesystem")
	task.Deterministic = true
	exec := &fakeExecutor{run: func(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"computed":true}`), nil
	}}

	log := testLogger(t)
	cacheCfg := config.CacheConfig{Enabled: true, MaxEntries: 100, MaxResultSize: 1 << 20, TTL: time.Hour, CacheOnlySuccess: true}
	cch := cache.New(cacheCfg, log)

	p, jobs, _ := testProcessor(t, exec, task, cch)

	input := json.RawMessage(`{"x":1}`)
	job1 := domain.NewJob(task.TaskID, domain.PriorityNormal, input)
	_, err := jobs.Create(context.Background(), job1)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	waitUntil(t, 2*time.Second, func() bool { return jobs.status(job1.JobID) == domain.JobCompleted })
	assert.Equal(t, 1, exec.callCount())

	job2 := domain.NewJob(task.TaskID, domain.PriorityNormal, input)
	_, err = jobs.Create(context.Background(), job2)
	require.NoError(t, err)

	waitUntil(t, 2*time.Second, func() bool { return jobs.status(job2.JobID) == domain.JobCompleted })
	assert.Equal(t, 1, exec.callCount(), "second identical job should be served from the result cache, not re-executed")
}

func TestProcessor_Stop_CancelsInFlightJobContext(t *testing.T) {
	task := domain.NewTaskDefinition("slow", "1.0.0", "filesystem")
	started := make(chan struct{})
	exec := &fakeExecutor{run: func(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p, jobs, _ := testProcessor(t, exec, task, nil)

	job := domain.NewJob(task.TaskID, domain.PriorityNormal, json.RawMessage(`{}`))
	_, err := jobs.Create(context.Background(), job)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	<-started
	p.Stop()

	waitUntil(t, time.Second, func() bool {
		st := jobs.status(job.JobID)
		return st == domain.JobRetrying || st == domain.JobFailed
	})
}
