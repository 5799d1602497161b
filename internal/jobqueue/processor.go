// Package jobqueue runs the poll loop that claims eligible Jobs and drives
// them through execution, result caching and output delivery. Adapted from
// crawler/internal/job/db_scheduler.go's immediate-job processor: the same
// ticking poll + activeJobs cancellation-map shape, retargeted from crawl
// dispatch to task execution and generalized from a single in-process queue
// to the serializable-claim dequeue a shared store requires.
package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/cache"
	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/output"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// TaskLookup resolves the enabled task a Job targets. A Job carries only a
// TaskID (tasks are versioned, but the queue always runs the task's current
// enabled version), so this is satisfied by a small repository.Factory-backed
// adapter rather than by TaskRepository directly.
type TaskLookup interface {
	FindEnabled(ctx context.Context, taskID uuid.UUID) (*domain.TaskDefinition, error)
}

// Processor polls JobRepository for eligible jobs, claims them, executes
// them via an Executor, delivers output to each configured destination and
// records the outcome. One Processor should run per process; concurrent
// processes claiming against the same store race safely because
// ClaimForProcessing is a serializable compare-and-swap.
type Processor struct {
	cfg    config.JobQueueConfig
	jobs   repository.JobRepository
	execs  repository.ExecutionRepository
	tasks  TaskLookup
	exec   Executor
	cache  *cache.Cache
	deliv  *output.Dispatcher
	log    logger.Logger

	activeMu sync.Mutex
	active   map[uuid.UUID]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Processor. cch may be nil, which disables result caching
// regardless of a task's Cacheable() status.
func New(
	cfg config.JobQueueConfig,
	jobs repository.JobRepository,
	execs repository.ExecutionRepository,
	tasks TaskLookup,
	exec Executor,
	cch *cache.Cache,
	deliv *output.Dispatcher,
	log logger.Logger,
) *Processor {
	return &Processor{
		cfg:    cfg,
		jobs:   jobs,
		execs:  execs,
		tasks:  tasks,
		exec:   exec,
		cache:  cch,
		deliv:  deliv,
		log:    log,
		active: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Enqueue implements scheduler.JobInjector so the scheduler can hand newly
// ticked jobs straight to the store this Processor polls.
func (p *Processor) Enqueue(ctx context.Context, job *domain.Job) error {
	_, err := p.jobs.Create(ctx, job)
	return err
}

// Start begins the poll loop. Call Stop to drain it, cancelling in-flight
// jobs cooperatively.
func (p *Processor) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.pollLoop()
	return nil
}

// Stop cancels every tracked in-flight job and waits for the poll loop and
// all dispatched executions to return.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.activeMu.Lock()
	for id, cancel := range p.active {
		p.log.Info("cancelling in-flight job", logger.String("job_id", id.String()))
		cancel()
	}
	p.activeMu.Unlock()
	p.wg.Wait()
}

func (p *Processor) pollLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	backoff := p.cfg.PollInterval
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n, err := p.pollOnce(p.ctx)
			if err != nil {
				p.log.Error("poll failed", logger.Error(err))
				backoff = nextBackoff(backoff, p.cfg.MaxBackoff)
				ticker.Reset(backoff)
				continue
			}
			if backoff != p.cfg.PollInterval {
				backoff = p.cfg.PollInterval
				ticker.Reset(backoff)
			}
			if n > 0 {
				p.log.Debug("dispatched jobs", logger.Int("count", n))
			}
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// pollOnce fetches one batch of ready jobs, claims each and dispatches the
// winners; it returns the number successfully claimed.
func (p *Processor) pollOnce(ctx context.Context) (int, error) {
	ready, err := p.jobs.FindReadyForProcessing(ctx, time.Now().UTC(), p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, job := range ready {
		executionID := uuid.New()
		won, err := p.jobs.ClaimForProcessing(ctx, job.JobID, executionID, time.Now().UTC())
		if err != nil {
			p.log.Error("claim failed", logger.String("job_id", job.JobID.String()), logger.Error(err))
			continue
		}
		if !won {
			continue
		}
		claimed++
		job.MarkProcessing(time.Now().UTC(), executionID)
		p.dispatch(job, executionID)
	}
	return claimed, nil
}

// dispatch runs one claimed job on its own goroutine, tracked in p.active so
// Stop can cancel it cooperatively.
func (p *Processor) dispatch(job *domain.Job, executionID uuid.UUID) {
	jobCtx, cancel := context.WithCancel(p.ctx)
	if p.cfg.ExecutorTimeout > 0 {
		var timeoutCancel context.CancelFunc
		jobCtx, timeoutCancel = context.WithTimeout(jobCtx, p.cfg.ExecutorTimeout)
		prevCancel := cancel
		cancel = func() { timeoutCancel(); prevCancel() }
	}

	p.activeMu.Lock()
	p.active[job.JobID] = cancel
	p.activeMu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.activeMu.Lock()
			delete(p.active, job.JobID)
			p.activeMu.Unlock()
			cancel()
		}()
		p.runJob(jobCtx, job, executionID)
	}()
}

// runJob executes one claimed job: create its Execution row, resolve and run
// the task (through the cache when eligible), record the outcome and
// deliver output, then settle the job's terminal/retry status.
func (p *Processor) runJob(ctx context.Context, job *domain.Job, executionID uuid.UUID) {
	log := p.log.With(logger.String("job_id", job.JobID.String()), logger.String("execution_id", executionID.String()))

	exec := domain.NewExecution(job.TaskID, job.Input)
	exec.ExecutionID = executionID
	exec.QueuedAt = job.QueuedAt
	if _, err := p.execs.Create(ctx, exec); err != nil {
		log.Error("failed to record execution", logger.Error(err))
		p.fail(ctx, job, "failed to record execution: "+err.Error())
		return
	}

	now := time.Now().UTC()
	if err := p.execs.MarkStarted(ctx, executionID, now); err != nil {
		log.Error("failed to mark execution started", logger.Error(err))
	}

	task, err := p.tasks.FindEnabled(ctx, job.TaskID)
	if err != nil {
		p.finishFailure(ctx, job, executionID, log, err)
		return
	}

	result, err := p.runTask(ctx, task, job.Input, executionID)
	if err != nil {
		p.finishFailure(ctx, job, executionID, log, err)
		return
	}

	if err := p.execs.MarkCompleted(ctx, executionID, time.Now().UTC(), result.Output); err != nil {
		log.Error("failed to mark execution completed", logger.Error(err))
	}

	if len(job.OutputDestinations) > 0 {
		vars := output.BuildVariables(
			job.JobID.String(), executionID.String(), task.TaskID.String(), task.Name, task.Version, "", time.Now().UTC(),
		)
		for _, r := range p.deliv.DeliverAll(ctx, job.OutputDestinations, result.Output, vars) {
			if r.Err != nil {
				log.Error("output delivery failed", logger.String("destination", r.Kind), logger.Error(r.Err))
			}
		}
	}

	if err := p.jobs.MarkCompleted(ctx, job.JobID, time.Now().UTC()); err != nil {
		log.Error("failed to mark job completed", logger.Error(err))
	}
}

// taskRunResult is the outcome of one task execution, whether served fresh
// or from the result cache.
type taskRunResult struct {
	Output json.RawMessage
}

// runTask executes task against input, consulting the result cache first
// when the task is cacheable. A cached failure is replayed as an error so
// callers don't need a second success/failure branch.
func (p *Processor) runTask(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage, executionID uuid.UUID) (taskRunResult, error) {
	if p.cache == nil || !task.Cacheable() {
		return p.execute(ctx, task, input)
	}

	key, err := cache.Key(task.TaskID, task.Version, input)
	if err != nil {
		return p.execute(ctx, task, input)
	}

	cached, err := p.cache.GetOrFill(ctx, key, func(ctx context.Context) (domain.CachedResult, error) {
		start := time.Now()
		result, execErr := p.execute(ctx, task, input)
		duration := time.Since(start).Milliseconds()
		if execErr != nil {
			return domain.NewCachedFailure(executionID, execErr.Error(), duration), nil
		}
		return domain.NewCachedSuccess(executionID, result.Output, duration), nil
	})
	if err != nil {
		return taskRunResult{}, err
	}
	if !cached.Success {
		return taskRunResult{}, errs.Server(nil, "cached task failure replayed: %s", cached.ErrorMessage)
	}
	return taskRunResult{Output: cached.Output}, nil
}

func (p *Processor) execute(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (taskRunResult, error) {
	out, err := p.exec.Execute(ctx, task, input)
	if err != nil {
		return taskRunResult{}, err
	}
	return taskRunResult{Output: out}, nil
}

// finishFailure records a failed Execution and applies the job's retry
// decision.
func (p *Processor) finishFailure(ctx context.Context, job *domain.Job, executionID uuid.UUID, log logger.Logger, cause error) {
	message := cause.Error()
	details, _ := json.Marshal(map[string]string{"category": string(errs.CategoryOf(cause))})
	if err := p.execs.MarkFailed(ctx, executionID, time.Now().UTC(), message, details); err != nil {
		log.Error("failed to mark execution failed", logger.Error(err))
	}
	p.fail(ctx, job, message)
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, message string) {
	retry, err := p.jobs.MarkFailed(ctx, job.JobID, time.Now().UTC(), message)
	if err != nil {
		p.log.Error("failed to record job failure", logger.String("job_id", job.JobID.String()), logger.Error(err))
		return
	}
	if retry.Retry {
		p.log.Info("job scheduled for retry", logger.String("job_id", job.JobID.String()))
	} else {
		p.log.Warn("job failed terminally", logger.String("job_id", job.JobID.String()), logger.String("error", message))
	}
}
