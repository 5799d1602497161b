// Package executor runs a TaskDefinition's JavaScript against an input
// inside an isolated goja.Runtime: one runtime per execution, bounded by a
// configurable concurrency limit and an enforced wall-clock timeout.
// Scripts define a global `function run(input) { ... }`; the executor
// invokes it and marshals whatever it returns back to JSON.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
)

// Status is the terminal outcome of one task run, per the execute_task
// wire contract (distinct from domain.ExecutionStatus, which also tracks
// the Pending/Running states a persisted Execution passes through).
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ExecutionResult is execute_task's return value.
type ExecutionResult struct {
	Output          json.RawMessage
	ExecutionTimeMs int64
	Logs            []string
	Status          Status
	ErrorMessage    string
}

// Metrics is metrics()'s return value.
type Metrics struct {
	TasksExecuted      uint64
	TasksFailed        uint64
	TasksRunning       int64
	AvgExecutionTimeMs float64
	ActiveWorkers      int
}

// GojaExecutor implements jobqueue.Executor (Execute) plus the richer
// execute_task/health_check/shutdown/metrics surface external collaborators
// (the MCP `execute_task` tool-call path, the `test` CLI command) use
// directly rather than through the job queue.
type GojaExecutor struct {
	cfg config.ExecutorConfig
	sem chan struct{}

	running         int64
	executed        uint64
	failed          uint64
	totalDurationMs int64

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewExecutor builds an executor bounded to cfg.MaxConcurrent simultaneous
// script runs.
func NewExecutor(cfg config.ExecutorConfig) *GojaExecutor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &GojaExecutor{
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		shutdown: make(chan struct{}),
	}
}

// Execute implements jobqueue.Executor: run the task and return its raw
// output, collapsing ExecutionResult's richer status into a plain error for
// non-Success outcomes.
func (e *GojaExecutor) Execute(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error) {
	result, err := e.ExecuteTask(ctx, task, input)
	if err != nil {
		return nil, err
	}
	switch result.Status {
	case StatusSuccess:
		return result.Output, nil
	case StatusCancelled:
		return nil, errs.Cancelled("task %s cancelled: %s", task.Name, result.ErrorMessage).WithRetryable(true)
	default:
		return nil, errs.Server(errors.New(result.ErrorMessage), "task %s failed", task.Name)
	}
}

// ExecuteTask runs task.Script's run(input) against input, honoring ctx
// cancellation/deadline and cfg.DefaultTimeout as a fallback ceiling.
func (e *GojaExecutor) ExecuteTask(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (ExecutionResult, error) {
	select {
	case <-e.shutdown:
		return ExecutionResult{}, errs.Server(nil, "executor is shut down")
	default:
	}
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ExecutionResult{}, errs.Cancelled("execution queue: %v", ctx.Err()).WithRetryable(false)
	}
	defer func() { <-e.sem }()

	atomic.AddInt64(&e.running, 1)
	defer atomic.AddInt64(&e.running, -1)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.cfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DefaultTimeout)
		defer cancel()
	}

	start := time.Now()
	result := e.run(ctx, task, input)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	atomic.AddInt64(&e.totalDurationMs, result.ExecutionTimeMs)
	if result.Status == StatusSuccess {
		atomic.AddUint64(&e.executed, 1)
	} else if result.Status == StatusFailed {
		atomic.AddUint64(&e.failed, 1)
	}
	return result, nil
}

// run performs the actual script compile+invoke on a dedicated goroutine so
// ctx cancellation can call rt.Interrupt without the caller blocking on a
// runaway script.
func (e *GojaExecutor) run(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) ExecutionResult {
	var logs []string
	rt := goja.New()
	registerConsole(rt, &logs)
	if e.cfg.FetchEnabled {
		registerFetch(rt, e.cfg.FetchTimeout)
	}

	done := make(chan ExecutionResult, 1)
	go func() {
		done <- runScript(rt, task, input, logs)
	}()

	select {
	case result := <-done:
		result.Logs = logs
		return result
	case <-ctx.Done():
		rt.Interrupt(ctx.Err())
		result := <-done // runScript always returns once interrupted
		result.Logs = logs
		if result.Status == StatusFailed {
			result.Status = StatusCancelled
			result.ErrorMessage = ctx.Err().Error()
		}
		return result
	}
}

func runScript(rt *goja.Runtime, task *domain.TaskDefinition, input json.RawMessage, logs []string) (result ExecutionResult) {
	result.Logs = logs
	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.ErrorMessage = fmt.Sprintf("script panicked: %v", r)
		}
	}()

	if _, err := rt.RunString(task.Script); err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = "script compile/run failed: " + err.Error()
		return result
	}

	runFn, ok := goja.AssertFunction(rt.Get("run"))
	if !ok {
		result.Status = StatusFailed
		result.ErrorMessage = "script does not define function run(input)"
		return result
	}

	var inputVal any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &inputVal); err != nil {
			result.Status = StatusFailed
			result.ErrorMessage = "invalid input JSON: " + err.Error()
			return result
		}
	}

	out, err := runFn(goja.Undefined(), rt.ToValue(inputVal))
	if err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = err.Error()
		return result
	}

	output, err := json.Marshal(out.Export())
	if err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = "failed to marshal output: " + err.Error()
		return result
	}

	result.Status = StatusSuccess
	result.Output = output
	return result
}

// HealthCheck reports whether the runtime can still compile and run a
// trivial script; a failure here means the goja package itself is broken,
// not that any particular task is.
func (e *GojaExecutor) HealthCheck(ctx context.Context) error {
	select {
	case <-e.shutdown:
		return errs.Server(nil, "executor is shut down")
	default:
	}
	rt := goja.New()
	if _, err := rt.RunString("(function(){ return 1; })()"); err != nil {
		return errs.Server(err, "executor health check failed")
	}
	return nil
}

// Shutdown waits for in-flight executions to drain (up to ctx's deadline)
// and refuses new ones thereafter.
func (e *GojaExecutor) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() { close(e.shutdown) })
	for {
		if atomic.LoadInt64(&e.running) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errs.Cancelled("shutdown: %d executions still running", atomic.LoadInt64(&e.running)).WithRetryable(false)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Metrics reports current counters.
func (e *GojaExecutor) Metrics() Metrics {
	executed := atomic.LoadUint64(&e.executed)
	failed := atomic.LoadUint64(&e.failed)
	total := executed + failed
	avg := 0.0
	if total > 0 {
		avg = float64(atomic.LoadInt64(&e.totalDurationMs)) / float64(total)
	}
	return Metrics{
		TasksExecuted:      executed,
		TasksFailed:        failed,
		TasksRunning:       atomic.LoadInt64(&e.running),
		AvgExecutionTimeMs: avg,
		ActiveWorkers:      e.cfg.MaxConcurrent,
	}
}
