package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
)

func newTestExecutor(t *testing.T) *GojaExecutor {
	t.Helper()
	cfg := config.ExecutorConfig{}
	cfg.SetDefaults()
	cfg.DefaultTimeout = 2 * time.Second
	return NewExecutor(cfg)
}

func scriptTask(script string) *domain.TaskDefinition {
	task := domain.NewTaskDefinition("sample", "1.0.0", "test")
	task.Script = script
	return task
}

func TestGojaExecutor_ExecuteTask_ReturnsOutput(t *testing.T) {
	e := newTestExecutor(t)
	task := scriptTask(`function run(input) { return { doubled: input.n * 2 }; }`)

	result, err := e.ExecuteTask(context.Background(), task, json.RawMessage(`{"n":21}`))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.JSONEq(t, `{"doubled":42}`, string(result.Output))
}

func TestGojaExecutor_Execute_SatisfiesJobqueueExecutorInterface(t *testing.T) {
	e := newTestExecutor(t)
	task := scriptTask(`function run(input) { return input; }`)

	out, err := e.Execute(context.Background(), task, json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestGojaExecutor_ScriptThrowIsAFailure(t *testing.T) {
	e := newTestExecutor(t)
	task := scriptTask(`function run(input) { throw new Error("boom"); }`)

	result, err := e.ExecuteTask(context.Background(), task, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "boom")
}

func TestGojaExecutor_MissingRunFunctionIsAFailure(t *testing.T) {
	e := newTestExecutor(t)
	task := scriptTask(`var notRun = function(input) { return input; };`)

	result, err := e.ExecuteTask(context.Background(), task, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "run(input)")
}

func TestGojaExecutor_TimeoutCancelsRunawayScript(t *testing.T) {
	e := newTestExecutor(t)
	task := scriptTask(`function run(input) { while (true) {} }`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := e.ExecuteTask(ctx, task, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, result.Status)
}

func TestGojaExecutor_ConsoleLogsAreCaptured(t *testing.T) {
	e := newTestExecutor(t)
	task := scriptTask(`function run(input) { console.log("hello", 42); return null; }`)

	result, err := e.ExecuteTask(context.Background(), task, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Contains(t, result.Logs[0], "hello 42")
}

func TestGojaExecutor_MetricsTrackExecutions(t *testing.T) {
	e := newTestExecutor(t)
	ok := scriptTask(`function run(input) { return input; }`)
	bad := scriptTask(`function run(input) { throw new Error("x"); }`)

	_, err := e.ExecuteTask(context.Background(), ok, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = e.ExecuteTask(context.Background(), bad, json.RawMessage(`{}`))
	require.NoError(t, err)

	m := e.Metrics()
	assert.Equal(t, uint64(1), m.TasksExecuted)
	assert.Equal(t, uint64(1), m.TasksFailed)
	assert.Equal(t, int64(0), m.TasksRunning)
}

func TestGojaExecutor_HealthCheckPasses(t *testing.T) {
	e := newTestExecutor(t)
	require.NoError(t, e.HealthCheck(context.Background()))
}

func TestGojaExecutor_ShutdownDrainsAndThenRefuses(t *testing.T) {
	e := newTestExecutor(t)
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Error(t, e.HealthCheck(context.Background()))
}
