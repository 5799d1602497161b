package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/cache"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// ErrUnknownTool is returned by Call when name has no registered handler;
// dispatchers map it onto the JSON-RPC method-not-found code.
var ErrUnknownTool = errors.New("unknown tool")

// JobEnqueuer hands a freshly built Job off to the queue; jobqueue.Processor
// satisfies this.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *domain.Job) error
}

// ToolRegistry implements the standard tool set over the repository layer:
// execute/list/inspect tasks, task CRUD with validation, and execution
// lookup. It is the concrete thing tools/call dispatches into.
type ToolRegistry struct {
	tasks    repository.TaskRepository
	execs    repository.ExecutionRepository
	jobs     JobEnqueuer
	cache    *cache.Cache // may be nil
	scope    ToolScope
	handlers map[string]toolHandlerFunc
}

type toolHandlerFunc func(ctx context.Context, args json.RawMessage) (ToolCallResult, error)

func NewToolRegistry(tasks repository.TaskRepository, execs repository.ExecutionRepository, jobs JobEnqueuer, cch *cache.Cache) *ToolRegistry {
	return NewScopedToolRegistry(tasks, execs, jobs, cch, NewToolScope("", false))
}

// NewScopedToolRegistry builds a ToolRegistry whose tools/list output and
// tools/call acceptance are filtered by scope, hiding destructive tools
// outside local development.
func NewScopedToolRegistry(tasks repository.TaskRepository, execs repository.ExecutionRepository, jobs JobEnqueuer, cch *cache.Cache, scope ToolScope) *ToolRegistry {
	r := &ToolRegistry{tasks: tasks, execs: execs, jobs: jobs, cache: cch, scope: scope}
	r.handlers = map[string]toolHandlerFunc{
		"execute_task":  r.executeTask,
		"list_tasks":    r.listTasks,
		"get_task_info": r.getTaskInfo,
		"create_task":   r.createTask,
		"edit_task":     r.editTask,
		"delete_task":   r.deleteTask,
		"validate_task": r.validateTask,
		"get_execution": r.getExecution,
	}
	return r
}

// Descriptors returns the tools/list payload, filtered to the tools this
// registry's ToolScope allows.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	all := r.allDescriptors()
	out := make([]ToolDescriptor, 0, len(all))
	for _, d := range all {
		if r.scope.Allows(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

func (r *ToolRegistry) allDescriptors() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        "execute_task",
			Description: "Queue a task for execution with JSON input and return the new job's id.",
			InputSchema: objectSchema(map[string]any{
				"task_id":  stringProp("UUID of the task to run"),
				"input":    map[string]any{"type": "object", "description": "JSON input matching the task's input schema"},
				"priority": enumProp("Dequeue priority", "low", "normal", "high", "urgent"),
			}, "task_id", "input"),
		},
		{
			Name:        "list_tasks",
			Description: "List registered tasks, optionally filtered by enabled status.",
			InputSchema: objectSchema(map[string]any{
				"enabled_only": map[string]any{"type": "boolean", "description": "Only return enabled tasks"},
			}),
		},
		{
			Name:        "get_task_info",
			Description: "Get the full definition of one task version.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("UUID of the task"),
				"version": stringProp("Task version"),
			}, "task_id", "version"),
		},
		{
			Name:        "create_task",
			Description: "Register a new task version.",
			InputSchema: objectSchema(map[string]any{
				"name":          stringProp("Task name"),
				"version":       stringProp("Task version"),
				"script":        stringProp("JavaScript source"),
				"input_schema":  map[string]any{"type": "object"},
				"output_schema": map[string]any{"type": "object"},
				"deterministic": map[string]any{"type": "boolean"},
			}, "name", "version", "script"),
		},
		{
			Name:        "edit_task",
			Description: "Update an existing task version's content; invalidates any cached results for it.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("UUID of the task"),
				"version": stringProp("Task version"),
				"script":  stringProp("New JavaScript source"),
			}, "task_id", "version"),
		},
		{
			Name:        "delete_task",
			Description: "Delete a task version; fails if executions reference it.",
			InputSchema: objectSchema(map[string]any{
				"task_id": stringProp("UUID of the task"),
				"version": stringProp("Task version"),
			}, "task_id", "version"),
		},
		{
			Name:        "validate_task",
			Description: "Validate a task's script and schemas without registering it.",
			InputSchema: objectSchema(map[string]any{
				"script":        stringProp("JavaScript source"),
				"input_schema":  map[string]any{"type": "object"},
				"output_schema": map[string]any{"type": "object"},
			}, "script"),
		},
		{
			Name:        "get_execution",
			Description: "Get the status and result of one execution by id.",
			InputSchema: objectSchema(map[string]any{
				"execution_id": stringProp("UUID of the execution"),
			}, "execution_id"),
		},
	}
}

func (r *ToolRegistry) Call(ctx context.Context, name string, args json.RawMessage) (ToolCallResult, error) {
	handler, ok := r.handlers[name]
	if !ok || !r.scope.Allows(name) {
		return ToolCallResult{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return handler(ctx, args)
}

func (r *ToolRegistry) executeTask(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	var params struct {
		TaskID   string          `json:"task_id"`
		Input    json.RawMessage `json:"input"`
		Priority string          `json:"priority"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	taskID, err := uuid.Parse(params.TaskID)
	if err != nil {
		return errorResult("invalid task_id: " + err.Error()), nil
	}

	job := domain.NewJob(taskID, parsePriority(params.Priority), params.Input)
	if err := r.jobs.Enqueue(ctx, job); err != nil {
		return errorResult("failed to enqueue job: " + err.Error()), nil
	}
	payload, _ := json.Marshal(map[string]string{"job_id": job.JobID.String(), "status": string(job.Status)})
	return textResult(string(payload)), nil
}

func parsePriority(s string) domain.JobPriority {
	switch s {
	case "low":
		return domain.PriorityLow
	case "high":
		return domain.PriorityHigh
	case "urgent":
		return domain.PriorityUrgent
	default:
		return domain.PriorityNormal
	}
}

func (r *ToolRegistry) listTasks(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	var params struct {
		EnabledOnly bool `json:"enabled_only"`
	}
	_ = json.Unmarshal(args, &params)

	var filters []repository.Filter
	if params.EnabledOnly {
		filters = append(filters, repository.Filter{Field: "enabled", Operator: repository.OpEq, Value: true})
	}
	page, err := r.tasks.List(ctx, filters, nil, repository.Pagination{Limit: 1000})
	if err != nil {
		return errorResult("failed to list tasks: " + err.Error()), nil
	}
	payload, _ := json.Marshal(page.Items)
	return textResult(string(payload)), nil
}

func (r *ToolRegistry) getTaskInfo(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	taskID, version, ok, result := parseTaskRef(args)
	if !ok {
		return result, nil
	}
	task, err := r.tasks.FindByID(ctx, taskID, version)
	if err != nil {
		return errorResult("task not found: " + err.Error()), nil
	}
	payload, _ := json.Marshal(task)
	return textResult(string(payload)), nil
}

func (r *ToolRegistry) createTask(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	var params struct {
		Name          string          `json:"name"`
		Version       string          `json:"version"`
		Script        string          `json:"script"`
		InputSchema   json.RawMessage `json:"input_schema"`
		OutputSchema  json.RawMessage `json:"output_schema"`
		Deterministic bool            `json:"deterministic"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	if !ValidTaskName(params.Name) {
		return errorResult("invalid task name"), nil
	}

	task := domain.NewTaskDefinition(params.Name, params.Version, "mcp")
	task.Script = params.Script
	task.InputSchema = params.InputSchema
	task.OutputSchema = params.OutputSchema
	task.Deterministic = params.Deterministic

	created, err := r.tasks.Create(ctx, task)
	if err != nil {
		return errorResult("failed to create task: " + err.Error()), nil
	}
	payload, _ := json.Marshal(created)
	return textResult(string(payload)), nil
}

func (r *ToolRegistry) editTask(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	taskID, version, ok, result := parseTaskRef(args)
	if !ok {
		return result, nil
	}
	var params struct {
		Script string `json:"script"`
	}
	_ = json.Unmarshal(args, &params)

	task, err := r.tasks.FindByID(ctx, taskID, version)
	if err != nil {
		return errorResult("task not found: " + err.Error()), nil
	}
	if params.Script != "" {
		task.Script = params.Script
	}
	task.Touch()

	updated, err := r.tasks.Update(ctx, task)
	if err != nil {
		return errorResult("failed to update task: " + err.Error()), nil
	}
	if r.cache != nil {
		r.cache.InvalidateTask(taskID, version)
	}
	payload, _ := json.Marshal(updated)
	return textResult(string(payload)), nil
}

func (r *ToolRegistry) deleteTask(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	taskID, version, ok, result := parseTaskRef(args)
	if !ok {
		return result, nil
	}
	deleted, err := r.tasks.Delete(ctx, taskID, version)
	if err != nil {
		return errorResult("failed to delete task: " + err.Error()), nil
	}
	if !deleted {
		return errorResult("task has dependent executions and cannot be deleted"), nil
	}
	if r.cache != nil {
		r.cache.InvalidateTask(taskID, version)
	}
	return textResult(`{"deleted":true}`), nil
}

func (r *ToolRegistry) validateTask(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	var params struct {
		Script       string          `json:"script"`
		InputSchema  json.RawMessage `json:"input_schema"`
		OutputSchema json.RawMessage `json:"output_schema"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	if params.Script == "" {
		return errorResult("script must not be empty"), nil
	}
	if len(params.InputSchema) > 0 && !json.Valid(params.InputSchema) {
		return errorResult("input_schema is not valid JSON"), nil
	}
	if len(params.OutputSchema) > 0 && !json.Valid(params.OutputSchema) {
		return errorResult("output_schema is not valid JSON"), nil
	}
	return textResult(`{"valid":true}`), nil
}

func (r *ToolRegistry) getExecution(ctx context.Context, args json.RawMessage) (ToolCallResult, error) {
	var params struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	executionID, err := uuid.Parse(params.ExecutionID)
	if err != nil {
		return errorResult("invalid execution_id: " + err.Error()), nil
	}
	exec, err := r.execs.FindByID(ctx, executionID)
	if err != nil {
		return errorResult("execution not found: " + err.Error()), nil
	}
	payload, _ := json.Marshal(exec)
	return textResult(string(payload)), nil
}

func parseTaskRef(args json.RawMessage) (uuid.UUID, string, bool, ToolCallResult) {
	var params struct {
		TaskID  string `json:"task_id"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return uuid.UUID{}, "", false, errorResult("invalid arguments: " + err.Error())
	}
	taskID, err := uuid.Parse(params.TaskID)
	if err != nil {
		return uuid.UUID{}, "", false, errorResult("invalid task_id: " + err.Error())
	}
	return taskID, params.Version, true, ToolCallResult{}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}
