package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// fakeTaskRepo and fakeExecRepo implement just enough of their interfaces
// for tools/list and tools/call to exercise real registry code; every
// method a test doesn't need still returns a well-typed zero/error so a
// compile-time interface assertion stays meaningful.
type fakeTaskRepo struct {
	tasks []*domain.TaskDefinition
}

func (f *fakeTaskRepo) Create(ctx context.Context, task *domain.TaskDefinition) (*domain.TaskDefinition, error) {
	f.tasks = append(f.tasks, task)
	return task, nil
}
func (f *fakeTaskRepo) Update(ctx context.Context, task *domain.TaskDefinition) (*domain.TaskDefinition, error) {
	return task, nil
}
func (f *fakeTaskRepo) FindByID(ctx context.Context, taskID uuid.UUID, version string) (*domain.TaskDefinition, error) {
	for _, t := range f.tasks {
		if t.TaskID == taskID && t.Version == version {
			return t, nil
		}
	}
	return nil, errs.NotFound("no such task")
}
func (f *fakeTaskRepo) FindByUUIDVersion(ctx context.Context, id uuid.UUID, version string) (*domain.TaskDefinition, error) {
	return f.FindByID(ctx, id, version)
}
func (f *fakeTaskRepo) List(ctx context.Context, filters []repository.Filter, sort []repository.Sort, page repository.Pagination) (repository.Page[*domain.TaskDefinition], error) {
	return repository.Page[*domain.TaskDefinition]{Items: f.tasks, Total: len(f.tasks)}, nil
}
func (f *fakeTaskRepo) Delete(ctx context.Context, taskID uuid.UUID, version string) (bool, error) {
	return true, nil
}
func (f *fakeTaskRepo) MarkValidated(ctx context.Context, taskID uuid.UUID, version string, at time.Time) error {
	return nil
}

var _ repository.TaskRepository = (*fakeTaskRepo)(nil)

type fakeExecRepo struct{}

func (fakeExecRepo) Create(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	return exec, nil
}
func (fakeExecRepo) FindByID(ctx context.Context, executionID uuid.UUID) (*domain.Execution, error) {
	return domain.NewExecution(uuid.New(), nil), nil
}
func (fakeExecRepo) List(ctx context.Context, filters []repository.Filter, sort []repository.Sort, page repository.Pagination) (repository.Page[*domain.Execution], error) {
	return repository.Page[*domain.Execution]{}, nil
}
func (fakeExecRepo) MarkStarted(ctx context.Context, executionID uuid.UUID, at time.Time) error {
	return nil
}
func (fakeExecRepo) MarkCompleted(ctx context.Context, executionID uuid.UUID, at time.Time, output []byte) error {
	return nil
}
func (fakeExecRepo) MarkFailed(ctx context.Context, executionID uuid.UUID, at time.Time, message string, details []byte) error {
	return nil
}

var _ repository.ExecutionRepository = (*fakeExecRepo)(nil)

type fakeJobEnqueuer struct{ jobs []*domain.Job }

func (f *fakeJobEnqueuer) Enqueue(ctx context.Context, job *domain.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func testDispatcher(t *testing.T) (*Dispatcher, *SessionManager) {
	t.Helper()
	log, err := logger.NewStderr("error")
	if err != nil {
		t.Fatalf("logger.NewStderr: %v", err)
	}
	sessions := NewSessionManager(time.Hour, 100)
	registry := NewToolRegistry(&fakeTaskRepo{}, fakeExecRepo{}, &fakeJobEnqueuer{}, nil)
	resources := NewResourceRegistry(&fakeTaskRepo{}, fakeExecRepo{})
	audit := NewAuditLogger(false, log)
	dispatcher := NewDispatcher(sessions, registry, resources, nil, nil, audit, log)
	return dispatcher, sessions
}

func jsonReq(id any, method string, params any) *Request {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
}

func TestDispatcher_RejectsMethodsBeforeInitialize(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "tools/list", nil), "")
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected an error response before initialize, got %+v", resp)
	}
	if resp.Error.Code != CodeNotInitialized {
		t.Fatalf("expected code %d, got %d", CodeNotInitialized, resp.Error.Code)
	}
}

func TestDispatcher_ToolsListSucceedsAfterInitializeWithoutInitializedNotification(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()

	initResp := dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{ProtocolVersion: protocolVersion}), "")
	if initResp == nil || initResp.Error != nil {
		t.Fatalf("initialize should succeed, got %+v", initResp)
	}

	// Deliberately skip notifications/initialized: it's optional and
	// tools/list must still succeed right after the initialize response.
	listResp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "tools/list", nil), "")
	if listResp == nil || listResp.Error != nil {
		t.Fatalf("tools/list should succeed without notifications/initialized, got %+v", listResp)
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(listResp.Result, &result); err != nil {
		t.Fatalf("unmarshal tools/list result: %v", err)
	}
	if len(result.Tools) == 0 {
		t.Fatal("expected a non-empty tool set")
	}
}

func TestDispatcher_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "nonexistent/method", nil), "")
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp)
	}
}

func TestDispatcher_ToolsCallUnknownToolReturnsMethodNotFound(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "tools/call", toolCallParams{Name: "does_not_exist", Arguments: json.RawMessage(`{}`)}), "")
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found for unknown tool, got %+v", resp)
	}
}

func TestDispatcher_ToolsCallExecuteTaskEnqueuesJob(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	taskID := uuid.New()
	args := map[string]any{"task_id": taskID.String(), "input": map[string]any{"x": 1}}
	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "tools/call", toolCallParams{Name: "execute_task", Arguments: mustJSON(args)}), "")
	if resp == nil || resp.Error != nil {
		t.Fatalf("execute_task should succeed, got %+v", resp)
	}

	var result ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal tools/call result: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected a successful tool result, got %+v", result)
	}
}

func TestDispatcher_SessionClosedAfterShutdown(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")
	dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "shutdown", nil), "")

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(3, "tools/list", nil), "")
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeServerShuttingDown {
		t.Fatalf("expected a closed-session error after shutdown, got %+v", resp)
	}
}

func TestDispatcher_PromptsListReturnsStaticCatalogue(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "prompts/list", nil), "")
	if resp == nil || resp.Error != nil {
		t.Fatalf("prompts/list should succeed, got %+v", resp)
	}
	var result struct {
		Prompts []PromptDescriptor `json:"prompts"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal prompts/list result: %v", err)
	}
	if len(result.Prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(result.Prompts))
	}
}

func TestDispatcher_PromptsGetMissingRequiredArgumentErrors(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "prompts/get", map[string]any{"name": "draft-task-from-description"}), "")
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected an error when description is missing, got %+v", resp)
	}
}

func TestDispatcher_ResourcesReadRoundTripsTaskSource(t *testing.T) {
	log, err := logger.NewStderr("error")
	if err != nil {
		t.Fatalf("logger.NewStderr: %v", err)
	}
	sessions := NewSessionManager(time.Hour, 100)
	taskID := uuid.New()
	tasks := &fakeTaskRepo{tasks: []*domain.TaskDefinition{
		{TaskID: taskID, Version: "1.0.0", Name: "sum", Script: "function run(input) { return input; }"},
	}}
	tools := NewToolRegistry(tasks, fakeExecRepo{}, &fakeJobEnqueuer{}, nil)
	resources := NewResourceRegistry(tasks, fakeExecRepo{})
	audit := NewAuditLogger(false, log)
	dispatcher := NewDispatcher(sessions, tools, resources, nil, nil, audit, log)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	uri := taskSourceURI(taskID, "1.0.0")
	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "resources/read", map[string]any{"uri": uri}), "")
	if resp == nil || resp.Error != nil {
		t.Fatalf("resources/read should succeed, got %+v", resp)
	}
	var result struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal resources/read result: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Text == "" {
		t.Fatalf("expected task source contents, got %+v", result.Contents)
	}
}

func TestDispatcher_ResourcesReadRejectsUnsafeURI(t *testing.T) {
	dispatcher, sessions := testDispatcher(t)
	sessionID := sessions.Create()
	dispatcher.Handle(context.Background(), sessionID, jsonReq(1, "initialize", initializeParams{}), "")

	resp := dispatcher.Handle(context.Background(), sessionID, jsonReq(2, "resources/read", map[string]any{"uri": "file:///etc/passwd"}), "")
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected resources/read to reject an unsafe uri, got %+v", resp)
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
