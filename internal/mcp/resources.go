package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/repository"
)

// ResourceRegistry serves read-only ratchet:// resources over the
// repository layer: a task's script source and an execution's full
// record ("trace"). Grounded on mcp-north-cloud/internal/mcp/resources.go
// for the Go shape; the URI scheme itself has no upstream equivalent.
type ResourceRegistry struct {
	tasks repository.TaskRepository
	execs repository.ExecutionRepository
}

func NewResourceRegistry(tasks repository.TaskRepository, execs repository.ExecutionRepository) *ResourceRegistry {
	return &ResourceRegistry{tasks: tasks, execs: execs}
}

func taskSourceURI(taskID uuid.UUID, version string) string {
	return fmt.Sprintf("ratchet://tasks/%s/%s/source", taskID, version)
}

func executionTraceURI(executionID uuid.UUID) string {
	return fmt.Sprintf("ratchet://executions/%s/trace", executionID)
}

// List enumerates every registered task's source as a resource. Execution
// traces aren't enumerated (there can be arbitrarily many); they're still
// readable by URI once an execution id is known, e.g. from get_execution.
func (r *ResourceRegistry) List(ctx context.Context) ([]ResourceDescriptor, error) {
	page, err := r.tasks.List(ctx, nil, nil, repository.Pagination{Limit: 1000})
	if err != nil {
		return nil, err
	}
	out := make([]ResourceDescriptor, 0, len(page.Items))
	for _, t := range page.Items {
		out = append(out, ResourceDescriptor{
			URI:         taskSourceURI(t.TaskID, t.Version),
			Name:        fmt.Sprintf("%s@%s source", t.Name, t.Version),
			Description: "JavaScript source for task " + t.Name,
			MimeType:    "text/javascript",
		})
	}
	return out, nil
}

// Read resolves one ratchet:// URI to its contents.
func (r *ResourceRegistry) Read(ctx context.Context, uri string) (ResourceContents, error) {
	rest, ok := strings.CutPrefix(uri, "ratchet://")
	if !ok {
		return ResourceContents{}, fmt.Errorf("unsupported resource scheme: %s", uri)
	}
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 4 && parts[0] == "tasks" && parts[3] == "source":
		return r.readTaskSource(ctx, uri, parts[1], parts[2])
	case len(parts) == 3 && parts[0] == "executions" && parts[2] == "trace":
		return r.readExecutionTrace(ctx, uri, parts[1])
	default:
		return ResourceContents{}, fmt.Errorf("unknown resource uri: %s", uri)
	}
}

func (r *ResourceRegistry) readTaskSource(ctx context.Context, uri, rawTaskID, version string) (ResourceContents, error) {
	taskID, err := uuid.Parse(rawTaskID)
	if err != nil {
		return ResourceContents{}, fmt.Errorf("invalid task id in uri: %w", err)
	}
	task, err := r.tasks.FindByID(ctx, taskID, version)
	if err != nil {
		return ResourceContents{}, err
	}
	return ResourceContents{URI: uri, MimeType: "text/javascript", Text: task.Script}, nil
}

func (r *ResourceRegistry) readExecutionTrace(ctx context.Context, uri, rawExecutionID string) (ResourceContents, error) {
	executionID, err := uuid.Parse(rawExecutionID)
	if err != nil {
		return ResourceContents{}, fmt.Errorf("invalid execution id in uri: %w", err)
	}
	exec, err := r.execs.FindByID(ctx, executionID)
	if err != nil {
		return ResourceContents{}, err
	}
	payload, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return ResourceContents{}, err
	}
	return ResourceContents{URI: uri, MimeType: "application/json", Text: string(payload)}, nil
}
