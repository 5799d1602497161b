// Package domain holds the core entity types shared by every component of
// the execution pipeline: tasks, executions, jobs, schedules, cached
// results, output destinations and MCP sessions.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskDefinition is a named, versioned unit of executable JavaScript with
// declared input/output JSON Schemas. (TaskID, Version) is unique.
type TaskDefinition struct {
	TaskID       uuid.UUID `json:"task_id"`
	Version      string    `json:"version"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	InputSchema  []byte    `json:"input_schema"`
	OutputSchema []byte    `json:"output_schema"`
	Script       string    `json:"script"`
	Tags         []string  `json:"tags,omitempty"`
	Enabled      bool      `json:"enabled"`
	Source       string    `json:"source"`
	Checksum     string    `json:"checksum,omitempty"`

	// Metadata drives cacheability: a task is only eligible for the result
	// cache when Deterministic is true and SideEffects is empty.
	Deterministic bool     `json:"deterministic"`
	SideEffects   []string `json:"side_effects,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

// Key returns the identity pair used everywhere (TaskID, version) uniqueness
// is enforced.
func (t *TaskDefinition) Key() (uuid.UUID, string) {
	return t.TaskID, t.Version
}

// Cacheable reports whether an execution of this task may be served from or
// written to the result cache. Grounded on
// original_source/ratchet-caching/src/result_cache.rs's is_task_deterministic.
func (t *TaskDefinition) Cacheable() bool {
	return t.Deterministic && len(t.SideEffects) == 0
}

// NewTaskDefinition builds a TaskDefinition with identity and timestamps
// filled in; callers still must validate Script/InputSchema/OutputSchema
// before calling MarkValidated.
func NewTaskDefinition(name, version, source string) *TaskDefinition {
	now := time.Now().UTC()
	return &TaskDefinition{
		TaskID:    uuid.New(),
		Version:   version,
		Name:      name,
		Source:    source,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkValidated records that Script parsed and both schemas are
// syntactically valid JSON Schema. Callers are responsible for having
// actually performed that validation.
func (t *TaskDefinition) MarkValidated(at time.Time) {
	v := at.UTC()
	t.ValidatedAt = &v
}

// Touch bumps UpdatedAt, used by the edit_task tool to signal a content change that
// must invalidate any cached executions for this (TaskID, Version).
func (t *TaskDefinition) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
