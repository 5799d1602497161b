package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// validExecutionTransitions enumerates the only legal status transitions;
// Pending -> Running -> (Completed | Failed | Cancelled).
var validExecutionTransitions = map[ExecutionStatus]map[ExecutionStatus]bool{
	ExecutionPending: {ExecutionRunning: true, ExecutionCancelled: true},
	ExecutionRunning: {ExecutionCompleted: true, ExecutionFailed: true, ExecutionCancelled: true},
}

// CanTransition reports whether moving from s to next is legal.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	return validExecutionTransitions[s][next]
}

// Terminal reports whether this is a terminal status; once terminal only
// RecordingPath may still be set on the Execution.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one run of a task on a concrete input.
type Execution struct {
	ExecutionID   uuid.UUID       `json:"execution_id"`
	Seq           int64           `json:"seq"` // integer surrogate for pagination
	TaskID        uuid.UUID       `json:"task_id"`
	Input         json.RawMessage `json:"input"`
	Output        json.RawMessage `json:"output,omitempty"`
	Status        ExecutionStatus `json:"status"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ErrorDetails  json.RawMessage `json:"error_details,omitempty"`
	QueuedAt      time.Time       `json:"queued_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMs    *int64          `json:"duration_ms,omitempty"`
	RecordingPath string          `json:"recording_path,omitempty"`
}

// NewExecution creates a Pending execution queued now.
func NewExecution(taskID uuid.UUID, input json.RawMessage) *Execution {
	return &Execution{
		ExecutionID: uuid.New(),
		TaskID:      taskID,
		Input:       input,
		Status:      ExecutionPending,
		QueuedAt:    time.Now().UTC(),
	}
}

// MarkStarted transitions Pending -> Running; queued_at <= started_at holds
// because started is set to the greater of now and QueuedAt.
func (e *Execution) MarkStarted(now time.Time) {
	now = now.UTC()
	if now.Before(e.QueuedAt) {
		now = e.QueuedAt
	}
	e.Status = ExecutionRunning
	e.StartedAt = &now
}

// MarkCompleted transitions Running -> Completed with output and duration.
func (e *Execution) MarkCompleted(now time.Time, output json.RawMessage) {
	e.finish(now, ExecutionCompleted)
	e.Output = output
}

// MarkFailed transitions Running -> Failed with an error message and
// optional structured details.
func (e *Execution) MarkFailed(now time.Time, message string, details json.RawMessage) {
	e.finish(now, ExecutionFailed)
	e.ErrorMessage = message
	e.ErrorDetails = details
}

// MarkCancelled transitions to Cancelled from Pending or Running.
func (e *Execution) MarkCancelled(now time.Time) {
	e.finish(now, ExecutionCancelled)
}

func (e *Execution) finish(now time.Time, status ExecutionStatus) {
	now = now.UTC()
	if e.StartedAt != nil && now.Before(*e.StartedAt) {
		now = *e.StartedAt
	}
	e.Status = status
	e.CompletedAt = &now
	if e.StartedAt != nil {
		d := now.Sub(*e.StartedAt).Milliseconds()
		e.DurationMs = &d
	}
}
