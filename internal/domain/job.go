package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobPriority orders eligible jobs for dequeue; higher value dispatches
// first. Numeric mapping matches the dequeue-order invariant exactly.
type JobPriority int

const (
	PriorityLow    JobPriority = 1
	PriorityNormal JobPriority = 2
	PriorityHigh   JobPriority = 3
	PriorityUrgent JobPriority = 4
)

func (p JobPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
	JobRetrying   JobStatus = "retrying"
)

// Eligible statuses for find_ready_for_processing; a job is only a dequeue
// candidate while Queued or Retrying.
func (s JobStatus) Eligible() bool {
	return s == JobQueued || s == JobRetrying
}

// Terminal statuses are sticky: Completed, Failed, Cancelled never change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is a request to execute a task, with priority, retry policy and an
// optional not-before time.
type Job struct {
	JobID              uuid.UUID              `json:"job_id"`
	Seq                int64                  `json:"seq"`
	TaskID             uuid.UUID              `json:"task_id"`
	ExecutionID        *uuid.UUID             `json:"execution_id,omitempty"`
	ScheduleID         *uuid.UUID             `json:"schedule_id,omitempty"`
	Priority           JobPriority            `json:"priority"`
	Status             JobStatus              `json:"status"`
	Input              json.RawMessage        `json:"input"`
	RetryCount         int                    `json:"retry_count"`
	MaxRetries         int                    `json:"max_retries"`
	RetryDelaySeconds  int                    `json:"retry_delay_seconds"`
	ErrorMessage       string                 `json:"error_message,omitempty"`
	QueuedAt           time.Time              `json:"queued_at"`
	ProcessAt          *time.Time             `json:"process_at,omitempty"`
	StartedAt          *time.Time             `json:"started_at,omitempty"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	OutputDestinations []OutputDestinationConfig `json:"output_destinations,omitempty"`
	Metadata           map[string]string      `json:"metadata,omitempty"`
}

// DefaultMaxRetries and DefaultRetryDelaySeconds are the defaults applied to
// a Job created without an explicit retry policy.
const (
	DefaultMaxRetries        = 3
	DefaultRetryDelaySeconds = 60
	maxBackoffSeconds        = 3600 // one hour cap
)

// NewJob creates a Queued job eligible immediately (process_at is nil,
// meaning "now or earlier").
func NewJob(taskID uuid.UUID, priority JobPriority, input json.RawMessage) *Job {
	return &Job{
		JobID:             uuid.New(),
		TaskID:            taskID,
		Priority:          priority,
		Status:            JobQueued,
		Input:             input,
		MaxRetries:        DefaultMaxRetries,
		RetryDelaySeconds: DefaultRetryDelaySeconds,
		QueuedAt:          time.Now().UTC(),
	}
}

// Eligible reports whether the job is a dequeue candidate at time now:
// status in {Queued, Retrying} and process_at is nil or <= now.
func (j *Job) Eligible(now time.Time) bool {
	if !j.Status.Eligible() {
		return false
	}
	return j.ProcessAt == nil || !j.ProcessAt.After(now)
}

// MarkProcessing transitions Queued|Retrying -> Processing and links the
// Execution created for this attempt.
func (j *Job) MarkProcessing(now time.Time, executionID uuid.UUID) {
	now = now.UTC()
	j.Status = JobProcessing
	j.ExecutionID = &executionID
	j.StartedAt = &now
}

// MarkCompleted transitions Processing -> Completed.
func (j *Job) MarkCompleted(now time.Time) {
	now = now.UTC()
	j.Status = JobCompleted
	j.CompletedAt = &now
}

// NextBackoff computes process_at = now + retry_delay_seconds * 2^(retry_count-1),
// capped at maxBackoffSeconds. Call only after
// incrementing RetryCount.
func (j *Job) NextBackoff(now time.Time) time.Time {
	exp := j.RetryCount - 1
	if exp < 0 {
		exp = 0
	}
	delay := float64(j.RetryDelaySeconds)
	for i := 0; i < exp; i++ {
		delay *= 2
		if delay > maxBackoffSeconds {
			delay = maxBackoffSeconds
			break
		}
	}
	if delay > maxBackoffSeconds {
		delay = maxBackoffSeconds
	}
	return now.UTC().Add(time.Duration(delay) * time.Second)
}

// Fail applies the retry decision: Retrying with bumped RetryCount and
// backoff process_at, or terminal Failed once MaxRetries is exhausted.
func (j *Job) Fail(now time.Time, message string) {
	now = now.UTC()
	j.ErrorMessage = message
	j.RetryCount++
	if j.RetryCount < j.MaxRetries {
		j.Status = JobRetrying
		next := j.NextBackoff(now)
		j.ProcessAt = &next
		return
	}
	j.Status = JobFailed
	j.CompletedAt = &now
}

// Cancel is only honoured while Queued or Retrying; Processing jobs must be
// cancelled cooperatively by the executor observing a separate flag.
func (j *Job) Cancel(now time.Time) bool {
	if !j.Status.Eligible() {
		return false
	}
	now = now.UTC()
	j.Status = JobCancelled
	j.CompletedAt = &now
	return true
}

// Less implements the dequeue ordering: priority desc, queued_at asc,
// JobID asc as a final tiebreaker.
func (j *Job) Less(other *Job) bool {
	if j.Priority != other.Priority {
		return j.Priority > other.Priority
	}
	if !j.QueuedAt.Equal(other.QueuedAt) {
		return j.QueuedAt.Before(other.QueuedAt)
	}
	return j.JobID.String() < other.JobID.String()
}
