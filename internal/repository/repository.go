// Package repository defines the adapter-agnostic store contracts the core
// depends on: TaskRepository, ExecutionRepository, JobRepository and
// ScheduleRepository, plus the shared pagination/filter/sort types.
// The core never reaches past these interfaces into a concrete backend.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
)

// Operator is one of the comparison operators a Filter clause may use.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
)

// Filter is one AND-ed clause of a list query.
type Filter struct {
	Field    string
	Operator Operator
	Value    any
}

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort orders a list query by one field.
type Sort struct {
	Field     string
	Direction SortDirection
}

// Pagination is an offset/limit window; Total is populated on the response
// side by List methods, not supplied by the caller.
type Pagination struct {
	Offset int
	Limit  int
}

// Page wraps a list result with its total count regardless of pagination.
type Page[T any] struct {
	Items []T
	Total int
}

// WillRetry reports the retry decision made by JobRepository.MarkFailed.
type WillRetry struct {
	Retry     bool
	ProcessAt *time.Time
}

// TaskRepository persists TaskDefinition entities.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.TaskDefinition) (*domain.TaskDefinition, error)
	Update(ctx context.Context, task *domain.TaskDefinition) (*domain.TaskDefinition, error)
	FindByID(ctx context.Context, taskID uuid.UUID, version string) (*domain.TaskDefinition, error)
	FindByUUIDVersion(ctx context.Context, id uuid.UUID, version string) (*domain.TaskDefinition, error)
	List(ctx context.Context, filters []Filter, sort []Sort, page Pagination) (Page[*domain.TaskDefinition], error)
	// Delete fails (returns false, nil) if dependent executions exist.
	Delete(ctx context.Context, taskID uuid.UUID, version string) (bool, error)
	MarkValidated(ctx context.Context, taskID uuid.UUID, version string, at time.Time) error
}

// ExecutionRepository persists Execution entities.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *domain.Execution) (*domain.Execution, error)
	FindByID(ctx context.Context, executionID uuid.UUID) (*domain.Execution, error)
	List(ctx context.Context, filters []Filter, sort []Sort, page Pagination) (Page[*domain.Execution], error)
	MarkStarted(ctx context.Context, executionID uuid.UUID, at time.Time) error
	MarkCompleted(ctx context.Context, executionID uuid.UUID, at time.Time, output []byte) error
	MarkFailed(ctx context.Context, executionID uuid.UUID, at time.Time, message string, details []byte) error
}

// JobRepository persists Job entities and implements the serialisable
// dequeue claim.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	FindByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
	// FindReadyForProcessing returns up to limit eligible jobs ordered by
	// the dequeue order: priority desc, queued_at asc, JobID asc.
	FindReadyForProcessing(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error)
	// ClaimForProcessing performs the serialisable Queued|Retrying ->
	// Processing transition; returns false if another processor won the
	// race (zero rows affected).
	ClaimForProcessing(ctx context.Context, jobID uuid.UUID, executionID uuid.UUID, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID, at time.Time) error
	// MarkFailed applies the retry decision and returns whether the
	// job was requeued (Retrying) or became terminal (Failed).
	MarkFailed(ctx context.Context, jobID uuid.UUID, at time.Time, message string) (WillRetry, error)
	Cancel(ctx context.Context, jobID uuid.UUID, at time.Time) (bool, error)
}

// ScheduleRepository persists Schedule entities.
type ScheduleRepository interface {
	Create(ctx context.Context, sched *domain.Schedule) (*domain.Schedule, error)
	Update(ctx context.Context, sched *domain.Schedule) (*domain.Schedule, error)
	Delete(ctx context.Context, scheduleID uuid.UUID) error
	FindEnabled(ctx context.Context) ([]*domain.Schedule, error)
	SetLastRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error
	SetNextRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error
}

// Factory bundles the four repositories behind a single handle rather than
// per-backend trait-object escape hatches.
type Factory interface {
	Tasks() TaskRepository
	Executions() ExecutionRepository
	Jobs() JobRepository
	Schedules() ScheduleRepository
	Close() error
}
