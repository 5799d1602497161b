package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Schedule is a cron expression that injects Jobs over time.
type Schedule struct {
	ScheduleID     uuid.UUID       `json:"schedule_id"`
	TaskID         uuid.UUID       `json:"task_id"`
	Name           string          `json:"name"`
	CronExpression string          `json:"cron_expression"`
	Enabled        bool            `json:"enabled"`
	Input          json.RawMessage `json:"input"`
	NextRun        *time.Time      `json:"next_run,omitempty"`
	LastRun        *time.Time      `json:"last_run,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewSchedule builds a Schedule, disabled until the caller registers it
// with the cron runtime and enables it.
func NewSchedule(taskID uuid.UUID, name, cronExpr string, input json.RawMessage) *Schedule {
	now := time.Now().UTC()
	return &Schedule{
		ScheduleID:     uuid.New(),
		TaskID:         taskID,
		Name:           name,
		CronExpression: cronExpr,
		Input:          input,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordRun sets LastRun to the tick time and NextRun to the recomputed
// next match; no catch-up is attempted for missed windows.
func (s *Schedule) RecordRun(tickedAt, next time.Time) {
	t := tickedAt.UTC()
	n := next.UTC()
	s.LastRun = &t
	s.NextRun = &n
}

// NewJobForTick builds the Normal-priority Job a schedule injects on each
// cron match, with process_at pinned to now.
func (s *Schedule) NewJobForTick(now time.Time) *Job {
	job := NewJob(s.TaskID, PriorityNormal, s.Input)
	job.ScheduleID = &s.ScheduleID
	now = now.UTC()
	job.ProcessAt = &now
	return job
}
