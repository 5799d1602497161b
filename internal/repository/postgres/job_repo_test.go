package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/domain"
)

func newMockFactory(t *testing.T) (*factory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &factory{
		db:         db,
		tasks:      &taskRepository{db: db},
		executions: &executionRepository{db: db},
		jobs:       &jobRepository{db: db},
		schedules:  &scheduleRepository{db: db},
	}, mock
}

func TestJobRepository_ClaimForProcessing_WinsRace(t *testing.T) {
	f, mock := newMockFactory(t)
	jobID, execID := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE jobs").
		WithArgs(jobID, execID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := f.jobs.ClaimForProcessing(context.Background(), jobID, execID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ClaimForProcessing_LosesRace(t *testing.T) {
	f, mock := newMockFactory(t)
	jobID, execID := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE jobs").
		WithArgs(jobID, execID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := f.jobs.ClaimForProcessing(context.Background(), jobID, execID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "zero rows affected means another processor already claimed the job")
}

func TestJobRepository_MarkFailed_RequeuesUnderMaxRetries(t *testing.T) {
	f, mock := newMockFactory(t)
	jobID := uuid.New()
	now := time.Now().UTC()

	cols := []string{
		"job_id", "seq", "task_id", "execution_id", "schedule_id", "priority", "status",
		"input", "retry_count", "max_retries", "retry_delay_seconds", "error_message",
		"queued_at", "process_at", "started_at", "completed_at", "output_destinations", "metadata",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		jobID, int64(1), uuid.New(), nil, nil, int(domain.PriorityNormal), domain.JobProcessing,
		[]byte(`{}`), 0, 3, 60, nil,
		now, nil, &now, nil, []byte(`[]`), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT job_id, seq, task_id").WithArgs(jobID).WillReturnRows(rows)
	mock.ExpectExec("UPDATE jobs SET status='retrying'").
		WithArgs(jobID, 1, sqlmock.AnyArg(), "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := f.jobs.MarkFailed(context.Background(), jobID, now, "boom")
	require.NoError(t, err)
	assert.True(t, result.Retry)
	assert.NotNil(t, result.ProcessAt)
}

func TestJobRepository_MarkFailed_TerminalAtMaxRetries(t *testing.T) {
	f, mock := newMockFactory(t)
	jobID := uuid.New()
	now := time.Now().UTC()

	cols := []string{
		"job_id", "seq", "task_id", "execution_id", "schedule_id", "priority", "status",
		"input", "retry_count", "max_retries", "retry_delay_seconds", "error_message",
		"queued_at", "process_at", "started_at", "completed_at", "output_destinations", "metadata",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		jobID, int64(1), uuid.New(), nil, nil, int(domain.PriorityNormal), domain.JobProcessing,
		[]byte(`{}`), 2, 3, 60, nil,
		now, nil, &now, nil, []byte(`[]`), []byte(`{}`),
	)
	mock.ExpectQuery("SELECT job_id, seq, task_id").WithArgs(jobID).WillReturnRows(rows)
	mock.ExpectExec("UPDATE jobs SET status='failed'").
		WithArgs(jobID, sqlmock.AnyArg(), "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := f.jobs.MarkFailed(context.Background(), jobID, now, "boom")
	require.NoError(t, err)
	assert.False(t, result.Retry)
}

func TestJobRepository_FindReadyForProcessing_OrdersByDequeueRule(t *testing.T) {
	f, mock := newMockFactory(t)
	now := time.Now().UTC()

	cols := []string{
		"job_id", "seq", "task_id", "execution_id", "schedule_id", "priority", "status",
		"input", "retry_count", "max_retries", "retry_delay_seconds", "error_message",
		"queued_at", "process_at", "started_at", "completed_at", "output_destinations", "metadata",
	}
	id1, id2 := uuid.New(), uuid.New()
	rows := sqlmock.NewRows(cols).
		AddRow(id1, int64(1), uuid.New(), nil, nil, int(domain.PriorityUrgent), domain.JobQueued,
			[]byte(`{}`), 0, 3, 60, nil, now, nil, nil, nil, []byte(`[]`), []byte(`{}`)).
		AddRow(id2, int64(2), uuid.New(), nil, nil, int(domain.PriorityNormal), domain.JobQueued,
			[]byte(`{}`), 0, 3, 60, nil, now, nil, nil, nil, []byte(`[]`), []byte(`{}`))

	mock.ExpectQuery("SELECT job_id, seq, task_id").
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	jobs, err := f.jobs.FindReadyForProcessing(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, id1, jobs[0].JobID)
	assert.Equal(t, id2, jobs[1].JobID)
}
