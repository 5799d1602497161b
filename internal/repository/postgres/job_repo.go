package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

type jobRepository struct {
	db *sql.DB
}

func (r *jobRepository) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	input, err := marshalOrEmpty(job.Input)
	if err != nil {
		return nil, errs.Validation("marshal job input: %v", err)
	}
	destinations, err := json.Marshal(job.OutputDestinations)
	if err != nil {
		return nil, errs.Validation("marshal output destinations: %v", err)
	}
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return nil, errs.Validation("marshal job metadata: %v", err)
	}

	const query = `
		INSERT INTO jobs
			(job_id, task_id, schedule_id, priority, status, input, retry_count,
			 max_retries, retry_delay_seconds, queued_at, process_at,
			 output_destinations, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING seq
	`
	err = r.db.QueryRowContext(ctx, query,
		job.JobID, job.TaskID, nullableUUID(job.ScheduleID), int(job.Priority), job.Status,
		input, job.RetryCount, job.MaxRetries, job.RetryDelaySeconds, job.QueuedAt,
		nullableTime(job.ProcessAt), destinations, metadata,
	).Scan(&job.Seq)
	if err != nil {
		return nil, errs.Network(err, "insert job")
	}
	return job, nil
}

func (r *jobRepository) FindByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	const query = `
		SELECT job_id, seq, task_id, execution_id, schedule_id, priority, status,
		       input, retry_count, max_retries, retry_delay_seconds, error_message,
		       queued_at, process_at, started_at, completed_at, output_destinations, metadata
		FROM jobs WHERE job_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, errs.Network(err, "find job by id")
	}
	return job, nil
}

// FindReadyForProcessing implements the dequeue order: priority desc,
// queued_at asc, job_id asc, restricted to eligible statuses and
// process_at <= now.
func (r *jobRepository) FindReadyForProcessing(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	const query = `
		SELECT job_id, seq, task_id, execution_id, schedule_id, priority, status,
		       input, retry_count, max_retries, retry_delay_seconds, error_message,
		       queued_at, process_at, started_at, completed_at, output_destinations, metadata
		FROM jobs
		WHERE status IN ('queued','retrying') AND (process_at IS NULL OR process_at <= $1)
		ORDER BY priority DESC, queued_at ASC, job_id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, errs.Network(err, "find ready jobs")
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errs.Network(err, "scan ready job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Network(err, "ready jobs rows")
	}
	return jobs, nil
}

// ClaimForProcessing is the serialisable Queued|Retrying -> Processing
// transition: a conditional UPDATE that only succeeds for the processor
// that wins the race. Zero rows affected means "lost the race".
func (r *jobRepository) ClaimForProcessing(ctx context.Context, jobID, executionID uuid.UUID, at time.Time) (bool, error) {
	const query = `
		UPDATE jobs
		SET status = 'processing', execution_id = $2, started_at = $3
		WHERE job_id = $1 AND status IN ('queued','retrying')
	`
	res, err := r.db.ExecContext(ctx, query, jobID, executionID, at.UTC())
	if err != nil {
		return false, errs.Network(err, "claim job for processing")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Network(err, "claim job rows affected")
	}
	return n == 1, nil
}

func (r *jobRepository) MarkCompleted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	const query = `UPDATE jobs SET status = 'completed', completed_at = $2 WHERE job_id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID, at.UTC())
	if err != nil {
		return errs.Network(err, "mark job completed")
	}
	return nil
}

// MarkFailed reloads the stored job, applies domain.Job.Fail's
// retry-or-terminal decision to it, and writes the result back, so the
// decision is made from the stored row rather than a caller's in-memory Job.
func (r *jobRepository) MarkFailed(ctx context.Context, jobID uuid.UUID, at time.Time, message string) (repository.WillRetry, error) {
	job, err := r.FindByID(ctx, jobID)
	if err != nil {
		return repository.WillRetry{}, err
	}
	job.Fail(at, message)

	if job.Status == domain.JobRetrying {
		const query = `
			UPDATE jobs SET status='retrying', retry_count=$2, process_at=$3, error_message=$4
			WHERE job_id = $1
		`
		_, err := r.db.ExecContext(ctx, query, jobID, job.RetryCount, job.ProcessAt, message)
		if err != nil {
			return repository.WillRetry{}, errs.Network(err, "mark job retrying")
		}
		return repository.WillRetry{Retry: true, ProcessAt: job.ProcessAt}, nil
	}

	const query = `UPDATE jobs SET status='failed', completed_at=$2, error_message=$3 WHERE job_id = $1`
	_, err = r.db.ExecContext(ctx, query, jobID, job.CompletedAt, message)
	if err != nil {
		return repository.WillRetry{}, errs.Network(err, "mark job failed")
	}
	return repository.WillRetry{Retry: false}, nil
}

func (r *jobRepository) Cancel(ctx context.Context, jobID uuid.UUID, at time.Time) (bool, error) {
	const query = `
		UPDATE jobs SET status='cancelled', completed_at=$2
		WHERE job_id = $1 AND status IN ('queued','retrying')
	`
	res, err := r.db.ExecContext(ctx, query, jobID, at.UTC())
	if err != nil {
		return false, errs.Network(err, "cancel job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Network(err, "cancel job rows affected")
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var priority int
	var executionID, scheduleID uuid.NullUUID
	var errorMessage sql.NullString
	var processAt, startedAt, completedAt sql.NullTime
	var input, destinations, metadata []byte

	err := row.Scan(
		&job.JobID, &job.Seq, &job.TaskID, &executionID, &scheduleID, &priority, &job.Status,
		&input, &job.RetryCount, &job.MaxRetries, &job.RetryDelaySeconds, &errorMessage,
		&job.QueuedAt, &processAt, &startedAt, &completedAt, &destinations, &metadata,
	)
	if err != nil {
		return nil, err
	}

	job.Priority = domain.JobPriority(priority)
	job.Input = input
	if executionID.Valid {
		job.ExecutionID = &executionID.UUID
	}
	if scheduleID.Valid {
		job.ScheduleID = &scheduleID.UUID
	}
	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}
	if processAt.Valid {
		job.ProcessAt = &processAt.Time
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if len(destinations) > 0 {
		if err := json.Unmarshal(destinations, &job.OutputDestinations); err != nil {
			return nil, fmt.Errorf("unmarshal output_destinations: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &job, nil
}
