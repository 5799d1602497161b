package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

type executionRepository struct {
	db *sql.DB
}

func (r *executionRepository) Create(ctx context.Context, e *domain.Execution) (*domain.Execution, error) {
	input, err := marshalOrEmpty(e.Input)
	if err != nil {
		return nil, errs.Validation("marshal execution input: %v", err)
	}
	const query = `
		INSERT INTO executions (execution_id, task_id, input, status, queued_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING seq
	`
	err = r.db.QueryRowContext(ctx, query, e.ExecutionID, e.TaskID, input, e.Status, e.QueuedAt).Scan(&e.Seq)
	if err != nil {
		return nil, errs.Network(err, "insert execution")
	}
	return e, nil
}

func (r *executionRepository) FindByID(ctx context.Context, executionID uuid.UUID) (*domain.Execution, error) {
	const query = `
		SELECT execution_id, seq, task_id, input, output, status, error_message, error_details,
		       queued_at, started_at, completed_at, duration_ms, recording_path
		FROM executions WHERE execution_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, executionID)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("execution %s not found", executionID)
	}
	if err != nil {
		return nil, errs.Network(err, "find execution")
	}
	return exec, nil
}

func (r *executionRepository) List(ctx context.Context, filters []repository.Filter, sort []repository.Sort, page repository.Pagination) (repository.Page[*domain.Execution], error) {
	where, args := buildWhere(filters, 1)
	order := buildOrderBy(sort, "queued_at")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total); err != nil {
		return repository.Page[*domain.Execution]{}, errs.Network(err, "count executions")
	}

	query := `
		SELECT execution_id, seq, task_id, input, output, status, error_message, error_details,
		       queued_at, started_at, completed_at, duration_ms, recording_path
		FROM executions` + where + order + fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return repository.Page[*domain.Execution]{}, errs.Network(err, "list executions")
	}
	defer rows.Close()

	var items []*domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return repository.Page[*domain.Execution]{}, errs.Network(err, "scan execution")
		}
		items = append(items, exec)
	}
	return repository.Page[*domain.Execution]{Items: items, Total: total}, rows.Err()
}

func (r *executionRepository) MarkStarted(ctx context.Context, executionID uuid.UUID, at time.Time) error {
	const query = `UPDATE executions SET status='running', started_at=$2 WHERE execution_id=$1`
	_, err := r.db.ExecContext(ctx, query, executionID, at.UTC())
	if err != nil {
		return errs.Network(err, "mark execution started")
	}
	return nil
}

func (r *executionRepository) MarkCompleted(ctx context.Context, executionID uuid.UUID, at time.Time, output []byte) error {
	exec, err := r.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	exec.MarkCompleted(at, output)
	const query = `
		UPDATE executions SET status='completed', completed_at=$2, duration_ms=$3, output=$4
		WHERE execution_id=$1
	`
	_, err = r.db.ExecContext(ctx, query, executionID, exec.CompletedAt, exec.DurationMs, output)
	if err != nil {
		return errs.Network(err, "mark execution completed")
	}
	return nil
}

func (r *executionRepository) MarkFailed(ctx context.Context, executionID uuid.UUID, at time.Time, message string, details []byte) error {
	exec, err := r.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	exec.MarkFailed(at, message, details)
	const query = `
		UPDATE executions SET status='failed', completed_at=$2, duration_ms=$3, error_message=$4, error_details=$5
		WHERE execution_id=$1
	`
	_, err = r.db.ExecContext(ctx, query, executionID, exec.CompletedAt, exec.DurationMs, message, details)
	if err != nil {
		return errs.Network(err, "mark execution failed")
	}
	return nil
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	var output, errorDetails []byte
	var errorMessage, recordingPath sql.NullString
	var startedAt, completedAt sql.NullTime
	var durationMs sql.NullInt64

	err := row.Scan(
		&e.ExecutionID, &e.Seq, &e.TaskID, &e.Input, &output, &e.Status, &errorMessage, &errorDetails,
		&e.QueuedAt, &startedAt, &completedAt, &durationMs, &recordingPath,
	)
	if err != nil {
		return nil, err
	}
	e.Output = output
	e.ErrorDetails = errorDetails
	if errorMessage.Valid {
		e.ErrorMessage = errorMessage.String
	}
	if recordingPath.Valid {
		e.RecordingPath = recordingPath.String
	}
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	if durationMs.Valid {
		e.DurationMs = &durationMs.Int64
	}
	return &e, nil
}
