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

type taskRepository struct {
	db *sql.DB
}

func (r *taskRepository) Create(ctx context.Context, t *domain.TaskDefinition) (*domain.TaskDefinition, error) {
	const query = `
		INSERT INTO tasks
			(task_id, version, name, description, input_schema, output_schema, script,
			 tags, enabled, source, checksum, deterministic, side_effects, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.TaskID, t.Version, t.Name, nullableString(t.Description), t.InputSchema, t.OutputSchema, t.Script,
		pqStringArray(t.Tags), t.Enabled, t.Source, nullableString(t.Checksum), t.Deterministic,
		pqStringArray(t.SideEffects), t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, errs.Validation("task %s version %s already exists", t.TaskID, t.Version)
	}
	if err != nil {
		return nil, errs.Network(err, "insert task")
	}
	return t, nil
}

func (r *taskRepository) Update(ctx context.Context, t *domain.TaskDefinition) (*domain.TaskDefinition, error) {
	t.Touch()
	const query = `
		UPDATE tasks SET name=$3, description=$4, input_schema=$5, output_schema=$6, script=$7,
			tags=$8, enabled=$9, checksum=$10, deterministic=$11, side_effects=$12, updated_at=$13
		WHERE task_id=$1 AND version=$2
	`
	res, err := r.db.ExecContext(ctx, query,
		t.TaskID, t.Version, t.Name, nullableString(t.Description), t.InputSchema, t.OutputSchema, t.Script,
		pqStringArray(t.Tags), t.Enabled, nullableString(t.Checksum), t.Deterministic,
		pqStringArray(t.SideEffects), t.UpdatedAt,
	)
	if err != nil {
		return nil, errs.Network(err, "update task")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound("task %s version %s not found", t.TaskID, t.Version)
	}
	return t, nil
}

func (r *taskRepository) FindByID(ctx context.Context, taskID uuid.UUID, version string) (*domain.TaskDefinition, error) {
	return r.FindByUUIDVersion(ctx, taskID, version)
}

func (r *taskRepository) FindByUUIDVersion(ctx context.Context, id uuid.UUID, version string) (*domain.TaskDefinition, error) {
	const query = `
		SELECT task_id, version, name, description, input_schema, output_schema, script, tags,
		       enabled, source, checksum, deterministic, side_effects, created_at, updated_at, validated_at
		FROM tasks WHERE task_id = $1 AND version = $2
	`
	row := r.db.QueryRowContext(ctx, query, id, version)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("task %s version %s not found", id, version)
	}
	if err != nil {
		return nil, errs.Network(err, "find task")
	}
	return task, nil
}

func (r *taskRepository) List(ctx context.Context, filters []repository.Filter, sort []repository.Sort, page repository.Pagination) (repository.Page[*domain.TaskDefinition], error) {
	where, args := buildWhere(filters, 1)
	order := buildOrderBy(sort, "created_at")

	countQuery := "SELECT COUNT(*) FROM tasks" + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return repository.Page[*domain.TaskDefinition]{}, errs.Network(err, "count tasks")
	}

	query := `
		SELECT task_id, version, name, description, input_schema, output_schema, script, tags,
		       enabled, source, checksum, deterministic, side_effects, created_at, updated_at, validated_at
		FROM tasks` + where + order + fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return repository.Page[*domain.TaskDefinition]{}, errs.Network(err, "list tasks")
	}
	defer rows.Close()

	var items []*domain.TaskDefinition
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return repository.Page[*domain.TaskDefinition]{}, errs.Network(err, "scan task")
		}
		items = append(items, task)
	}
	return repository.Page[*domain.TaskDefinition]{Items: items, Total: total}, rows.Err()
}

// Delete fails (returns false, nil) if dependent executions exist: a
// physical delete requires no dependent executions.
func (r *taskRepository) Delete(ctx context.Context, taskID uuid.UUID, version string) (bool, error) {
	var depCount int
	const depQuery = `SELECT COUNT(*) FROM executions WHERE task_id = $1`
	if err := r.db.QueryRowContext(ctx, depQuery, taskID).Scan(&depCount); err != nil {
		return false, errs.Network(err, "count dependent executions")
	}
	if depCount > 0 {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = $1 AND version = $2`, taskID, version)
	if err != nil {
		return false, errs.Network(err, "delete task")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *taskRepository) MarkValidated(ctx context.Context, taskID uuid.UUID, version string, at time.Time) error {
	const query = `UPDATE tasks SET validated_at = $3 WHERE task_id = $1 AND version = $2`
	res, err := r.db.ExecContext(ctx, query, taskID, version, at.UTC())
	if err != nil {
		return errs.Network(err, "mark task validated")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("task %s version %s not found", taskID, version)
	}
	return nil
}

func scanTask(row rowScanner) (*domain.TaskDefinition, error) {
	var t domain.TaskDefinition
	var description, checksum sql.NullString
	var validatedAt sql.NullTime
	var tags, sideEffects pqArray

	err := row.Scan(
		&t.TaskID, &t.Version, &t.Name, &description, &t.InputSchema, &t.OutputSchema, &t.Script,
		&tags, &t.Enabled, &t.Source, &checksum, &t.Deterministic, &sideEffects,
		&t.CreatedAt, &t.UpdatedAt, &validatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if checksum.Valid {
		t.Checksum = checksum.String
	}
	if validatedAt.Valid {
		t.ValidatedAt = &validatedAt.Time
	}
	t.Tags = []string(tags)
	t.SideEffects = []string(sideEffects)
	return &t, nil
}
