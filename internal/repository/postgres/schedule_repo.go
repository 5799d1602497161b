package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
)

type scheduleRepository struct {
	db *sql.DB
}

func (r *scheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	input, err := marshalOrEmpty(s.Input)
	if err != nil {
		return nil, errs.Validation("marshal schedule input: %v", err)
	}
	const query = `
		INSERT INTO schedules
			(schedule_id, task_id, name, cron_expression, enabled, input, next_run, last_run, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ScheduleID, s.TaskID, s.Name, s.CronExpression, s.Enabled, input,
		nullableTime(s.NextRun), nullableTime(s.LastRun), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return nil, errs.Network(err, "insert schedule")
	}
	return s, nil
}

func (r *scheduleRepository) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	s.UpdatedAt = time.Now().UTC()
	const query = `
		UPDATE schedules SET name=$2, cron_expression=$3, enabled=$4, input=$5, next_run=$6, updated_at=$7
		WHERE schedule_id = $1
	`
	input, err := marshalOrEmpty(s.Input)
	if err != nil {
		return nil, errs.Validation("marshal schedule input: %v", err)
	}
	res, err := r.db.ExecContext(ctx, query,
		s.ScheduleID, s.Name, s.CronExpression, s.Enabled, input, nullableTime(s.NextRun), s.UpdatedAt,
	)
	if err != nil {
		return nil, errs.Network(err, "update schedule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound("schedule %s not found", s.ScheduleID)
	}
	return s, nil
}

func (r *scheduleRepository) Delete(ctx context.Context, scheduleID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return errs.Network(err, "delete schedule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("schedule %s not found", scheduleID)
	}
	return nil
}

func (r *scheduleRepository) FindEnabled(ctx context.Context) ([]*domain.Schedule, error) {
	const query = `
		SELECT schedule_id, task_id, name, cron_expression, enabled, input, next_run, last_run, created_at, updated_at
		FROM schedules WHERE enabled = true
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Network(err, "list enabled schedules")
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, errs.Network(err, "scan schedule")
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (r *scheduleRepository) SetLastRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error {
	const query = `UPDATE schedules SET last_run = $2 WHERE schedule_id = $1`
	_, err := r.db.ExecContext(ctx, query, scheduleID, at.UTC())
	if err != nil {
		return errs.Network(err, "set schedule last_run")
	}
	return nil
}

func (r *scheduleRepository) SetNextRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error {
	const query = `UPDATE schedules SET next_run = $2 WHERE schedule_id = $1`
	_, err := r.db.ExecContext(ctx, query, scheduleID, at.UTC())
	if err != nil {
		return errs.Network(err, "set schedule next_run")
	}
	return nil
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	var nextRun, lastRun sql.NullTime

	err := row.Scan(
		&s.ScheduleID, &s.TaskID, &s.Name, &s.CronExpression, &s.Enabled, &s.Input,
		&nextRun, &lastRun, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if nextRun.Valid {
		s.NextRun = &nextRun.Time
	}
	if lastRun.Valid {
		s.LastRun = &lastRun.Time
	}
	return &s, nil
}
