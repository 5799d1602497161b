// Package postgres implements the repository package's contracts on top of
// database/sql and github.com/lib/pq, grounded on
// pipeline/internal/database/repository.go's plain database/sql style.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// factory is a repository.Factory backed by a single *sql.DB shared by all
// four sub-repositories.
type factory struct {
	db         *sql.DB
	tasks      *taskRepository
	executions *executionRepository
	jobs       *jobRepository
	schedules  *scheduleRepository
}

// Open establishes the database connection and wraps it in a
// repository.Factory.
func Open(cfg config.DatabaseConfig) (repository.Factory, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewFactory(db), nil
}

// NewFactory wraps an already-open *sql.DB, used directly by tests with
// go-sqlmock in place of Open.
func NewFactory(db *sql.DB) repository.Factory {
	return &factory{
		db:         db,
		tasks:      &taskRepository{db: db},
		executions: &executionRepository{db: db},
		jobs:       &jobRepository{db: db},
		schedules:  &scheduleRepository{db: db},
	}
}

func (f *factory) Tasks() repository.TaskRepository           { return f.tasks }
func (f *factory) Executions() repository.ExecutionRepository { return f.executions }
func (f *factory) Jobs() repository.JobRepository             { return f.jobs }
func (f *factory) Schedules() repository.ScheduleRepository   { return f.schedules }
func (f *factory) Close() error                               { return f.db.Close() }
