package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
)

func TestTaskRepository_Create_DuplicateVersionIsValidationError(t *testing.T) {
	f, mock := newMockFactory(t)
	task := domain.NewTaskDefinition("greet", "1.0.0", "filesystem")
	task.InputSchema = []byte(`{}`)
	task.OutputSchema = []byte(`{}`)
	task.Script = "export default () => {}"

	mock.ExpectExec("INSERT INTO tasks").WillReturnError(&pq.Error{Code: "23505"})

	_, err := f.tasks.Create(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, errs.CategoryValidation, errs.CategoryOf(err))
}

func TestTaskRepository_Delete_RefusesWhenExecutionsExist(t *testing.T) {
	f, mock := newMockFactory(t)
	taskID := uuid.New()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM executions").
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	deleted, err := f.tasks.Delete(context.Background(), taskID, "1.0.0")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTaskRepository_Delete_SucceedsWithNoDependents(t *testing.T) {
	f, mock := newMockFactory(t)
	taskID := uuid.New()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM executions").
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM tasks").
		WithArgs(taskID, "1.0.0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := f.tasks.Delete(context.Background(), taskID, "1.0.0")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestTaskRepository_MarkValidated_NotFound(t *testing.T) {
	f, mock := newMockFactory(t)
	taskID := uuid.New()

	mock.ExpectExec("UPDATE tasks SET validated_at").
		WithArgs(taskID, "1.0.0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := f.tasks.MarkValidated(context.Background(), taskID, "1.0.0", time.Now())
	require.Error(t, err)
	assert.Equal(t, errs.CategoryNotFound, errs.CategoryOf(err))
}
