package jobqueue

import (
	"context"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// RepositoryTaskLookup implements TaskLookup against the generic
// TaskRepository.List query: a Job only carries a TaskID, so the task that
// actually runs is whichever enabled version of it sorts highest.
type RepositoryTaskLookup struct {
	tasks repository.TaskRepository
}

func NewRepositoryTaskLookup(tasks repository.TaskRepository) *RepositoryTaskLookup {
	return &RepositoryTaskLookup{tasks: tasks}
}

func (l *RepositoryTaskLookup) FindEnabled(ctx context.Context, taskID uuid.UUID) (*domain.TaskDefinition, error) {
	page, err := l.tasks.List(ctx, []repository.Filter{
		{Field: "task_id", Operator: repository.OpEq, Value: taskID},
		{Field: "enabled", Operator: repository.OpEq, Value: true},
	}, []repository.Sort{
		{Field: "version", Direction: repository.SortDesc},
	}, repository.Pagination{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, errs.NotFound("no enabled task found for task_id %s", taskID)
	}
	return page.Items[0], nil
}
