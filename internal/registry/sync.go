package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// SyncOutcome counts what one sync pass did.
type SyncOutcome struct {
	Created int
	Skipped int // already stored with a matching checksum, nothing to do
}

// Syncer upserts discovered tasks into a TaskRepository, keyed by
// (TaskID, Version). Version identity is expected to be stable: a task
// whose content changed without a new version number is a conflict and
// fails the sync rather than silently overwriting whatever is already
// stored at that key, since other components (the result cache, stored
// Executions) key off exactly that pair.
type Syncer struct {
	tasks repository.TaskRepository
	log   logger.Logger
}

func NewSyncer(tasks repository.TaskRepository, log logger.Logger) *Syncer {
	return &Syncer{tasks: tasks, log: log}
}

// Sync discovers tasks from source and upserts each into the store.
func (sy *Syncer) Sync(ctx context.Context, source Source) (SyncOutcome, error) {
	discovered, err := source.Discover(ctx)
	if err != nil {
		return SyncOutcome{}, err
	}

	var outcome SyncOutcome
	for _, d := range discovered {
		created, err := sy.upsert(ctx, source.Name(), d)
		if err != nil {
			return outcome, err
		}
		if created {
			outcome.Created++
		} else {
			outcome.Skipped++
		}
	}
	sy.log.Info("registry sync complete",
		logger.String("source", source.Name()),
		logger.Int("created", outcome.Created),
		logger.Int("skipped", outcome.Skipped),
	)
	return outcome, nil
}

func (sy *Syncer) upsert(ctx context.Context, sourceName string, d DiscoveredTask) (created bool, err error) {
	taskID, err := uuid.Parse(d.TaskID)
	if err != nil {
		return false, errs.Validation("discovered task %q has an invalid uuid %q: %v", d.Name, d.TaskID, err)
	}

	existing, err := sy.tasks.FindByID(ctx, taskID, d.Version)
	if err != nil && errs.CategoryOf(err) != errs.CategoryNotFound {
		return false, err
	}
	if existing != nil {
		if existing.Checksum == d.Checksum {
			return false, nil
		}
		return false, errs.Validation(
			"task %s version %s changed content without a version bump (source %s); "+
				"bump the task's version to resync", taskID, d.Version, sourceName)
	}

	task := domain.NewTaskDefinition(d.Name, d.Version, sourceName)
	task.TaskID = taskID
	task.Description = d.Description
	task.Tags = d.Tags
	task.Script = d.Script
	task.InputSchema = d.InputSchema
	task.OutputSchema = d.OutputSchema
	task.Checksum = d.Checksum
	if _, err := sy.tasks.Create(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}
