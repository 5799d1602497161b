package registry

import (
	"context"
	"sync"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// Registry owns a fixed set of discovery sources and the Syncer that lands
// their output in the TaskRepository. Watch mode (filesystem sources only)
// re-runs SyncAll on debounced change events.
type Registry struct {
	cfg     config.RegistryConfig
	sources []Source
	syncer  *Syncer
	log     logger.Logger

	mu       sync.Mutex
	watchers []*Watcher
}

// New builds a Registry over sources. The embedded built-in task set is
// always included ahead of the caller-supplied sources, so it syncs before
// whatever else is configured. A later source that offers the same task id
// and version with different content fails the sync rather than replacing it.
func New(cfg config.RegistryConfig, tasks repository.TaskRepository, log logger.Logger, sources ...Source) *Registry {
	all := append([]Source{NewEmbeddedSource()}, sources...)
	return &Registry{
		cfg:     cfg,
		sources: all,
		syncer:  NewSyncer(tasks, log),
		log:     log,
	}
}

// SyncAll runs every configured source through the syncer once, in order,
// stopping at the first source that fails so a bad remote index can't mask
// a later, good one's failure behind a partial success.
func (r *Registry) SyncAll(ctx context.Context) error {
	for _, source := range r.sources {
		if _, err := r.syncer.Sync(ctx, source); err != nil {
			r.log.Error("registry sync failed", logger.String("source", source.Name()), logger.Error(err))
			return err
		}
	}
	return nil
}

// StartWatch enables filesystem-change-triggered resync for every
// FilesystemSource configured (HTTP/Git/Embedded sources have no watch
// mode; they resync only when SyncAll is called again). Safe to call even
// if cfg.Watch is
// false — it becomes a no-op.
func (r *Registry) StartWatch(ctx context.Context) error {
	if !r.cfg.Watch {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, source := range r.sources {
		fsSource, ok := source.(*FilesystemSource)
		if !ok {
			continue
		}
		w, err := WatchFilesystem(fsSource.root, fsSource.recursive, r.cfg.DebounceInterval, r.log, func() {
			if err := r.SyncAll(ctx); err != nil {
				r.log.Error("resync after filesystem change failed", logger.Error(err))
			}
		})
		if err != nil {
			r.stopWatchersLocked()
			return err
		}
		r.watchers = append(r.watchers, w)
	}
	return nil
}

// StopWatch closes every active filesystem watcher.
func (r *Registry) StopWatch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopWatchersLocked()
}

func (r *Registry) stopWatchersLocked() {
	for _, w := range r.watchers {
		if err := w.Close(); err != nil {
			r.log.Error("failed to close filesystem watcher", logger.Error(err))
		}
	}
	r.watchers = nil
}
