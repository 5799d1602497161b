// Package scheduler injects Jobs on cron ticks, adapted from
// crawler/internal/job/db_scheduler.go's cron-backed reload loop: Schedule
// rows replace that file's job rows, and NewJobForTick replaces
// executeJob's direct crawl dispatch.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/repository"
)

// JobInjector is implemented by the job queue: the only operation the
// scheduler needs from it is "accept this newly created Job".
type JobInjector interface {
	Enqueue(ctx context.Context, job *domain.Job) error
}

// Scheduler loads enabled Schedule rows, registers one cron entry per row,
// and on each tick creates and enqueues the Normal-priority Job the
// Schedule describes. No catch-up is attempted for ticks missed while the
// process was down — robfig/cron only fires for schedule matches observed
// while it is running.
type Scheduler struct {
	cfg   config.SchedulerConfig
	repo  repository.ScheduleRepository
	queue JobInjector
	log   logger.Logger

	cron       *cron.Cron
	cronParser cron.Parser

	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler. Call Start to begin running cron and the
// reload-interval loop.
func New(cfg config.SchedulerConfig, repo repository.ScheduleRepository, queue JobInjector, log logger.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLoggerAdapter{log})), cron.WithLocation(time.UTC))
	return &Scheduler{
		cfg:        cfg,
		repo:       repo,
		queue:      queue,
		log:        log,
		cron:       c,
		cronParser: parser,
		entries:    make(map[uuid.UUID]cron.EntryID),
	}
}

// Start loads the current enabled schedules, begins the cron runtime and
// launches the periodic reload loop. Call Stop to shut both down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.reload(s.ctx); err != nil {
		s.log.Error("initial schedule load failed", logger.Error(err))
	}
	s.cron.Start()

	s.wg.Add(1)
	go s.reloadLoop()
	return nil
}

// Stop halts the cron runtime and waits for the reload loop to exit. The
// cron context it returns is drained before returning, so no tick fires
// after Stop returns.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
}

func (s *Scheduler) reloadLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.reload(s.ctx); err != nil {
				s.log.Error("schedule reload failed", logger.Error(err))
			}
		}
	}
}

// reload re-reads enabled schedules and replaces the cron entry set so
// schedules disabled or deleted since the last reload stop firing.
func (s *Scheduler) reload(ctx context.Context) error {
	schedules, err := s.repo.FindEnabled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, sched := range schedules {
		if err := s.registerLocked(sched); err != nil {
			s.log.Error("failed to schedule", logger.String("schedule_id", sched.ScheduleID.String()), logger.Error(err))
		}
	}
	s.log.Info("schedules reloaded", logger.Int("count", len(s.entries)))
	return nil
}

// registerLocked adds one cron entry for sched; callers must hold s.mu.
func (s *Scheduler) registerLocked(sched *domain.Schedule) error {
	schedule := sched
	entryID, err := s.cron.AddFunc(schedule.CronExpression, func() {
		s.fire(schedule)
	})
	if err != nil {
		return err
	}
	s.entries[schedule.ScheduleID] = entryID
	return nil
}

// fire is invoked by the cron runtime at a schedule match: it builds the
// Normal-priority Job for this tick, enqueues it and records the run.
func (s *Scheduler) fire(sched *domain.Schedule) {
	now := time.Now().UTC()
	job := sched.NewJobForTick(now)

	if err := s.queue.Enqueue(s.ctx, job); err != nil {
		s.log.Error("failed to enqueue scheduled job",
			logger.String("schedule_id", sched.ScheduleID.String()), logger.Error(err))
		return
	}

	entry, ok := s.lookupEntry(sched.ScheduleID)
	var next time.Time
	if ok {
		next = entry.Next
	}
	if err := s.repo.SetLastRun(s.ctx, sched.ScheduleID, now); err != nil {
		s.log.Error("failed to record schedule last_run", logger.Error(err))
	}
	if !next.IsZero() {
		if err := s.repo.SetNextRun(s.ctx, sched.ScheduleID, next); err != nil {
			s.log.Error("failed to record schedule next_run", logger.Error(err))
		}
	}
}

func (s *Scheduler) lookupEntry(scheduleID uuid.UUID) (cron.Entry, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[scheduleID]
	s.mu.Unlock()
	if !ok {
		return cron.Entry{}, false
	}
	entry := s.cron.Entry(entryID)
	return entry, entry.ID == entryID
}

// cronLoggerAdapter satisfies cron.Logger so panics recovered by
// cron.Recover go through the structured logger instead of stdlib log.
type cronLoggerAdapter struct {
	log logger.Logger
}

func (a cronLoggerAdapter) Info(msg string, keysAndValues ...any) {
	a.log.Debug(msg, logger.Any("fields", keysAndValues))
}

func (a cronLoggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.log.Error(msg, logger.Error(err), logger.Any("fields", keysAndValues))
}
