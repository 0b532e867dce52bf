// Package transition activates feeds and streams whose scheduled time has
// come and announces each activation on the bus.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fanhub/internal/event"
	"fanhub/internal/eventbus"
	"fanhub/internal/model"
	"fanhub/internal/monitor"
	"fanhub/internal/repository"
	"fanhub/internal/scheduler"
	"fanhub/pkg/lock"
	"fanhub/pkg/log"
)

// JobName is the scheduler job driving the runner
const JobName = "transition-scheduled-entities"

const lockKey = "lock:" + JobName

// JobScheduler is the part of the scheduler the runner uses
type JobScheduler interface {
	Define(name string, handler scheduler.Handler) error
	ScheduleOnce(ctx context.Context, delay time.Duration, name string, data interface{}) error
	Cancel(ctx context.Context, name string) error
}

// Config runner timing
type Config struct {
	Interval      time.Duration
	RetryInterval time.Duration
	InitialDelay  time.Duration
	BatchSize     int
	LockTTL       time.Duration
}

// Runner scans every source for due rows once per cycle
type Runner struct {
	jobs      JobScheduler
	sources   []repository.ScheduledRepository
	publisher eventbus.Publisher
	lock      *lock.RedisLock
	config    Config
	metrics   *monitor.MetricsCollector
	now       func() time.Time
}

// NewRunner creates a runner over sources
func NewRunner(
	jobs JobScheduler,
	publisher eventbus.Publisher,
	client redis.Cmdable,
	config Config,
	metrics *monitor.MetricsCollector,
	sources ...repository.ScheduledRepository,
) *Runner {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 20 * time.Second
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	if config.LockTTL <= 0 {
		config.LockTTL = time.Minute
	}
	return &Runner{
		jobs:      jobs,
		sources:   sources,
		publisher: publisher,
		lock:      lock.NewRedisLock(client, lockKey, config.LockTTL),
		config:    config,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Start defines the job, drops whatever run a previous process left behind
// and schedules the first run.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.jobs.Define(JobName, r.handle); err != nil {
		return err
	}
	if err := r.jobs.Cancel(ctx, JobName); err != nil {
		return fmt.Errorf("cancel previous transition job: %w", err)
	}
	if err := r.jobs.ScheduleOnce(ctx, r.config.InitialDelay, JobName, nil); err != nil {
		return fmt.Errorf("schedule transition job: %w", err)
	}

	log.WithFields(log.Fields{
		"initial_delay": r.config.InitialDelay,
		"interval":      r.config.Interval,
	}).Info("Transition runner scheduled")
	return nil
}

// handle is one scheduled cycle. The next run is booked before any work so
// a crash mid-cycle cannot stop the chain.
func (r *Runner) handle(ctx context.Context, _ *scheduler.Job) error {
	if err := r.jobs.ScheduleOnce(ctx, r.config.Interval, JobName, nil); err != nil {
		log.WithError(err).Error("Failed to schedule next transition run")
	}

	if _, err := r.RunOnce(ctx); err != nil {
		r.metrics.RecordJobRun(JobName, "retry")
		if serr := r.jobs.ScheduleOnce(ctx, r.config.RetryInterval, JobName, nil); serr != nil {
			log.WithError(serr).Error("Failed to schedule transition retry")
		}
		return err
	}
	return nil
}

// RunOnce activates every due row and returns how many were activated. A
// cycle already running on another instance makes this a no-op.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	activated := 0
	err := r.lock.WithLock(ctx, func(ctx context.Context) error {
		var firstErr error
		for _, source := range r.sources {
			n, err := r.activate(ctx, source)
			activated += n
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("activate %s: %w", source.Entity(), err)
			}
		}
		return firstErr
	})
	if errors.Is(err, lock.ErrLockFailed) {
		log.WithField("lock", r.lock.Key()).Debug("Transition cycle held by another instance")
		return 0, nil
	}
	return activated, err
}

// activate drains source in batches until a batch comes back short or
// activates nothing.
func (r *Runner) activate(ctx context.Context, source repository.ScheduledRepository) (int, error) {
	now := r.now()
	activated := 0
	for {
		items, err := source.FindDue(ctx, now, r.config.BatchSize)
		if err != nil {
			return activated, err
		}

		batch := 0
		for _, item := range items {
			ok, err := source.Activate(ctx, item.ID, now)
			if err != nil {
				return activated + batch, err
			}
			if !ok {
				continue
			}
			batch++
			r.metrics.RecordTransition(source.Entity())
			r.announce(ctx, source.Entity(), item, now)
		}
		activated += batch

		if len(items) < r.config.BatchSize || batch == 0 {
			break
		}
	}

	if activated > 0 {
		log.WithFields(log.Fields{
			"entity":    source.Entity(),
			"activated": activated,
		}).Info("Scheduled entities activated")
	}
	return activated, nil
}

func (r *Runner) announce(ctx context.Context, entity string, item repository.ScheduledItem, now time.Time) {
	payload := &event.TransitionPayload{
		EntityType:  entity,
		EntityID:    item.ID,
		PerformerID: item.PerformerID,
		OldStatus:   item.Status,
		Status:      model.StatusActive,
		ScheduledAt: item.ScheduledAt,
		ActivatedAt: now,
	}
	if _, err := r.publisher.Publish(ctx, entity, event.Activated, payload); err != nil {
		// the row is live already; the event can be replayed from the log
		log.WithError(err).WithFields(log.Fields{
			"entity":    entity,
			"entity_id": item.ID,
		}).Error("Failed to publish transition")
	}
}
