package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fanhub/internal/monitor"
	"fanhub/pkg/log"
)

// ErrUnknownJob is returned when scheduling a name nobody defined
var ErrUnknownJob = errors.New("job not defined")

// Config scheduler configuration
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Scheduler polls the store and runs due jobs
type Scheduler struct {
	store   Store
	config  Config
	metrics *monitor.MetricsCollector
	tracer  *monitor.Tracer
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a scheduler. metrics and tracer may be nil.
func New(store Store, config Config, metrics *monitor.MetricsCollector, tracer *monitor.Tracer) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Scheduler{
		store:    store,
		config:   config,
		metrics:  metrics,
		tracer:   tracer,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
}

// Define registers the handler of name
func (s *Scheduler) Define(name string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[name]; ok {
		return fmt.Errorf("job %s already defined", name)
	}
	s.handlers[name] = handler
	return nil
}

func (s *Scheduler) handler(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

// ScheduleOnce runs name once after delay, replacing any pending run
func (s *Scheduler) ScheduleOnce(ctx context.Context, delay time.Duration, name string, data interface{}) error {
	return s.schedule(ctx, name, data, delay, 0)
}

// ScheduleRecurring runs name every interval, first after one interval
func (s *Scheduler) ScheduleRecurring(ctx context.Context, interval time.Duration, name string, data interface{}) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	return s.schedule(ctx, name, data, interval, interval)
}

func (s *Scheduler) schedule(ctx context.Context, name string, data interface{}, delay, interval time.Duration) error {
	if _, ok := s.handler(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal job %s data: %w", name, err)
		}
		raw = b
	}

	return s.store.Save(ctx, &Job{
		Name:     name,
		Data:     raw,
		Interval: interval,
		RunAt:    s.now().Add(delay),
	})
}

// Cancel drops the pending run of name
func (s *Scheduler) Cancel(ctx context.Context, name string) error {
	return s.store.Remove(ctx, name)
}

// Run polls for due jobs until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	log.WithField("poll_interval", s.config.PollInterval).Info("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil {
				log.WithError(err).Error("Failed to run due jobs")
			}
		}
	}
}

// RunDue claims and runs every job due now and returns how many ran. A
// recurring job is put back before its handler runs.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.now()
	jobs, err := s.store.ClaimDue(ctx, now, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, job := range jobs {
		h, ok := s.handler(job.Name)
		if !ok {
			log.WithField("job", job.Name).Warn("Claimed job has no handler, dropping it")
			continue
		}

		if job.Recurring() {
			next := *job
			next.RunAt = now.Add(job.Interval)
			if err := s.store.Save(ctx, &next); err != nil {
				log.WithError(err).WithField("job", job.Name).Error("Failed to reschedule recurring job")
			}
		}

		s.execute(ctx, h, job)
		ran++
	}
	return ran, nil
}

func (s *Scheduler) execute(ctx context.Context, h Handler, job *Job) {
	ctx, span := s.tracer.StartJobSpan(ctx, job.Name)
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return h(ctx, job)
	}()

	if err != nil {
		s.metrics.RecordJobRun(job.Name, "error")
		s.tracer.RecordError(span, err)
		log.WithContext(ctx).WithError(err).WithField("job", job.Name).Error("Job failed")
		return
	}
	s.metrics.RecordJobRun(job.Name, "ok")
}
