package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	fredis "fanhub/internal/redis"
	"fanhub/pkg/log"
)

// RedisStore keeps run times in a sorted set and job bodies in a hash
type RedisStore struct {
	client      redis.Cmdable
	scripts     *fredis.LuaScript
	scheduleKey string
	dataKey     string
}

// NewRedisStore creates a store with keys under prefix
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{
		client:      client,
		scripts:     fredis.NewLuaScript(client),
		scheduleKey: prefix + "schedule",
		dataKey:     prefix + "data",
	}
}

// Preload loads the store scripts into Redis ahead of the first poll
func (s *RedisStore) Preload(ctx context.Context) error {
	return s.scripts.LoadScripts(ctx)
}

// Save schedules job, replacing any pending run with the same name
func (s *RedisStore) Save(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.Name, err)
	}
	return s.scripts.ScheduleJob(ctx, s.scheduleKey, s.dataKey, job.Name, job.RunAt.UnixMilli(), string(payload))
}

// Remove cancels the pending run of name
func (s *RedisStore) Remove(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.scheduleKey, name)
	pipe.HDel(ctx, s.dataKey, name)
	_, err := pipe.Exec(ctx)
	return err
}

// ClaimDue atomically takes the due runs
func (s *RedisStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	claimed, err := s.scripts.ClaimDueJobs(ctx, s.scheduleKey, s.dataKey, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(claimed))
	for name, payload := range claimed {
		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			log.WithError(err).WithField("job", name).Error("Dropping undecodable job")
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Pending returns the pending run of name
func (s *RedisStore) Pending(ctx context.Context, name string) (*Job, error) {
	payload, err := s.client.HGet(ctx, s.dataKey, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
