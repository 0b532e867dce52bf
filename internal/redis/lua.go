package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// ClaimDueJobsScript pops up to ARGV[2] members of the schedule zset whose
	// score is <= ARGV[1] and returns them with their payload hash value.
	// KEYS[1] = schedule zset, KEYS[2] = payload hash.
	ClaimDueJobsScript = `
		local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
		local out = {}
		for _, name in ipairs(due) do
			if redis.call('ZREM', KEYS[1], name) == 1 then
				local payload = redis.call('HGET', KEYS[2], name)
				redis.call('HDEL', KEYS[2], name)
				table.insert(out, name)
				table.insert(out, payload or '')
			end
		end
		return out
	`

	// ScheduleJobScript replaces the pending run of a job atomically.
	// KEYS[1] = schedule zset, KEYS[2] = payload hash,
	// ARGV[1] = name, ARGV[2] = run at (unix ms), ARGV[3] = payload.
	ScheduleJobScript = `
		redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
		redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
		return 1
	`
)

// LuaScript holds the preloaded scripts used by the job store
type LuaScript struct {
	client redis.Cmdable

	claimScript    *redis.Script
	scheduleScript *redis.Script
}

// NewLuaScript creates the script manager
func NewLuaScript(client redis.Cmdable) *LuaScript {
	return &LuaScript{
		client:         client,
		claimScript:    redis.NewScript(ClaimDueJobsScript),
		scheduleScript: redis.NewScript(ScheduleJobScript),
	}
}

// LoadScripts preloads every script so the first call uses EVALSHA
func (ls *LuaScript) LoadScripts(ctx context.Context) error {
	for _, script := range []*redis.Script{ls.claimScript, ls.scheduleScript} {
		if err := script.Load(ctx, ls.client).Err(); err != nil {
			return fmt.Errorf("failed to load lua script: %w", err)
		}
	}
	return nil
}

// ScheduleJob upserts a job's next run and payload
func (ls *LuaScript) ScheduleJob(ctx context.Context, scheduleKey, dataKey, name string, runAtMillis int64, payload string) error {
	return ls.scheduleScript.Run(ctx, ls.client, []string{scheduleKey, dataKey}, name, runAtMillis, payload).Err()
}

// ClaimDueJobs removes and returns jobs due at nowMillis as name -> payload
func (ls *LuaScript) ClaimDueJobs(ctx context.Context, scheduleKey, dataKey string, nowMillis int64, limit int) (map[string]string, error) {
	result, err := ls.claimScript.Run(ctx, ls.client, []string{scheduleKey, dataKey}, nowMillis, limit).Result()
	if err != nil {
		return nil, err
	}

	items, ok := result.([]interface{})
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("invalid script result: %T", result)
	}

	claimed := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		name, _ := items[i].(string)
		payload, _ := items[i+1].(string)
		claimed[name] = payload
	}
	return claimed, nil
}
