// Package scheduler runs named jobs at a later time. Pending runs live in
// Redis so they survive restarts, and a run is claimed atomically so only
// one instance executes it.
package scheduler

import (
	"context"
	"encoding/json"
	"time"
)

// Job is the pending run of a named job. A job with Interval > 0 is
// recurring and is put back Interval after each claim.
type Job struct {
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data,omitempty"`
	Interval time.Duration   `json:"interval,omitempty"`
	RunAt    time.Time       `json:"run_at"`
}

// Recurring reports whether the job repeats
func (j *Job) Recurring() bool {
	return j.Interval > 0
}

// Bind decodes the job data into v
func (j *Job) Bind(v interface{}) error {
	if len(j.Data) == 0 {
		return nil
	}
	return json.Unmarshal(j.Data, v)
}

// Handler executes one run of a job
type Handler func(ctx context.Context, job *Job) error

// Store persists pending runs. There is at most one pending run per name.
type Store interface {
	// Save replaces the pending run of job.Name
	Save(ctx context.Context, job *Job) error

	// Remove drops the pending run of name, if any
	Remove(ctx context.Context, name string) error

	// ClaimDue removes and returns up to limit runs due at now
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// Pending returns the pending run of name, or nil
	Pending(ctx context.Context, name string) (*Job, error)
}
