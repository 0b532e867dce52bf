package queue

import (
	"context"
	"errors"
	"time"
)

// Queue is a durable fan-out log. Every consumer group on a stream receives
// each message at least once; groups never compete with each other, while
// consumers within a group do.
type Queue interface {
	// Enqueue appends a message and returns its queue-assigned id. Enqueueing
	// on a stream nobody consumes succeeds.
	Enqueue(ctx context.Context, stream string, payload []byte) (string, error)

	// Consume starts delivering stream messages to handler under the given
	// group until ctx is cancelled or the queue is closed. It returns once
	// the group is registered.
	Consume(ctx context.Context, stream, group string, handler Handler) error

	// Close stops all consumers
	Close() error

	// Health checks the health of the queue
	Health(ctx context.Context) error
}

// Flusher is implemented by queues that can wait for in-flight work
type Flusher interface {
	Flush(ctx context.Context) error
}

// Delivery is one attempt to hand a message to a consumer group
type Delivery struct {
	ID      string
	Stream  string
	Group   string
	Payload []byte
	Attempt int
}

// Handler processes a delivery. A non-nil error leaves the message
// unacknowledged so it is delivered again.
type Handler func(ctx context.Context, d *Delivery) error

// DeadLetterFunc observes messages that exhausted their attempts
type DeadLetterFunc func(d *Delivery, err error)

// RetryPolicy bounds redelivery of failing messages
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	return p
}

// Common errors
var (
	ErrQueueClosed    = errors.New("queue is closed")
	ErrPublishTimeout = errors.New("publish timeout")
	ErrGroupExists    = errors.New("consumer group already consuming this stream")
)
