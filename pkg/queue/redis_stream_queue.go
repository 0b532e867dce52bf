package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fanhub/pkg/log"
)

const (
	payloadField    = "payload"
	deadLetterField = "error"
)

// RedisStreamConfig configures a Redis Streams backed queue
type RedisStreamConfig struct {
	Consumer      string        `mapstructure:"consumer"`
	MaxLen        int64         `mapstructure:"max_len"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
	BatchSize     int64         `mapstructure:"batch_size"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
	Retry         RetryPolicy   `mapstructure:"retry"`
	OnDeadLetter  DeadLetterFunc
}

// RedisStreamQueue maps streams to Redis streams and groups to consumer
// groups. A failed message stays pending and is reclaimed once it has been
// idle for ClaimMinIdle; after Retry.MaxAttempts deliveries it is copied to
// "<stream>:dead" and acknowledged.
type RedisStreamQueue struct {
	client redis.UniversalClient
	config *RedisStreamConfig

	mu     sync.Mutex
	groups map[string]struct{}
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRedisStreamQueue creates a queue on top of an existing client
func NewRedisStreamQueue(client redis.UniversalClient, config *RedisStreamConfig) *RedisStreamQueue {
	if config == nil {
		config = &RedisStreamConfig{}
	}
	if config.Consumer == "" {
		config.Consumer = "consumer-1"
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = 30 * time.Second
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = config.ClaimMinIdle / 2
	}
	config.Retry = config.Retry.normalize()

	return &RedisStreamQueue{
		client: client,
		config: config,
		groups: make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// DeadLetterStream names the stream holding exhausted messages of stream
func DeadLetterStream(stream string) string {
	return stream + ":dead"
}

// Enqueue appends the payload with XADD
func (q *RedisStreamQueue) Enqueue(ctx context.Context, stream string, payload []byte) (string, error) {
	if q.isClosed() {
		return "", ErrQueueClosed
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: payload},
	}
	if q.config.MaxLen > 0 {
		args.MaxLen = q.config.MaxLen
		args.Approx = true
	}

	id, err := q.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// Consume creates the consumer group if needed and starts reading
func (q *RedisStreamQueue) Consume(ctx context.Context, stream, group string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	key := stream + "|" + group
	if _, ok := q.groups[key]; ok {
		return ErrGroupExists
	}

	// "$" so a new group only sees messages published after it exists
	err := q.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	q.groups[key] = struct{}{}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-q.done:
		case <-ctx.Done():
		}
		cancel()
	}()

	q.wg.Add(2)
	go q.readLoop(ctx, stream, group, handler)
	go q.claimLoop(ctx, stream, group, handler)
	return nil
}

func (q *RedisStreamQueue) readLoop(ctx context.Context, stream, group string, handler Handler) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: q.config.Consumer,
			Streams:  []string{stream, ">"},
			Count:    q.config.BatchSize,
			Block:    q.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.sleep(ctx, q.config.Retry.Backoff)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				q.handle(ctx, stream, group, msg, handler)
			}
		}
	}
}

func (q *RedisStreamQueue) claimLoop(ctx context.Context, stream, group string, handler Handler) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reclaim(ctx, stream, group, handler)
		}
	}
}

// reclaim takes over messages left pending by failed or crashed consumers
func (q *RedisStreamQueue) reclaim(ctx context.Context, stream, group string, handler Handler) {
	start := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: q.config.Consumer,
			MinIdle:  q.config.ClaimMinIdle,
			Start:    start,
			Count:    q.config.BatchSize,
		}).Result()
		if err != nil {
			return
		}
		for _, msg := range msgs {
			q.handle(ctx, stream, group, msg, handler)
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (q *RedisStreamQueue) handle(ctx context.Context, stream, group string, msg redis.XMessage, handler Handler) {
	attempts, err := q.client.HIncrBy(ctx, attemptsKey(stream, group), msg.ID, 1).Result()
	if err != nil {
		return
	}

	d := &Delivery{
		ID:      msg.ID,
		Stream:  stream,
		Group:   group,
		Payload: payloadOf(msg),
		Attempt: int(attempts),
	}

	herr := handler(ctx, d)
	if herr == nil {
		q.ack(ctx, stream, group, msg.ID)
		return
	}

	if d.Attempt >= q.config.Retry.MaxAttempts {
		// an unwritten dead letter stays pending and is claimed again
		err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: DeadLetterStream(stream),
			Values: map[string]interface{}{
				payloadField:    d.Payload,
				"group":         group,
				"source_id":     msg.ID,
				"attempts":      d.Attempt,
				deadLetterField: herr.Error(),
			},
		}).Err()
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"stream":   stream,
				"group":    group,
				"event_id": msg.ID,
				"attempt":  d.Attempt,
			}).Error("Failed to write dead letter, leaving message pending")
			return
		}
		q.ack(ctx, stream, group, msg.ID)
		if q.config.OnDeadLetter != nil {
			q.config.OnDeadLetter(d, herr)
		}
	}
}

func (q *RedisStreamQueue) ack(ctx context.Context, stream, group, id string) {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, stream, group, id)
	pipe.HDel(ctx, attemptsKey(stream, group), id)
	_, _ = pipe.Exec(ctx)
}

func attemptsKey(stream, group string) string {
	return stream + ":attempts:" + group
}

func payloadOf(msg redis.XMessage) []byte {
	switch v := msg.Values[payloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

func (q *RedisStreamQueue) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (q *RedisStreamQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops the consumers. The client is owned by the caller.
func (q *RedisStreamQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Health pings Redis
func (q *RedisStreamQueue) Health(ctx context.Context) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	return q.client.Ping(ctx).Err()
}
