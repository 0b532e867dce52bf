package queue

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue is an in-process Queue. Messages live only as long as the
// process; it backs tests and single-node development setups.
type MemoryQueue struct {
	config *MemoryQueueConfig

	mu      sync.RWMutex
	streams map[string]*memoryStream
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup

	seq atomic.Uint64

	flushMu  sync.Mutex
	inflight int
	waiters  []chan struct{}

	deadMu      sync.Mutex
	deadLetters []*Delivery
}

type memoryStream struct {
	groups map[string]*memoryGroup
}

// memoryGroup is one consumer group's buffer. quit closes before the worker
// drains the buffer for the last time.
type memoryGroup struct {
	name string
	ch   chan *Delivery
	quit chan struct{}
}

// MemoryQueueConfig memory queue configuration
type MemoryQueueConfig struct {
	BufferSize   int            `json:"buffer_size"`
	Timeout      time.Duration  `json:"timeout"`
	Retry        RetryPolicy    `json:"retry"`
	OnDeadLetter DeadLetterFunc `json:"-"`
}

// NewMemoryQueue creates a new memory queue instance
func NewMemoryQueue(config *MemoryQueueConfig) *MemoryQueue {
	if config == nil {
		config = &MemoryQueueConfig{}
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	config.Retry = config.Retry.normalize()

	return &MemoryQueue{
		config:  config,
		streams: make(map[string]*memoryStream),
		done:    make(chan struct{}),
	}
}

// Enqueue copies the message into the buffer of every group on the stream.
// Groups are snapshotted under the lock; the sends happen after it is
// released.
func (mq *MemoryQueue) Enqueue(ctx context.Context, stream string, payload []byte) (string, error) {
	mq.mu.RLock()
	if mq.closed {
		mq.mu.RUnlock()
		return "", ErrQueueClosed
	}
	id := strconv.FormatUint(mq.seq.Add(1), 10)
	var groups []*memoryGroup
	if s, ok := mq.streams[stream]; ok {
		groups = make([]*memoryGroup, 0, len(s.groups))
		for _, g := range s.groups {
			groups = append(groups, g)
		}
	}
	mq.mu.RUnlock()

	if len(groups) == 0 {
		return id, nil
	}

	timer := time.NewTimer(mq.config.Timeout)
	defer timer.Stop()

	for _, g := range groups {
		d := &Delivery{ID: id, Stream: stream, Group: g.name, Payload: payload}
		mq.track(1)
		select {
		case g.ch <- d:
			mq.reclaimIfGone(g)
		case <-g.quit:
			// the worker is gone; nobody will ever handle this copy
			mq.track(-1)
		case <-ctx.Done():
			mq.track(-1)
			return "", ctx.Err()
		case <-timer.C:
			mq.track(-1)
			return "", ErrPublishTimeout
		}
	}
	return id, nil
}

// reclaimIfGone takes back one buffered message when the send raced with the
// worker's final drain. Each late sender pulls at most once.
func (mq *MemoryQueue) reclaimIfGone(g *memoryGroup) {
	select {
	case <-g.quit:
	default:
		return
	}
	select {
	case <-g.ch:
		mq.track(-1)
	default:
	}
}

// Consume registers group on stream and starts its worker
func (mq *MemoryQueue) Consume(ctx context.Context, stream, group string, handler Handler) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return ErrQueueClosed
	}

	s, ok := mq.streams[stream]
	if !ok {
		s = &memoryStream{groups: make(map[string]*memoryGroup)}
		mq.streams[stream] = s
	}
	if _, exists := s.groups[group]; exists {
		return ErrGroupExists
	}

	g := &memoryGroup{
		name: group,
		ch:   make(chan *Delivery, mq.config.BufferSize),
		quit: make(chan struct{}),
	}
	s.groups[group] = g

	mq.wg.Add(1)
	go mq.work(ctx, stream, g, handler)
	return nil
}

func (mq *MemoryQueue) work(ctx context.Context, stream string, g *memoryGroup, handler Handler) {
	defer mq.wg.Done()
	for {
		select {
		case d := <-g.ch:
			mq.deliver(ctx, d, handler)
			mq.track(-1)
		case <-ctx.Done():
			mq.mu.Lock()
			if s, ok := mq.streams[stream]; ok && s.groups[g.name] == g {
				delete(s.groups, g.name)
			}
			mq.mu.Unlock()
			close(g.quit)
			mq.discard(g.ch)
			return
		case <-mq.done:
			close(g.quit)
			mq.discard(g.ch)
			return
		}
	}
}

// deliver runs handler until it succeeds or the retry policy gives up
func (mq *MemoryQueue) deliver(ctx context.Context, d *Delivery, handler Handler) {
	policy := mq.config.Retry
	for attempt := 1; ; attempt++ {
		d.Attempt = attempt
		err := handler(ctx, d)
		if err == nil {
			return
		}
		if attempt >= policy.MaxAttempts {
			mq.deadMu.Lock()
			mq.deadLetters = append(mq.deadLetters, d)
			mq.deadMu.Unlock()
			if mq.config.OnDeadLetter != nil {
				mq.config.OnDeadLetter(d, err)
			}
			return
		}

		wait := time.NewTimer(policy.Backoff * time.Duration(attempt))
		select {
		case <-wait.C:
		case <-ctx.Done():
			wait.Stop()
			return
		case <-mq.done:
			wait.Stop()
			return
		}
	}
}

// discard releases flush accounting for messages that will never run
func (mq *MemoryQueue) discard(ch chan *Delivery) {
	for {
		select {
		case <-ch:
			mq.track(-1)
		default:
			return
		}
	}
}

func (mq *MemoryQueue) track(delta int) {
	mq.flushMu.Lock()
	defer mq.flushMu.Unlock()

	mq.inflight += delta
	if mq.inflight <= 0 {
		mq.inflight = 0
		for _, w := range mq.waiters {
			close(w)
		}
		mq.waiters = nil
	}
}

// Flush blocks until every enqueued message, including messages enqueued
// by handlers while flushing, has been handled or dead-lettered.
func (mq *MemoryQueue) Flush(ctx context.Context) error {
	mq.flushMu.Lock()
	if mq.inflight == 0 {
		mq.flushMu.Unlock()
		return nil
	}
	w := make(chan struct{})
	mq.waiters = append(mq.waiters, w)
	mq.flushMu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetters returns the messages that exhausted their retries
func (mq *MemoryQueue) DeadLetters() []*Delivery {
	mq.deadMu.Lock()
	defer mq.deadMu.Unlock()
	out := make([]*Delivery, len(mq.deadLetters))
	copy(out, mq.deadLetters)
	return out
}

// Close stops all workers and drops undelivered messages
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	if mq.closed {
		mq.mu.Unlock()
		return nil
	}
	mq.closed = true
	close(mq.done)
	mq.mu.Unlock()

	mq.wg.Wait()

	mq.flushMu.Lock()
	pending := mq.inflight
	mq.flushMu.Unlock()
	mq.track(-pending)
	return nil
}

// Health checks the health of the queue
func (mq *MemoryQueue) Health(ctx context.Context) error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}
	return nil
}
