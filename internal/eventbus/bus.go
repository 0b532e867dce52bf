// Package eventbus routes domain events from publishers to listeners over a
// backing queue. Each (channel, topic) subscription is its own consumer
// group, so every topic receives every event on its channel at least once.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fanhub/internal/event"
	"fanhub/internal/monitor"
	"fanhub/pkg/log"
	"fanhub/pkg/queue"
	"fanhub/pkg/utils"
)

// Handler processes one event. Returning an error leaves the event to be
// redelivered according to the queue's retry policy.
type Handler func(ctx context.Context, evt *event.Event) error

// EnqueueAck identifies a published event
type EnqueueAck struct {
	EventID   string
	MessageID string
}

// Publisher is the publishing half of the bus
type Publisher interface {
	Publish(ctx context.Context, channel, name string, payload interface{}) (EnqueueAck, error)
}

// ErrDuplicateSubscription is returned when a (channel, topic) pair is
// registered twice
var ErrDuplicateSubscription = errors.New("duplicate subscription")

// Config tunes the bus
type Config struct {
	StreamPrefix string
	PublishWait  time.Duration
}

type subscription struct {
	channel string
	topic   string
	handler Handler
}

// Bus is the in-process face of the event backbone
type Bus struct {
	queue   queue.Queue
	config  Config
	metrics *monitor.MetricsCollector
	tracer  *monitor.Tracer

	mu      sync.Mutex
	subs    map[string]*subscription
	order   []string
	runCtx  context.Context
	started bool
}

// NewBus creates a bus on top of q. metrics and tracer may be nil.
func NewBus(q queue.Queue, config Config, metrics *monitor.MetricsCollector, tracer *monitor.Tracer) *Bus {
	if config.PublishWait <= 0 {
		config.PublishWait = 5 * time.Second
	}
	return &Bus{
		queue:   q,
		config:  config,
		metrics: metrics,
		tracer:  tracer,
		subs:    make(map[string]*subscription),
	}
}

// Stream returns the queue stream backing a channel
func (b *Bus) Stream(channel string) string {
	return b.config.StreamPrefix + channel
}

// Subscribe registers handler under topic for events on channel. When the
// bus is already running the consumer starts immediately.
func (b *Bus) Subscribe(channel, topic string, handler Handler) error {
	if channel == "" || topic == "" || handler == nil {
		return utils.NewError(utils.CodeInvalidParam, "channel, topic and handler are required")
	}

	b.mu.Lock()
	k := channel + "/" + topic
	if _, ok := b.subs[k]; ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, k)
	}
	sub := &subscription{channel: channel, topic: topic, handler: handler}
	b.subs[k] = sub
	b.order = append(b.order, k)
	started, runCtx := b.started, b.runCtx
	b.mu.Unlock()

	log.WithFields(log.Fields{"channel": channel, "topic": topic}).Info("Listener subscribed")

	if started {
		return b.consume(runCtx, sub)
	}
	return nil
}

// Start begins consuming for every registered subscription. Consumers run
// until ctx is cancelled; Start returns once all of them are attached.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("event bus already started")
	}
	b.started = true
	b.runCtx = ctx
	subs := make([]*subscription, 0, len(b.order))
	for _, k := range b.order {
		subs = append(subs, b.subs[k])
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.consume(ctx, sub)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}

	log.WithField("subscriptions", len(subs)).Info("Event bus started")
	return nil
}

func (b *Bus) consume(ctx context.Context, sub *subscription) error {
	if err := b.queue.Consume(ctx, b.Stream(sub.channel), sub.topic, b.dispatcher(sub)); err != nil {
		return fmt.Errorf("consume %s/%s: %w", sub.channel, sub.topic, err)
	}
	return nil
}

// Publish stamps, encodes and enqueues an event. Publishing on a channel
// without listeners succeeds. Any enqueue failure is a delivery error.
func (b *Bus) Publish(ctx context.Context, channel, name string, payload interface{}) (EnqueueAck, error) {
	ctx, span := b.tracer.StartPublishSpan(ctx, channel, name)
	defer span.End()

	id := uuid.NewString()
	data, err := event.Encode(id, channel, name, payload, time.Now().UTC())
	if err != nil {
		b.metrics.RecordPublish(channel, name, "error")
		b.tracer.RecordError(span, err)
		return EnqueueAck{}, utils.WrapError(err, utils.CodeDelivery, "failed to encode event")
	}

	pctx, cancel := context.WithTimeout(ctx, b.config.PublishWait)
	defer cancel()

	msgID, err := b.queue.Enqueue(pctx, b.Stream(channel), data)
	if err != nil {
		b.metrics.RecordPublish(channel, name, "error")
		b.tracer.RecordError(span, err)
		log.WithContext(ctx).WithFields(log.Fields{
			"channel":  channel,
			"event":    name,
			"event_id": id,
			"payload":  string(data),
		}).WithError(err).Error("Failed to publish event")
		return EnqueueAck{}, utils.WrapError(err, utils.CodeDelivery, fmt.Sprintf("failed to publish %s/%s", channel, name))
	}

	b.metrics.RecordPublish(channel, name, "ok")
	return EnqueueAck{EventID: id, MessageID: msgID}, nil
}

// Flush blocks until the backing queue has no in-flight deliveries. Queues
// that cannot report that return immediately.
func (b *Bus) Flush(ctx context.Context) error {
	if f, ok := b.queue.(queue.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Close stops every consumer
func (b *Bus) Close() error {
	return b.queue.Close()
}

func (b *Bus) dispatcher(sub *subscription) queue.Handler {
	return func(ctx context.Context, d *queue.Delivery) error {
		evt, err := event.Decode(d.Payload)
		if err != nil {
			// Redelivering a malformed envelope cannot succeed
			log.WithFields(log.Fields{
				"channel":    sub.channel,
				"topic":      sub.topic,
				"message_id": d.ID,
				"payload":    string(d.Payload),
			}).WithError(err).Error("Dropping undecodable event")
			b.metrics.RecordHandle(sub.channel, sub.topic, "malformed", 0)
			return nil
		}

		ctx, span := b.tracer.StartHandleSpan(ctx, sub.channel, sub.topic, evt.ID, d.Attempt)
		defer span.End()

		start := time.Now()
		err = invoke(ctx, sub.handler, evt)
		elapsed := time.Since(start)

		if err != nil {
			b.metrics.RecordHandle(sub.channel, sub.topic, "error", elapsed)
			b.tracer.RecordError(span, err)
			log.WithContext(ctx).WithFields(log.Fields{
				"channel":  sub.channel,
				"topic":    sub.topic,
				"event":    evt.Name,
				"event_id": evt.ID,
				"attempt":  d.Attempt,
				"payload":  string(evt.Raw),
			}).WithError(err).Error("Listener failed")
			return err
		}

		b.metrics.RecordHandle(sub.channel, sub.topic, "ok", elapsed)
		return nil
	}
}

func invoke(ctx context.Context, h Handler, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("Listener panic: %v", r)
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return h(ctx, evt)
}
