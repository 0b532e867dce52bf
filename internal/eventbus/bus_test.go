package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanhub/internal/event"
	"fanhub/pkg/queue"
	"fanhub/pkg/utils"
)

func newTestBus(t *testing.T) (*Bus, *queue.MemoryQueue) {
	t.Helper()
	q := queue.NewMemoryQueue(&queue.MemoryQueueConfig{
		BufferSize: 100,
		Timeout:    time.Second,
		Retry:      queue.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	})
	t.Cleanup(func() { q.Close() })
	return NewBus(q, Config{StreamPrefix: "events:"}, nil, nil), q
}

func flush(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

func TestBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("DuplicateSubscription", func(t *testing.T) {
		b, _ := newTestBus(t)
		noop := func(context.Context, *event.Event) error { return nil }

		require.NoError(t, b.Subscribe(event.ChannelTransaction, "stock", noop))
		err := b.Subscribe(event.ChannelTransaction, "stock", noop)
		assert.ErrorIs(t, err, ErrDuplicateSubscription)

		// same topic on another channel is a different subscription
		assert.NoError(t, b.Subscribe(event.ChannelReaction, "stock", noop))
	})

	t.Run("PublishWithoutSubscribers", func(t *testing.T) {
		b, _ := newTestBus(t)
		require.NoError(t, b.Start(ctx))

		ack, err := b.Publish(ctx, event.ChannelCategory, event.Deleted, &event.CategoryPayload{CategoryID: 1})
		require.NoError(t, err)
		assert.NotEmpty(t, ack.EventID)
		assert.NotEmpty(t, ack.MessageID)
	})

	t.Run("EveryTopicReceivesEachEvent", func(t *testing.T) {
		b, _ := newTestBus(t)

		var mu sync.Mutex
		got := map[string][]*event.Event{}
		record := func(topic string) Handler {
			return func(_ context.Context, evt *event.Event) error {
				mu.Lock()
				defer mu.Unlock()
				got[topic] = append(got[topic], evt)
				return nil
			}
		}
		require.NoError(t, b.Subscribe(event.ChannelTransaction, "stock", record("stock")))
		require.NoError(t, b.Subscribe(event.ChannelTransaction, "purchase-record", record("purchase-record")))
		require.NoError(t, b.Subscribe(event.ChannelReaction, "counter", record("counter")))
		require.NoError(t, b.Start(ctx))

		ack, err := b.Publish(ctx, event.ChannelTransaction, event.PurchaseSucceeded, &event.TransactionPayload{
			TransactionID: 42,
			BuyerID:       1,
			TotalPrice:    3000,
		})
		require.NoError(t, err)
		flush(t, b)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, got["stock"], 1)
		require.Len(t, got["purchase-record"], 1)
		assert.Empty(t, got["counter"])

		evt := got["stock"][0]
		assert.Equal(t, ack.EventID, evt.ID)
		assert.Equal(t, event.PurchaseSucceeded, evt.Name)
		payload, ok := evt.Payload.(*event.TransactionPayload)
		require.True(t, ok)
		assert.Equal(t, uint64(42), payload.TransactionID)
		assert.Equal(t, int64(3000), payload.TotalPrice)
	})

	t.Run("FailedHandlerIsRetried", func(t *testing.T) {
		b, _ := newTestBus(t)

		var calls atomic.Int32
		require.NoError(t, b.Subscribe(event.ChannelReaction, "counter", func(context.Context, *event.Event) error {
			if calls.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		}))
		require.NoError(t, b.Start(ctx))

		_, err := b.Publish(ctx, event.ChannelReaction, event.Created, &event.ReactionPayload{ReactionID: 7})
		require.NoError(t, err)
		flush(t, b)

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("PanicIsContained", func(t *testing.T) {
		b, q := newTestBus(t)

		var healthy atomic.Int32
		require.NoError(t, b.Subscribe(event.ChannelPerformer, "mail", func(context.Context, *event.Event) error {
			panic("boom")
		}))
		require.NoError(t, b.Subscribe(event.ChannelPerformer, "audit", func(context.Context, *event.Event) error {
			healthy.Add(1)
			return nil
		}))
		require.NoError(t, b.Start(ctx))

		_, err := b.Publish(ctx, event.ChannelPerformer, event.Updated, &event.PerformerPayload{PerformerID: 3})
		require.NoError(t, err)
		flush(t, b)

		assert.Equal(t, int32(1), healthy.Load())
		dead := q.DeadLetters()
		require.Len(t, dead, 1)
		assert.Equal(t, "mail", dead[0].Group)
		assert.Equal(t, 3, dead[0].Attempt)
	})

	t.Run("SubscribeAfterStart", func(t *testing.T) {
		b, _ := newTestBus(t)
		require.NoError(t, b.Start(ctx))

		var calls atomic.Int32
		require.NoError(t, b.Subscribe(event.ChannelSocket, "disconnect", func(_ context.Context, evt *event.Event) error {
			if evt.Name != event.Disconnected {
				return nil
			}
			calls.Add(1)
			return nil
		}))

		_, err := b.Publish(ctx, event.ChannelSocket, "Connected", map[string]int{"actorId": 1})
		require.NoError(t, err)
		_, err = b.Publish(ctx, event.ChannelSocket, event.Disconnected, &event.DisconnectPayload{ActorID: 1, ActorType: event.ActorUser})
		require.NoError(t, err)
		flush(t, b)

		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("StartTwice", func(t *testing.T) {
		b, _ := newTestBus(t)
		require.NoError(t, b.Start(ctx))
		assert.Error(t, b.Start(ctx))
	})

	t.Run("PublishAfterCloseIsDeliveryError", func(t *testing.T) {
		b, _ := newTestBus(t)
		require.NoError(t, b.Close())

		_, err := b.Publish(ctx, event.ChannelTransaction, event.PurchaseSucceeded, &event.TransactionPayload{})
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrDelivery)
		assert.ErrorIs(t, err, queue.ErrQueueClosed)
	})
}
