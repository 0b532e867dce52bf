package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryQueue(t *testing.T, maxAttempts int) *MemoryQueue {
	t.Helper()
	mq := NewMemoryQueue(&MemoryQueueConfig{
		BufferSize: 64,
		Timeout:    time.Second,
		Retry:      RetryPolicy{MaxAttempts: maxAttempts, Backoff: time.Millisecond},
	})
	t.Cleanup(func() { mq.Close() })
	return mq
}

func flush(t *testing.T, q Flusher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("EnqueueWithoutConsumers", func(t *testing.T) {
		mq := newTestMemoryQueue(t, 3)

		id, err := mq.Enqueue(ctx, "nobody", []byte("hello"))
		assert.NoError(t, err)
		assert.NotEmpty(t, id)
		flush(t, mq)
	})

	t.Run("FanOutToEveryGroup", func(t *testing.T) {
		mq := newTestMemoryQueue(t, 3)

		var mu sync.Mutex
		got := map[string][]string{}
		record := func(ctx context.Context, d *Delivery) error {
			mu.Lock()
			defer mu.Unlock()
			got[d.Group] = append(got[d.Group], string(d.Payload))
			return nil
		}

		require.NoError(t, mq.Consume(ctx, "transaction", "stock", record))
		require.NoError(t, mq.Consume(ctx, "transaction", "purchase-record", record))

		for _, msg := range []string{"a", "b", "c"} {
			_, err := mq.Enqueue(ctx, "transaction", []byte(msg))
			require.NoError(t, err)
		}
		flush(t, mq)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"a", "b", "c"}, got["stock"])
		assert.Equal(t, []string{"a", "b", "c"}, got["purchase-record"])
	})

	t.Run("DuplicateGroupRejected", func(t *testing.T) {
		mq := newTestMemoryQueue(t, 3)
		noop := func(ctx context.Context, d *Delivery) error { return nil }

		require.NoError(t, mq.Consume(ctx, "s", "g", noop))
		assert.ErrorIs(t, mq.Consume(ctx, "s", "g", noop), ErrGroupExists)
	})

	t.Run("RetryThenSucceed", func(t *testing.T) {
		mq := newTestMemoryQueue(t, 5)

		var calls atomic.Int32
		require.NoError(t, mq.Consume(ctx, "s", "g", func(ctx context.Context, d *Delivery) error {
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			assert.Equal(t, 3, d.Attempt)
			return nil
		}))

		_, err := mq.Enqueue(ctx, "s", []byte("x"))
		require.NoError(t, err)
		flush(t, mq)

		assert.Equal(t, int32(3), calls.Load())
		assert.Empty(t, mq.DeadLetters())
	})

	t.Run("DeadLetterAfterMaxAttempts", func(t *testing.T) {
		var observed atomic.Int32
		mq := NewMemoryQueue(&MemoryQueueConfig{
			Retry:        RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
			OnDeadLetter: func(d *Delivery, err error) { observed.Add(1) },
		})
		defer mq.Close()

		require.NoError(t, mq.Consume(ctx, "s", "g", func(ctx context.Context, d *Delivery) error {
			return errors.New("permanent")
		}))
		_, err := mq.Enqueue(ctx, "s", []byte("poison"))
		require.NoError(t, err)
		flush(t, mq)

		dead := mq.DeadLetters()
		require.Len(t, dead, 1)
		assert.Equal(t, "poison", string(dead[0].Payload))
		assert.Equal(t, 2, dead[0].Attempt)
		assert.Equal(t, int32(1), observed.Load())
	})

	t.Run("FlushWaitsForCascades", func(t *testing.T) {
		mq := newTestMemoryQueue(t, 3)

		var second atomic.Bool
		require.NoError(t, mq.Consume(ctx, "first", "g", func(ctx context.Context, d *Delivery) error {
			_, err := mq.Enqueue(ctx, "second", []byte("next"))
			return err
		}))
		require.NoError(t, mq.Consume(ctx, "second", "g", func(ctx context.Context, d *Delivery) error {
			time.Sleep(10 * time.Millisecond)
			second.Store(true)
			return nil
		}))

		_, err := mq.Enqueue(ctx, "first", []byte("go"))
		require.NoError(t, err)
		flush(t, mq)

		assert.True(t, second.Load())
	})

	t.Run("Closed", func(t *testing.T) {
		mq := NewMemoryQueue(nil)
		require.NoError(t, mq.Close())
		require.NoError(t, mq.Close())

		_, err := mq.Enqueue(ctx, "s", []byte("x"))
		assert.ErrorIs(t, err, ErrQueueClosed)
		assert.ErrorIs(t, mq.Health(ctx), ErrQueueClosed)
		assert.ErrorIs(t, mq.Consume(ctx, "s", "g", nil), ErrQueueClosed)
	})

	t.Run("CancelledConsumerLeavesStream", func(t *testing.T) {
		mq := newTestMemoryQueue(t, 3)
		cctx, cancel := context.WithCancel(ctx)

		require.NoError(t, mq.Consume(cctx, "s", "g", func(ctx context.Context, d *Delivery) error { return nil }))
		cancel()

		require.Eventually(t, func() bool {
			return mq.Consume(ctx, "s", "g", func(ctx context.Context, d *Delivery) error { return nil }) == nil
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("FullBufferDoesNotBlockStoppingWorker", func(t *testing.T) {
		mq := NewMemoryQueue(&MemoryQueueConfig{BufferSize: 1, Timeout: 5 * time.Second})
		t.Cleanup(func() { mq.Close() })

		cctx, cancel := context.WithCancel(ctx)
		started := make(chan struct{}, 3)
		require.NoError(t, mq.Consume(cctx, "s", "g", func(ctx context.Context, d *Delivery) error {
			started <- struct{}{}
			<-ctx.Done()
			return nil
		}))

		_, err := mq.Enqueue(ctx, "s", []byte("1"))
		require.NoError(t, err)
		<-started
		_, err = mq.Enqueue(ctx, "s", []byte("2"))
		require.NoError(t, err)

		blocked := make(chan error, 1)
		go func() {
			_, err := mq.Enqueue(ctx, "s", []byte("3"))
			blocked <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-blocked:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("enqueue stayed blocked on a stopped group")
		}

		require.Eventually(t, func() bool {
			return mq.Consume(ctx, "s", "g", func(ctx context.Context, d *Delivery) error { return nil }) == nil
		}, time.Second, 5*time.Millisecond)
		flush(t, mq)
	})
}
