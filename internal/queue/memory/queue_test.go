package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan toprgb.WorkItem, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if assert.NoError(t, err) {
			result <- item
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), toprgb.WorkItem{URL: "http://a/1.png", Seq: 1}))
	select {
	case got := <-result:
		assert.Equal(t, "http://a/1.png", got.URL)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueDrainsBeforeReportingClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, toprgb.WorkItem{URL: "a"}))
	require.NoError(t, q.Enqueue(ctx, toprgb.WorkItem{URL: "b"}))
	assert.Equal(t, 2, q.Len())
	q.Close()
	q.Close()

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.URL)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", second.URL)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, toprgb.ErrQueueClosed)
	assert.ErrorIs(t, q.Enqueue(ctx, toprgb.WorkItem{URL: "c"}), toprgb.ErrQueueClosed)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), toprgb.WorkItem{URL: "primed"}))
	assert.ErrorIs(t, full.Enqueue(ctx, toprgb.WorkItem{URL: "blocked"}), context.Canceled)
}
