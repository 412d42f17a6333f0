package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toprgb/internal/queue/memory"
	"github.com/JakeFAU/toprgb/internal/toprgb"
)

type drainingRunner struct {
	queue   toprgb.Queue
	delay   time.Duration
	handled *atomic.Int64
}

func (r *drainingRunner) Run(ctx context.Context) {
	for {
		if _, err := r.queue.Dequeue(ctx); err != nil {
			return
		}
		time.Sleep(r.delay)
		r.handled.Add(1)
	}
}

func newPool(q toprgb.Queue, n int, delay time.Duration, handled *atomic.Int64) []Runner {
	runners := make([]Runner, n)
	for i := range runners {
		runners[i] = &drainingRunner{queue: q, delay: delay, handled: handled}
	}
	return runners
}

func TestDispatcherDrainsAllSubmissions(t *testing.T) {
	t.Parallel()

	var handled atomic.Int64
	q := memory.NewQueue(4)
	d := New(q, newPool(q, 3, 0, &handled))
	ctx := context.Background()
	d.Start(ctx)
	d.Start(ctx)

	for i := range 25 {
		require.NoError(t, d.Submit(ctx, toprgb.WorkItem{URL: "u", Seq: int64(i + 1)}))
	}
	require.NoError(t, d.CloseAndWait(ctx, time.Second))
	assert.Equal(t, int64(25), handled.Load())
}

func TestDispatcherCloseAndWaitTimeout(t *testing.T) {
	t.Parallel()

	var handled atomic.Int64
	q := memory.NewQueue(4)
	d := New(q, newPool(q, 1, 200*time.Millisecond, &handled))
	ctx := context.Background()
	d.Start(ctx)

	require.NoError(t, d.Submit(ctx, toprgb.WorkItem{URL: "slow"}))
	err := d.CloseAndWait(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, toprgb.ErrDrainTimeout)
}

func TestDispatcherCloseAndWaitInterrupted(t *testing.T) {
	t.Parallel()

	var handled atomic.Int64
	q := memory.NewQueue(4)
	d := New(q, newPool(q, 1, 200*time.Millisecond, &handled))
	d.Start(context.Background())
	require.NoError(t, d.Submit(context.Background(), toprgb.WorkItem{URL: "slow"}))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = d.CloseAndWait(ctx, time.Hour)
	}()
	cancel()
	wg.Wait()
	assert.ErrorIs(t, err, toprgb.ErrInterrupted)
}

func TestDispatcherSubmitAfterClose(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	d := New(q, nil)
	d.Start(context.Background())
	require.NoError(t, d.CloseAndWait(context.Background(), time.Second))
	assert.ErrorIs(t, d.Submit(context.Background(), toprgb.WorkItem{URL: "late"}), toprgb.ErrQueueClosed)
}
