// Package dispatcher manages worker fan-out over the work queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

// Runner consumes the queue until it is closed and drained.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans out queue work to a fixed pool of workers.
type Dispatcher struct {
	queue   toprgb.Queue
	workers []Runner

	startOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
}

// New creates a Dispatcher.
func New(queue toprgb.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches every worker. Workers stop when the queue is closed and
// drained or when ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for _, w := range d.workers {
			d.wg.Add(1)
			go func(wk Runner) {
				defer d.wg.Done()
				wk.Run(ctx)
			}(w)
		}
		go func() {
			d.wg.Wait()
			close(d.done)
		}()
	})
}

// Submit enqueues one item, blocking while the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, item toprgb.WorkItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// CloseAndWait stops submissions and waits for the workers to drain the queue.
// It returns toprgb.ErrInterrupted if ctx ends first and toprgb.ErrDrainTimeout
// if timeout elapses first. A non-positive timeout waits indefinitely.
func (d *Dispatcher) CloseAndWait(ctx context.Context, timeout time.Duration) error {
	d.queue.Close()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", toprgb.ErrInterrupted, ctx.Err())
	case <-expired:
		return fmt.Errorf("%w after %s", toprgb.ErrDrainTimeout, timeout)
	}
}
