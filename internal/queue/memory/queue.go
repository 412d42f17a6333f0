// Package memory provides a bounded in-process work queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

// Queue is a bounded in-memory queue with context-aware operations.
// Items enqueued before Close are still delivered; once they are drained
// Dequeue reports toprgb.ErrQueueClosed.
type Queue struct {
	ch     chan toprgb.WorkItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan toprgb.WorkItem, capacity),
	}
}

// Enqueue pushes an item, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, item toprgb.WorkItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return toprgb.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (toprgb.WorkItem, error) {
	select {
	case <-ctx.Done():
		return toprgb.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return toprgb.WorkItem{}, toprgb.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops further enqueues. It waits for in-flight Enqueue calls and is
// idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
