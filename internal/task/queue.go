package task

import (
	"context"
	"errors"
	"sync"
)

// Common queue errors
var (
	// ErrQueueClosed is returned when enqueueing to or dequeueing from a
	// closed queue.
	ErrQueueClosed = errors.New("work queue is closed")

	// ErrQueueFull is returned when the queue has reached capacity. Callers
	// should surface this as back-pressure rather than blocking the request.
	ErrQueueFull = errors.New("work queue is full")
)

// Queue is a bounded FIFO work queue with at-least-once delivery. Consumers
// receive a Delivery and must Ack it once the work item has reached a safe
// state, or Nack it to put the item back at the head of a redelivery cycle.
// Items neither acked nor nacked are lost when the process exits; startup
// recovery re-enqueues them from the store.
type Queue struct {
	items   chan WorkItem
	redeliv chan WorkItem

	mu     sync.Mutex
	closed bool
}

// Delivery wraps a dequeued work item with its acknowledgement handles.
// Exactly one of Ack or Nack must be called; later calls are no-ops.
type Delivery struct {
	Item WorkItem

	once  sync.Once
	queue *Queue
}

// Ack marks the delivery as done. The item will not be redelivered.
func (d *Delivery) Ack() {
	d.once.Do(func() {})
}

// Nack returns the item to the queue for redelivery. If the queue is closed
// or full the item is dropped; startup recovery picks it up from the store.
func (d *Delivery) Nack() {
	d.once.Do(func() {
		d.queue.redeliver(d.Item)
	})
}

// NewQueue creates a queue holding at most size items.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		items:   make(chan WorkItem, size),
		redeliv: make(chan WorkItem, size),
	}
}

// Enqueue adds an item without blocking. Returns ErrQueueFull when the queue
// is at capacity and ErrQueueClosed after Close.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until an item is available, the queue is closed and drained,
// or ctx is done. Redelivered items take priority over fresh ones.
func (q *Queue) Dequeue(ctx context.Context) (*Delivery, error) {
	// Drain redeliveries first so nacked items do not starve behind a long
	// backlog of fresh submissions.
	select {
	case item, ok := <-q.redeliv:
		if !ok {
			return q.drainClosed()
		}
		return &Delivery{Item: item, queue: q}, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item, ok := <-q.redeliv:
		if !ok {
			return q.drainClosed()
		}
		return &Delivery{Item: item, queue: q}, nil
	case item, ok := <-q.items:
		if !ok {
			return q.drainClosed()
		}
		return &Delivery{Item: item, queue: q}, nil
	}
}

// drainClosed hands out items that were still buffered when Close ran. Close
// closes both channels together, so by the time either receive reports
// closed, neither can block.
func (q *Queue) drainClosed() (*Delivery, error) {
	if item, ok := <-q.redeliv; ok {
		return &Delivery{Item: item, queue: q}, nil
	}
	if item, ok := <-q.items; ok {
		return &Delivery{Item: item, queue: q}, nil
	}
	return nil, ErrQueueClosed
}

// Len reports the number of items currently queued, including redeliveries.
func (q *Queue) Len() int {
	return len(q.items) + len(q.redeliv)
}

// Close stops the queue. Pending items remain readable until drained;
// further Enqueue calls fail with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
	close(q.redeliv)
}

func (q *Queue) redeliver(item WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	select {
	case q.redeliv <- item:
	default:
		// Redelivery buffer full; the store-driven recovery loop will find
		// the task again.
	}
}
