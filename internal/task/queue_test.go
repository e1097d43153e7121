package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkalinin/devagent-api/internal/domain"
)

func newTestItem(t *testing.T) WorkItem {
	t.Helper()
	task, err := domain.NewTask(
		uuid.New(),
		uuid.New(),
		"analyze this snippet",
		domain.CapabilityAnalyze,
		domain.TaskContext{Code: "func main() {}"},
	)
	require.NoError(t, err)
	return NewWorkItem(task)
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	item := newTestItem(t)

	require.NoError(t, q.Enqueue(item))
	assert.Equal(t, 1, q.Len())

	delivery, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, item.TaskID, delivery.Item.TaskID)
	assert.Equal(t, 0, q.Len())

	delivery.Ack()
	assert.Equal(t, 0, q.Len())
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(newTestItem(t)))

	err := q.Enqueue(newTestItem(t))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	q.Close()

	err := q.Enqueue(newTestItem(t))
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueCloseDrainsPendingItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	item := newTestItem(t)
	require.NoError(t, q.Enqueue(item))

	q.Close()

	delivery, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, item.TaskID, delivery.Item.TaskID)

	// Only once the buffer is empty does Dequeue report the closed queue.
	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueCloseDrainsRedeliveredItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	item := newTestItem(t)
	require.NoError(t, q.Enqueue(item))

	delivery, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	delivery.Nack()

	q.Close()

	// A nacked item sitting in the redelivery buffer survives Close too.
	redelivered, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, item.TaskID, redelivered.Item.TaskID)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueNackRedelivers(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	item := newTestItem(t)
	require.NoError(t, q.Enqueue(item))

	delivery, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	delivery.Nack()

	redelivered, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, item.TaskID, redelivered.Item.TaskID)
}

func TestQueueRedeliveryTakesPriority(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	first := newTestItem(t)
	second := newTestItem(t)
	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))

	delivery, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.TaskID, delivery.Item.TaskID)
	delivery.Nack()

	// The nacked item comes back before the untouched second item.
	redelivered, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, redelivered.Item.TaskID)
}

func TestDeliveryAckThenNackIsNoop(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	require.NoError(t, q.Enqueue(newTestItem(t)))

	delivery, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	delivery.Ack()
	delivery.Nack()

	assert.Equal(t, 0, q.Len())
}
