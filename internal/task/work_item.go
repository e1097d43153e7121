// Package task contains the asynchronous execution pipeline: the in-process
// work queue and the executor that drains it, drives capability providers,
// and writes status transitions back through the task store.
package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
)

// WorkItem is the queue payload for one task execution. It carries enough to
// run the task without a store read, but the executor re-reads the task on
// dequeue anyway: the store is the source of truth, and a task cancelled
// between enqueue and dequeue must not run.
type WorkItem struct {
	TaskID     uuid.UUID
	Capability domain.Capability
	Context    domain.TaskContext
	EnqueuedAt time.Time

	// Requeue marks items created by startup recovery or the stuck-task
	// reconciler. Only these may pick a task up again after it has left
	// pending; a fresh delivery finding the task already running is a
	// duplicate and must not run it a second time.
	Requeue bool
}

// NewWorkItem builds the queue payload for a freshly submitted task.
func NewWorkItem(t *domain.Task) WorkItem {
	return WorkItem{
		TaskID:     t.ID,
		Capability: t.Capability,
		Context:    t.Context,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewRequeueItem builds the queue payload for re-delivering a task that may
// already be running, such as one orphaned by a dead process.
func NewRequeueItem(t *domain.Task) WorkItem {
	item := NewWorkItem(t)
	item.Requeue = true
	return item
}
