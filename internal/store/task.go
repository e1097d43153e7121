package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
)

// TaskStatusUpdate describes a partial mutation applied through the single
// validated update path. Status is mandatory; nil pointers leave the
// corresponding column untouched.
type TaskStatusUpdate struct {
	Status   domain.TaskStatus
	Progress *int
	Result   json.RawMessage
	Error    *string
}

// TaskFilter narrows List results. UserID is mandatory: tasks are only ever
// visible to their owner.
type TaskFilter struct {
	UserID    uuid.UUID
	ProjectID *uuid.UUID
	Status    *domain.TaskStatus
	Limit     int
	Offset    int
}

// TaskStore defines the interface for task persistence. After creation, a
// task's status, progress, result, error and timestamps are mutated
// exclusively through UpdateStatus.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// UpdateStatus applies a status update atomically. Concurrent updates to
	// the same task are serialized, and the transition from the currently
	// stored status is validated against the task state machine; illegal
	// transitions return domain.ErrIllegalTransition and leave the row
	// unchanged. Timestamps are maintained here: started_at is set on the
	// first transition to running, completed_at exactly when a terminal
	// status is written.
	UpdateStatus(ctx context.Context, id uuid.UUID, update TaskStatusUpdate) (*domain.Task, error)

	// List retrieves tasks matching the filter, ordered by created_at
	// descending. Returns an empty slice if nothing matches.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// FindByStatus retrieves tasks in the given status regardless of owner,
	// oldest first. Used by the executor for startup recovery and
	// stuck-task reconciliation.
	FindByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
