package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
)

// MessageStore defines the interface for message persistence. Messages are
// append-only; there is no update path.
type MessageStore interface {
	// Create saves a new message to the store.
	// Returns ErrInvalidEntity if the referenced task does not exist.
	Create(ctx context.Context, message *domain.Message) error

	// ListByTask retrieves the messages attached to a task, oldest first.
	// Returns an empty slice if the task has no messages.
	ListByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]*domain.Message, error)

	// WithTx returns a new MessageStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) MessageStore
}
