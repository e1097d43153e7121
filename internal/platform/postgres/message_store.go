package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/platform/logger"
	"github.com/vkalinin/devagent-api/internal/store"
)

// PostgresMessageStore implements the store.MessageStore interface
// using a PostgreSQL database as the storage backend.
type PostgresMessageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMessageStore creates a new PostgreSQL implementation of the
// MessageStore interface. If logger is nil, a default logger will be used.
func NewPostgresMessageStore(db store.DBTX, logger *slog.Logger) *PostgresMessageStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresMessageStore{
		db:     db,
		logger: logger.With(slog.String("component", "message_store")),
	}
}

// Ensure PostgresMessageStore implements store.MessageStore interface
var _ store.MessageStore = (*PostgresMessageStore)(nil)

// WithTx implements store.MessageStore.WithTx
func (s *PostgresMessageStore) WithTx(tx *sql.Tx) store.MessageStore {
	return &PostgresMessageStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.MessageStore.Create
// Returns store.ErrInvalidEntity if the referenced task or user does not exist.
func (s *PostgresMessageStore) Create(ctx context.Context, message *domain.Message) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := message.Validate(); err != nil {
		log.Warn("message validation failed during create",
			slog.String("error", err.Error()),
			slog.String("message_id", message.ID.String()))
		return err
	}

	var metadataJSON []byte
	if message.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(message.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
	}

	query := `
		INSERT INTO messages (id, task_id, user_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		message.ID,
		message.TaskID,
		message.UserID,
		message.Role,
		message.Content,
		metadataJSON,
		message.CreatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			log.Warn("foreign key violation during message creation",
				slog.String("error", err.Error()),
				slog.String("message_id", message.ID.String()),
				slog.String("task_id", message.TaskID.String()))
			return fmt.Errorf("%w: referenced task or user not found",
				store.ErrInvalidEntity)
		}

		log.Error("failed to create message",
			slog.String("error", err.Error()),
			slog.String("message_id", message.ID.String()))
		return err
	}

	log.Debug("message created successfully",
		slog.String("message_id", message.ID.String()),
		slog.String("task_id", message.TaskID.String()),
		slog.String("role", string(message.Role)))
	return nil
}

// ListByTask implements store.MessageStore.ListByTask
func (s *PostgresMessageStore) ListByTask(
	ctx context.Context,
	taskID uuid.UUID,
	limit, offset int,
) ([]*domain.Message, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, task_id, user_id, role, content, metadata, created_at
		FROM messages
		WHERE task_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, taskID, limit, offset)
	if err != nil {
		log.Error("failed to list messages",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	messages := []*domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var metadataJSON []byte

		if err := rows.Scan(
			&msg.ID,
			&msg.TaskID,
			&msg.UserID,
			&role,
			&msg.Content,
			&metadataJSON,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}

		msg.Role = domain.MessageRole(role)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
			}
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
