package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/platform/logger"
	"github.com/vkalinin/devagent-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

const taskColumns = `id, user_id, project_id, description, capability, context,
		status, progress, result, error_message, created_at, started_at, completed_at`

// Create implements store.TaskStore.Create
// Returns store.ErrInvalidEntity if the user or project does not exist.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	contextJSON, err := json.Marshal(task.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal task context: %w", err)
	}

	query := `
		INSERT INTO tasks (id, user_id, project_id, description, capability, context,
			status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.ProjectID,
		task.Description,
		task.Capability,
		contextJSON,
		task.Status,
		task.Progress,
		task.CreatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			log.Warn("foreign key violation during task creation",
				slog.String("error", err.Error()),
				slog.String("task_id", task.ID.String()),
				slog.String("project_id", task.ProjectID.String()))
			return fmt.Errorf("%w: referenced user or project not found",
				store.ErrInvalidEntity)
		}

		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("capability", string(task.Capability)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	return task, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus
//
// The row is locked for the duration of the update so racing callers are
// serialized; the transition is validated against the stored status under
// that lock, which makes illegal composite states unreachable. When the
// store wraps a bare connection a transaction is opened here; when it wraps
// a transaction (via WithTx) the caller's transaction is used.
func (s *PostgresTaskStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	update store.TaskStatusUpdate,
) (*domain.Task, error) {
	if sqlDB, ok := s.db.(*sql.DB); ok {
		var updated *domain.Task
		err := store.RunInTransaction(ctx, sqlDB, func(ctx context.Context, tx *sql.Tx) error {
			txStore := &PostgresTaskStore{db: tx, logger: s.logger}
			var err error
			updated, err = txStore.updateStatusLocked(ctx, id, update)
			return err
		})
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return s.updateStatusLocked(ctx, id, update)
}

// updateStatusLocked performs the status update. It must run inside a
// transaction so the FOR UPDATE lock holds across the read and the write.
func (s *PostgresTaskStore) updateStatusLocked(
	ctx context.Context,
	id uuid.UUID,
	update store.TaskStatusUpdate,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !domain.IsValidTaskStatus(update.Status) {
		return nil, domain.ErrInvalidTaskStatus
	}

	// Result and error are mutually exclusive and bound to their terminal
	// status; reject inconsistent updates before touching the row.
	if len(update.Result) > 0 && update.Status != domain.TaskStatusSucceeded {
		return nil, fmt.Errorf("%w: result may only be set on success", store.ErrInvalidEntity)
	}
	if update.Error != nil && *update.Error != "" && update.Status != domain.TaskStatusFailed {
		return nil, fmt.Errorf("%w: error may only be set on failure", store.ErrInvalidEntity)
	}

	lockQuery := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1 FOR UPDATE`, taskColumns)

	current, err := scanTask(s.db.QueryRowContext(ctx, lockQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found for status update", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to lock task for status update",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	if !current.Status.CanTransition(update.Status) {
		log.Warn("rejected illegal task status transition",
			slog.String("task_id", id.String()),
			slog.String("from", string(current.Status)),
			slog.String("to", string(update.Status)))
		return nil, fmt.Errorf("%w: %s -> %s",
			domain.ErrIllegalTransition, current.Status, update.Status)
	}

	now := time.Now().UTC()

	current.Status = update.Status
	if update.Progress != nil {
		current.Progress = *update.Progress
	}

	switch update.Status {
	case domain.TaskStatusRunning:
		if current.StartedAt == nil {
			current.StartedAt = &now
		}
	case domain.TaskStatusSucceeded:
		current.Result = update.Result
		current.Progress = 100
		current.CompletedAt = &now
	case domain.TaskStatusFailed:
		if update.Error != nil {
			current.Error = *update.Error
		}
		current.CompletedAt = &now
	case domain.TaskStatusCancelled:
		current.CompletedAt = &now
	}

	if current.Progress < 0 || current.Progress > 100 {
		return nil, domain.ErrInvalidProgress
	}

	var resultParam any
	if len(current.Result) > 0 {
		resultParam = []byte(current.Result)
	}

	updateQuery := `
		UPDATE tasks
		SET status = $1, progress = $2, result = $3, error_message = $4,
			started_at = $5, completed_at = $6
		WHERE id = $7
	`
	if _, err := s.db.ExecContext(
		ctx,
		updateQuery,
		current.Status,
		current.Progress,
		resultParam,
		nullableString(current.Error),
		current.StartedAt,
		current.CompletedAt,
		id,
	); err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("status", string(update.Status)))
		return nil, err
	}

	log.Info("task status updated",
		slog.String("task_id", id.String()),
		slog.String("status", string(current.Status)),
		slog.Int("progress", current.Progress))
	return current, nil
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if filter.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: list filter requires an owner", store.ErrInvalidEntity)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE user_id = $1`, taskColumns)
	args := []any{filter.UserID}

	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks",
			slog.String("error", err.Error()),
			slog.String("user_id", filter.UserID.String()))
		return nil, err
	}

	log.Debug("listed tasks",
		slog.String("user_id", filter.UserID.String()),
		slog.Int("count", len(tasks)))
	return tasks, nil
}

// FindByStatus implements store.TaskStore.FindByStatus
func (s *PostgresTaskStore) FindByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	limit int,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT %s FROM tasks WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		taskColumns,
	)

	tasks, err := s.queryTasks(ctx, query, status, limit)
	if err != nil {
		log.Error("failed to find tasks by status",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, err
	}

	return tasks, nil
}

func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status, capability string
	var contextJSON []byte
	var result []byte
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.ProjectID,
		&task.Description,
		&capability,
		&contextJSON,
		&status,
		&task.Progress,
		&result,
		&errorMessage,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.Capability = domain.Capability(capability)
	task.Error = errorMessage.String
	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &task.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task context: %w", err)
		}
	}

	return &task, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
