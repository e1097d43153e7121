package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
	"github.com/vkalinin/devagent-api/internal/task"
)

// TaskEnqueuer submits accepted tasks to the background executor.
type TaskEnqueuer interface {
	// Enqueue adds a task to the processing queue.
	Enqueue(t *domain.Task) error
}

// TaskService provides task lifecycle operations. All reads and mutations are
// scoped to the requesting user; tasks belonging to someone else behave as if
// they do not exist.
type TaskService interface {
	// CreateTaskAndEnqueue validates the submission, persists a pending task,
	// and hands it to the executor. The returned task is always pending; the
	// caller observes later states by polling.
	CreateTaskAndEnqueue(
		ctx context.Context,
		userID uuid.UUID,
		projectID uuid.UUID,
		description string,
		capability domain.Capability,
		taskCtx domain.TaskContext,
	) (*domain.Task, error)

	// GetTask retrieves a task owned by the user.
	GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)

	// ListTasks retrieves the user's tasks, newest first, optionally narrowed
	// by project and status.
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)

	// ApplyStatusUpdate applies an externally reported status change (agent
	// callbacks) through the validated transition path.
	ApplyStatusUpdate(
		ctx context.Context,
		userID, taskID uuid.UUID,
		update store.TaskStatusUpdate,
	) (*domain.Task, error)

	// CancelTask moves a pending or running task to cancelled.
	CancelTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	taskStore    store.TaskStore
	projectStore store.ProjectStore
	enqueuer     TaskEnqueuer
	logger       *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskStore store.TaskStore,
	projectStore store.ProjectStore,
	enqueuer TaskEnqueuer,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &ServiceError{
			Service:   "task_service",
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if projectStore == nil {
		return nil, &ServiceError{
			Service:   "task_service",
			Operation: "create_service",
			Message:   "projectStore cannot be nil",
		}
	}
	if enqueuer == nil {
		return nil, &ServiceError{
			Service:   "task_service",
			Operation: "create_service",
			Message:   "enqueuer cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		taskStore:    taskStore,
		projectStore: projectStore,
		enqueuer:     enqueuer,
		logger:       logger.With("component", "task_service"),
	}, nil
}

// CreateTaskAndEnqueue creates a pending task and submits it for execution.
// The database write lands before the enqueue: if the queue rejects the item
// the task stays pending and startup recovery picks it up later.
func (s *taskServiceImpl) CreateTaskAndEnqueue(
	ctx context.Context,
	userID uuid.UUID,
	projectID uuid.UUID,
	description string,
	capability domain.Capability,
	taskCtx domain.TaskContext,
) (*domain.Task, error) {
	project, err := s.projectStore.GetByID(ctx, projectID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrProjectNotFound
		}
		return nil, s.wrap("create_task", "failed to verify project", err)
	}
	if project.UserID != userID {
		return nil, ErrProjectNotFound
	}

	// git-op submissions without an explicit repository inherit the
	// project's configured one.
	if capability == domain.CapabilityGitOp && taskCtx.Repository == "" {
		taskCtx.Repository = project.RepositoryURL
	}

	newTask, err := domain.NewTask(userID, projectID, description, capability, taskCtx)
	if err != nil {
		s.logger.Warn("task submission rejected",
			"error", err,
			"user_id", userID,
			"capability", capability)
		return nil, err
	}

	if err := s.taskStore.Create(ctx, newTask); err != nil {
		return nil, s.wrap("create_task", "failed to save task", err)
	}

	if err := s.enqueuer.Enqueue(newTask); err != nil {
		// The task is committed; the queue is just behind. Recovery will
		// re-enqueue it, so the submission still succeeds.
		s.logger.Warn("failed to enqueue task, leaving pending for recovery",
			"error", err,
			"task_id", newTask.ID)
	}

	s.logger.Info("task accepted",
		"task_id", newTask.ID,
		"user_id", userID,
		"capability", capability)
	return newTask, nil
}

// GetTask retrieves a task owned by the user. Foreign tasks return
// ErrTaskNotFound so IDs cannot be probed across users.
func (s *taskServiceImpl) GetTask(
	ctx context.Context,
	userID, taskID uuid.UUID,
) (*domain.Task, error) {
	t, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks retrieves tasks matching the filter for the filter's user.
func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	filter store.TaskFilter,
) ([]*domain.Task, error) {
	tasks, err := s.taskStore.List(ctx, filter)
	if err != nil {
		return nil, s.wrap("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// ApplyStatusUpdate applies a reported status change to a task owned by the
// user. Illegal transitions surface domain.ErrIllegalTransition unchanged so
// the API layer can answer with a conflict.
func (s *taskServiceImpl) ApplyStatusUpdate(
	ctx context.Context,
	userID, taskID uuid.UUID,
	update store.TaskStatusUpdate,
) (*domain.Task, error) {
	if _, err := s.ownedTask(ctx, userID, taskID); err != nil {
		return nil, err
	}

	updated, err := s.taskStore.UpdateStatus(ctx, taskID, update)
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) ||
			errors.Is(err, domain.ErrInvalidTaskStatus) ||
			errors.Is(err, domain.ErrInvalidProgress) ||
			errors.Is(err, store.ErrInvalidEntity) {
			return nil, err
		}
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, s.wrap("update_task_status", "failed to update task status", err)
	}

	return updated, nil
}

// CancelTask moves a pending or running task to cancelled. Cancelling an
// already-terminal task is an illegal transition and surfaces as a conflict.
func (s *taskServiceImpl) CancelTask(
	ctx context.Context,
	userID, taskID uuid.UUID,
) (*domain.Task, error) {
	return s.ApplyStatusUpdate(ctx, userID, taskID, store.TaskStatusUpdate{
		Status: domain.TaskStatusCancelled,
	})
}

func (s *taskServiceImpl) ownedTask(
	ctx context.Context,
	userID, taskID uuid.UUID,
) (*domain.Task, error) {
	t, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, s.wrap("get_task", "failed to retrieve task", err)
	}
	if t.UserID != userID {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

func (s *taskServiceImpl) wrap(operation, message string, err error) error {
	return &ServiceError{
		Service:   "task_service",
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// Ensure the executor satisfies the enqueuer seam.
var _ TaskEnqueuer = (*task.Executor)(nil)
