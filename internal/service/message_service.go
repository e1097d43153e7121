package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
)

// MessageService provides conversational message operations. Messages hang
// off tasks, so every operation goes through the task ownership check.
type MessageService interface {
	// AppendMessage attaches a message to a task owned by the user.
	AppendMessage(
		ctx context.Context,
		userID, taskID uuid.UUID,
		role domain.MessageRole,
		content string,
		metadata map[string]any,
	) (*domain.Message, error)

	// ListMessages retrieves a task's messages, oldest first.
	ListMessages(
		ctx context.Context,
		userID, taskID uuid.UUID,
		limit, offset int,
	) ([]*domain.Message, error)
}

// messageServiceImpl implements the MessageService interface
type messageServiceImpl struct {
	messageStore store.MessageStore
	taskStore    store.TaskStore
	logger       *slog.Logger
}

// NewMessageService creates a new MessageService.
// It returns an error if any of the required dependencies are nil.
func NewMessageService(
	messageStore store.MessageStore,
	taskStore store.TaskStore,
	logger *slog.Logger,
) (MessageService, error) {
	if messageStore == nil {
		return nil, &ServiceError{
			Service:   "message_service",
			Operation: "create_service",
			Message:   "messageStore cannot be nil",
		}
	}
	if taskStore == nil {
		return nil, &ServiceError{
			Service:   "message_service",
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &messageServiceImpl{
		messageStore: messageStore,
		taskStore:    taskStore,
		logger:       logger.With("component", "message_service"),
	}, nil
}

// AppendMessage attaches a message to a task owned by the user.
func (s *messageServiceImpl) AppendMessage(
	ctx context.Context,
	userID, taskID uuid.UUID,
	role domain.MessageRole,
	content string,
	metadata map[string]any,
) (*domain.Message, error) {
	if err := s.checkTaskOwnership(ctx, userID, taskID); err != nil {
		return nil, err
	}

	msg, err := domain.NewMessage(taskID, userID, role, content, metadata)
	if err != nil {
		return nil, err
	}

	if err := s.messageStore.Create(ctx, msg); err != nil {
		return nil, &ServiceError{
			Service:   "message_service",
			Operation: "append_message",
			Message:   "failed to save message",
			Err:       err,
		}
	}

	s.logger.Debug("message appended",
		"message_id", msg.ID,
		"task_id", taskID,
		"role", role)
	return msg, nil
}

// ListMessages retrieves a task's messages, oldest first.
func (s *messageServiceImpl) ListMessages(
	ctx context.Context,
	userID, taskID uuid.UUID,
	limit, offset int,
) ([]*domain.Message, error) {
	if err := s.checkTaskOwnership(ctx, userID, taskID); err != nil {
		return nil, err
	}

	messages, err := s.messageStore.ListByTask(ctx, taskID, limit, offset)
	if err != nil {
		return nil, &ServiceError{
			Service:   "message_service",
			Operation: "list_messages",
			Message:   "failed to list messages",
			Err:       err,
		}
	}

	return messages, nil
}

func (s *messageServiceImpl) checkTaskOwnership(
	ctx context.Context,
	userID, taskID uuid.UUID,
) error {
	t, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrTaskNotFound
		}
		return &ServiceError{
			Service:   "message_service",
			Operation: "check_task",
			Message:   "failed to retrieve task",
			Err:       err,
		}
	}
	if t.UserID != userID {
		return ErrTaskNotFound
	}
	return nil
}
