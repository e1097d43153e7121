package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author side of a conversational message.
type MessageRole string

// Possible message roles
const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Common validation errors for Message
var (
	ErrEmptyMessageID      = errors.New("message ID cannot be empty")
	ErrEmptyMessageTaskID  = errors.New("message task ID cannot be empty")
	ErrEmptyMessageUserID  = errors.New("message user ID cannot be empty")
	ErrEmptyMessageContent = errors.New("message content cannot be empty")
	ErrInvalidMessageRole  = errors.New("invalid message role")
)

// Message is a conversational record attached to a task. Messages are
// append-only; they are never mutated after creation.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	TaskID    uuid.UUID      `json:"task_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a new Message bound to a task.
// Returns an error if validation fails.
func NewMessage(
	taskID, userID uuid.UUID,
	role MessageRole,
	content string,
	metadata map[string]any,
) (*Message, error) {
	msg := &Message{
		ID:        uuid.New(),
		TaskID:    taskID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

// Validate checks if the Message has valid data.
func (m *Message) Validate() error {
	if m.ID == uuid.Nil {
		return ErrEmptyMessageID
	}

	if m.TaskID == uuid.Nil {
		return ErrEmptyMessageTaskID
	}

	if m.UserID == uuid.Nil {
		return ErrEmptyMessageUserID
	}

	if m.Content == "" {
		return ErrEmptyMessageContent
	}

	if !isValidMessageRole(m.Role) {
		return ErrInvalidMessageRole
	}

	return nil
}

func isValidMessageRole(role MessageRole) bool {
	switch role {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
		return true
	default:
		return false
	}
}
