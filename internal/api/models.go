package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
)

// RegisterRequest represents the user registration request body.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest represents the token refresh request body.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse represents the authentication response payload.
type AuthResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// TaskContextRequest mirrors domain.TaskContext for submissions.
type TaskContextRequest struct {
	Code          string `json:"code,omitempty"`
	Error         string `json:"error,omitempty"`
	Repository    string `json:"repository,omitempty"`
	Operation     string `json:"operation,omitempty"`
	Branch        string `json:"branch,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
}

// CreateTaskRequest represents the task submission request body.
type CreateTaskRequest struct {
	ProjectID   string             `json:"project_id" validate:"required,uuid"`
	Description string             `json:"description" validate:"required,min=1"`
	Capability  string             `json:"capability" validate:"required"`
	Context     TaskContextRequest `json:"context"`
}

// UpdateTaskStatusRequest represents the status report request body for
// PATCH /tasks/{id}/status.
type UpdateTaskStatusRequest struct {
	Status   string          `json:"status" validate:"required"`
	Progress *int            `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *string         `json:"error,omitempty"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ProjectID   string          `json:"project_id"`
	Description string          `json:"description"`
	Capability  string          `json:"capability"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CreateMessageRequest represents the message append request body.
type CreateMessageRequest struct {
	Role     string         `json:"role" validate:"required,oneof=user assistant system"`
	Content  string         `json:"content" validate:"required,min=1"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageResponse represents the response data for a message.
type MessageResponse struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateProjectRequest represents the project creation request body.
type CreateProjectRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=200"`
	Description   string `json:"description,omitempty"`
	RepositoryURL string `json:"repository_url,omitempty" validate:"omitempty,url"`
}

// ProjectResponse represents the response data for a project.
type ProjectResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	RepositoryURL string    `json:"repository_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// taskToResponse converts a domain.Task to a TaskResponse.
func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		UserID:      t.UserID.String(),
		ProjectID:   t.ProjectID.String(),
		Description: t.Description,
		Capability:  string(t.Capability),
		Status:      string(t.Status),
		Progress:    t.Progress,
		Result:      t.Result,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// messageToResponse converts a domain.Message to a MessageResponse.
func messageToResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID.String(),
		TaskID:    m.TaskID.String(),
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

// projectToResponse converts a domain.Project to a ProjectResponse.
func projectToResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID.String(),
		UserID:        p.UserID.String(),
		Name:          p.Name,
		Description:   p.Description,
		RepositoryURL: p.RepositoryURL,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
