package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Capability identifies the kind of work a task asks the agent to perform.
type Capability string

// Supported capabilities
const (
	CapabilityAnalyze  Capability = "analyze"
	CapabilityGenerate Capability = "generate"
	CapabilityFix      Capability = "fix"
	CapabilityGitOp    Capability = "git-op"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID          = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID      = errors.New("task user ID cannot be empty")
	ErrEmptyTaskProjectID   = errors.New("task project ID cannot be empty")
	ErrEmptyTaskDescription = errors.New("task description cannot be empty")
	ErrInvalidTaskStatus    = errors.New("invalid task status")
	ErrInvalidCapability    = errors.New("invalid capability")
	ErrInvalidProgress      = errors.New("progress must be between 0 and 100")
	ErrMissingContext       = errors.New("missing required context for capability")

	// ErrIllegalTransition is returned when a status update would violate the
	// task state machine. It surfaces to API clients as a Conflict.
	ErrIllegalTransition = errors.New("illegal task status transition")
)

// TaskContext carries the capability-specific input supplied at submission.
// Exactly which fields are required depends on the capability; see
// ValidateForCapability.
type TaskContext struct {
	// Code is a source snippet for analyze/generate/fix requests.
	Code string `json:"code,omitempty"`

	// Error is the observed error text for fix requests.
	Error string `json:"error,omitempty"`

	// Repository is the clone URL for git-op requests.
	Repository string `json:"repository,omitempty"`

	// Operation names the git operation to perform (clone, commit, push,
	// pull-request) for git-op requests.
	Operation string `json:"operation,omitempty"`

	// Branch optionally selects a branch for git operations.
	Branch string `json:"branch,omitempty"`

	// CommitMessage is used by commit and pull-request operations.
	CommitMessage string `json:"commit_message,omitempty"`
}

// Task represents a unit of agent work submitted by a user. Its status,
// progress, result and error fields are mutated exclusively through the
// validated store update path after creation.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Description string          `json:"description"`
	Capability  Capability      `json:"capability"`
	Context     TaskContext     `json:"context"`
	Status      TaskStatus      `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewTask creates a new Task in the pending state with progress 0.
// Returns an error if validation fails, including a missing-context error
// when the supplied context does not satisfy the capability.
func NewTask(
	userID, projectID uuid.UUID,
	description string,
	capability Capability,
	taskCtx TaskContext,
) (*Task, error) {
	task := &Task{
		ID:          uuid.New(),
		UserID:      userID,
		ProjectID:   projectID,
		Description: description,
		Capability:  capability,
		Context:     taskCtx,
		Status:      TaskStatusPending,
		Progress:    0,
		CreatedAt:   time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if t.ProjectID == uuid.Nil {
		return ErrEmptyTaskProjectID
	}

	if t.Description == "" {
		return ErrEmptyTaskDescription
	}

	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if !IsValidCapability(t.Capability) {
		return ErrInvalidCapability
	}

	if t.Progress < 0 || t.Progress > 100 {
		return ErrInvalidProgress
	}

	return t.Context.ValidateForCapability(t.Capability)
}

// ValidateForCapability checks that the context carries the fields the given
// capability requires. Submissions failing this check are rejected before any
// task is created.
func (c TaskContext) ValidateForCapability(capability Capability) error {
	switch capability {
	case CapabilityAnalyze, CapabilityGenerate:
		if c.Code == "" {
			return fmt.Errorf("%w: %s requires a code snippet", ErrMissingContext, capability)
		}
	case CapabilityFix:
		if c.Code == "" {
			return fmt.Errorf("%w: fix requires a code snippet", ErrMissingContext)
		}
		if c.Error == "" {
			return fmt.Errorf("%w: fix requires the observed error text", ErrMissingContext)
		}
	case CapabilityGitOp:
		if c.Repository == "" {
			return fmt.Errorf("%w: git-op requires a repository reference", ErrMissingContext)
		}
		if c.Operation == "" {
			return fmt.Errorf("%w: git-op requires an operation", ErrMissingContext)
		}
	default:
		return ErrInvalidCapability
	}

	return nil
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSucceeded,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidCapability checks if the given capability is supported.
func IsValidCapability(capability Capability) bool {
	switch capability {
	case CapabilityAnalyze, CapabilityGenerate, CapabilityFix, CapabilityGitOp:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to target is a legal step in
// the task state machine. running→running is allowed so the executor can
// persist progress updates and retry resets without a status change.
func (s TaskStatus) CanTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return target == TaskStatusRunning || target == TaskStatusCancelled
	case TaskStatusRunning:
		return target == TaskStatusRunning ||
			target == TaskStatusSucceeded ||
			target == TaskStatusFailed ||
			target == TaskStatusCancelled
	default:
		// Terminal states are immutable.
		return false
	}
}
