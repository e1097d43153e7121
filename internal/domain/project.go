package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Project
var (
	ErrEmptyProjectID     = errors.New("project ID cannot be empty")
	ErrEmptyProjectUserID = errors.New("project user ID cannot be empty")
	ErrEmptyProjectName   = errors.New("project name cannot be empty")
)

// Project groups the tasks a user runs against one codebase. The repository
// URL, when set, is the default target for git operations.
type Project struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	RepositoryURL string    `json:"repository_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewProject creates a new Project owned by the given user.
// Returns an error if validation fails.
func NewProject(userID uuid.UUID, name, description, repositoryURL string) (*Project, error) {
	project := &Project{
		ID:            uuid.New(),
		UserID:        userID,
		Name:          name,
		Description:   description,
		RepositoryURL: repositoryURL,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}

	return project, nil
}

// Validate checks if the Project has valid data.
func (p *Project) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyProjectID
	}

	if p.UserID == uuid.Nil {
		return ErrEmptyProjectUserID
	}

	if p.Name == "" {
		return ErrEmptyProjectName
	}

	return nil
}
