package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
)

// ProjectService provides project CRUD operations scoped to the owning user.
type ProjectService interface {
	// CreateProject creates a project for the user.
	CreateProject(
		ctx context.Context,
		userID uuid.UUID,
		name, description, repositoryURL string,
	) (*domain.Project, error)

	// GetProject retrieves a project owned by the user.
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*domain.Project, error)

	// UpdateProject updates a project owned by the user.
	UpdateProject(
		ctx context.Context,
		userID, projectID uuid.UUID,
		name, description, repositoryURL string,
	) (*domain.Project, error)

	// DeleteProject removes a project owned by the user.
	DeleteProject(ctx context.Context, userID, projectID uuid.UUID) error

	// ListProjects retrieves the user's projects, newest first.
	ListProjects(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Project, error)
}

// projectServiceImpl implements the ProjectService interface
type projectServiceImpl struct {
	projectStore store.ProjectStore
	logger       *slog.Logger
}

// NewProjectService creates a new ProjectService.
// It returns an error if the project store is nil.
func NewProjectService(
	projectStore store.ProjectStore,
	logger *slog.Logger,
) (ProjectService, error) {
	if projectStore == nil {
		return nil, &ServiceError{
			Service:   "project_service",
			Operation: "create_service",
			Message:   "projectStore cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &projectServiceImpl{
		projectStore: projectStore,
		logger:       logger.With("component", "project_service"),
	}, nil
}

// CreateProject creates a project for the user.
func (s *projectServiceImpl) CreateProject(
	ctx context.Context,
	userID uuid.UUID,
	name, description, repositoryURL string,
) (*domain.Project, error) {
	project, err := domain.NewProject(userID, name, description, repositoryURL)
	if err != nil {
		return nil, err
	}

	if err := s.projectStore.Create(ctx, project); err != nil {
		return nil, &ServiceError{
			Service:   "project_service",
			Operation: "create_project",
			Message:   "failed to save project",
			Err:       err,
		}
	}

	s.logger.Info("project created", "project_id", project.ID, "user_id", userID)
	return project, nil
}

// GetProject retrieves a project owned by the user.
func (s *projectServiceImpl) GetProject(
	ctx context.Context,
	userID, projectID uuid.UUID,
) (*domain.Project, error) {
	return s.ownedProject(ctx, userID, projectID)
}

// UpdateProject updates a project owned by the user.
func (s *projectServiceImpl) UpdateProject(
	ctx context.Context,
	userID, projectID uuid.UUID,
	name, description, repositoryURL string,
) (*domain.Project, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	project.Name = name
	project.Description = description
	project.RepositoryURL = repositoryURL

	if err := s.projectStore.Update(ctx, project); err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrProjectNotFound
		}
		return nil, &ServiceError{
			Service:   "project_service",
			Operation: "update_project",
			Message:   "failed to update project",
			Err:       err,
		}
	}

	return project, nil
}

// DeleteProject removes a project owned by the user.
func (s *projectServiceImpl) DeleteProject(
	ctx context.Context,
	userID, projectID uuid.UUID,
) error {
	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return err
	}

	if err := s.projectStore.Delete(ctx, projectID); err != nil {
		if store.IsNotFoundError(err) {
			return ErrProjectNotFound
		}
		return &ServiceError{
			Service:   "project_service",
			Operation: "delete_project",
			Message:   "failed to delete project",
			Err:       err,
		}
	}

	s.logger.Info("project deleted", "project_id", projectID, "user_id", userID)
	return nil
}

// ListProjects retrieves the user's projects, newest first.
func (s *projectServiceImpl) ListProjects(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]*domain.Project, error) {
	projects, err := s.projectStore.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, &ServiceError{
			Service:   "project_service",
			Operation: "list_projects",
			Message:   "failed to list projects",
			Err:       err,
		}
	}
	return projects, nil
}

func (s *projectServiceImpl) ownedProject(
	ctx context.Context,
	userID, projectID uuid.UUID,
) (*domain.Project, error) {
	project, err := s.projectStore.GetByID(ctx, projectID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrProjectNotFound
		}
		return nil, &ServiceError{
			Service:   "project_service",
			Operation: "get_project",
			Message:   "failed to retrieve project",
			Err:       err,
		}
	}
	if project.UserID != userID {
		return nil, ErrProjectNotFound
	}
	return project, nil
}
