package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
)

// mockTaskStore implements store.TaskStore with configurable function fields.
type mockTaskStore struct {
	createFn       func(ctx context.Context, task *domain.Task) error
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	updateStatusFn func(ctx context.Context, id uuid.UUID, update store.TaskStatusUpdate) (*domain.Task, error)
	listFn         func(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)
	findByStatusFn func(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)
}

var _ store.TaskStore = (*mockTaskStore)(nil)

func (m *mockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, task)
	}
	return nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrTaskNotFound
}

func (m *mockTaskStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	update store.TaskStatusUpdate,
) (*domain.Task, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, update)
	}
	return nil, store.ErrTaskNotFound
}

func (m *mockTaskStore) List(
	ctx context.Context,
	filter store.TaskFilter,
) ([]*domain.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []*domain.Task{}, nil
}

func (m *mockTaskStore) FindByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	limit int,
) ([]*domain.Task, error) {
	if m.findByStatusFn != nil {
		return m.findByStatusFn(ctx, status, limit)
	}
	return []*domain.Task{}, nil
}

func (m *mockTaskStore) WithTx(_ *sql.Tx) store.TaskStore {
	return m
}

// mockProjectStore implements store.ProjectStore with configurable fields.
type mockProjectStore struct {
	getByIDFn func(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

var _ store.ProjectStore = (*mockProjectStore)(nil)

func (m *mockProjectStore) Create(_ context.Context, _ *domain.Project) error { return nil }

func (m *mockProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrProjectNotFound
}

func (m *mockProjectStore) Update(_ context.Context, _ *domain.Project) error { return nil }

func (m *mockProjectStore) Delete(_ context.Context, _ uuid.UUID) error { return nil }

func (m *mockProjectStore) ListByUser(
	_ context.Context,
	_ uuid.UUID,
	_, _ int,
) ([]*domain.Project, error) {
	return []*domain.Project{}, nil
}

func (m *mockProjectStore) WithTx(_ *sql.Tx) store.ProjectStore { return m }

// mockEnqueuer records enqueued tasks.
type mockEnqueuer struct {
	enqueued []*domain.Task
	err      error
}

func (m *mockEnqueuer) Enqueue(t *domain.Task) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, t)
	return nil
}
