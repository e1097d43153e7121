package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/capability"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
)

// memoryTaskStore is an in-memory TaskStore applying the same transition
// rules as the real store, so executor tests exercise the state machine
// without a database.
type memoryTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *memoryTaskStore) put(t *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.tasks[t.ID] = &clone
}

func (s *memoryTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *memoryTaskStore) UpdateStatus(
	_ context.Context,
	id uuid.UUID,
	update store.TaskStatusUpdate,
) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	if !t.Status.CanTransition(update.Status) {
		return nil, domain.ErrIllegalTransition
	}

	now := time.Now().UTC()
	t.Status = update.Status
	if update.Progress != nil {
		t.Progress = *update.Progress
	}

	switch update.Status {
	case domain.TaskStatusRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case domain.TaskStatusSucceeded:
		t.Result = update.Result
		t.Progress = 100
		t.CompletedAt = &now
	case domain.TaskStatusFailed:
		if update.Error != nil {
			t.Error = *update.Error
		}
		t.CompletedAt = &now
	case domain.TaskStatusCancelled:
		t.CompletedAt = &now
	}

	clone := *t
	return &clone, nil
}

func (s *memoryTaskStore) FindByStatus(
	_ context.Context,
	status domain.TaskStatus,
	limit int,
) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.Status != status {
			continue
		}
		clone := *t
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// stubProvider returns canned responses per invocation, counting calls.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	results []stubResult
}

type stubResult struct {
	payload json.RawMessage
	err     error
}

func (p *stubProvider) Invoke(
	ctx context.Context,
	_ domain.Capability,
	_ domain.TaskContext,
) (json.RawMessage, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	capability.ReporterFromContext(ctx).ReportProgress(ctx, 30)
	capability.ReporterFromContext(ctx).ReportProgress(ctx, 70)

	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	r := p.results[idx]
	return r.payload, r.err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
