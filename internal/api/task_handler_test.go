package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
)

func TestCreateTask(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	projectID := uuid.New()

	t.Run("accepted submission returns 202 with pending task", func(t *testing.T) {
		t.Parallel()

		var gotCapability domain.Capability
		svc := &mockTaskService{
			createFn: func(_ context.Context, gotUser, gotProject uuid.UUID, description string,
				capability domain.Capability, taskCtx domain.TaskContext) (*domain.Task, error) {
				assert.Equal(t, userID, gotUser)
				assert.Equal(t, projectID, gotProject)
				gotCapability = capability
				return domain.NewTask(gotUser, gotProject, description, capability, taskCtx)
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodPost, "/api/tasks", CreateTaskRequest{
			ProjectID:   projectID.String(),
			Description: "explain this function",
			Capability:  "analyze",
			Context:     TaskContextRequest{Code: "func main() {}"},
		}, userID, nil)
		rr := httptest.NewRecorder()

		handler.CreateTask(rr, req)

		require.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, domain.CapabilityAnalyze, gotCapability)

		var resp TaskResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, string(domain.TaskStatusPending), resp.Status)
		assert.Equal(t, 0, resp.Progress)
		assert.Nil(t, resp.StartedAt)
		assert.Nil(t, resp.CompletedAt)
	})

	t.Run("missing authentication returns 401", func(t *testing.T) {
		t.Parallel()

		handler := NewTaskHandler(&mockTaskService{})
		req := newAuthenticatedRequest(t, http.MethodPost, "/api/tasks",
			CreateTaskRequest{}, uuid.Nil, nil)
		rr := httptest.NewRecorder()

		handler.CreateTask(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown capability returns 400", func(t *testing.T) {
		t.Parallel()

		handler := NewTaskHandler(&mockTaskService{})
		req := newAuthenticatedRequest(t, http.MethodPost, "/api/tasks", CreateTaskRequest{
			ProjectID:   projectID.String(),
			Description: "do something",
			Capability:  "teleport",
		}, userID, nil)
		rr := httptest.NewRecorder()

		handler.CreateTask(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing capability context returns 400", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			createFn: func(_ context.Context, gotUser, gotProject uuid.UUID, description string,
				capability domain.Capability, taskCtx domain.TaskContext) (*domain.Task, error) {
				return domain.NewTask(gotUser, gotProject, description, capability, taskCtx)
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodPost, "/api/tasks", CreateTaskRequest{
			ProjectID:   projectID.String(),
			Description: "fix it",
			Capability:  "fix",
			Context:     TaskContextRequest{Code: "func main() {}"}, // no error text
		}, userID, nil)
		rr := httptest.NewRecorder()

		handler.CreateTask(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("foreign project returns 404", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			createFn: func(context.Context, uuid.UUID, uuid.UUID, string,
				domain.Capability, domain.TaskContext) (*domain.Task, error) {
				return nil, store.ErrProjectNotFound
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodPost, "/api/tasks", CreateTaskRequest{
			ProjectID:   projectID.String(),
			Description: "explain this function",
			Capability:  "analyze",
			Context:     TaskContextRequest{Code: "func main() {}"},
		}, userID, nil)
		rr := httptest.NewRecorder()

		handler.CreateTask(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("returns owned task", func(t *testing.T) {
		t.Parallel()

		task := pendingTask(t, userID)
		svc := &mockTaskService{
			getFn: func(_ context.Context, gotUser, gotTask uuid.UUID) (*domain.Task, error) {
				assert.Equal(t, userID, gotUser)
				assert.Equal(t, task.ID, gotTask)
				return task, nil
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodGet, "/api/tasks/"+task.ID.String(),
			nil, userID, map[string]string{"id": task.ID.String()})
		rr := httptest.NewRecorder()

		handler.GetTask(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp TaskResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, task.ID.String(), resp.ID)
	})

	t.Run("unknown task returns 404", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			getFn: func(context.Context, uuid.UUID, uuid.UUID) (*domain.Task, error) {
				return nil, store.ErrTaskNotFound
			},
		}
		handler := NewTaskHandler(svc)

		taskID := uuid.New()
		req := newAuthenticatedRequest(t, http.MethodGet, "/api/tasks/"+taskID.String(),
			nil, userID, map[string]string{"id": taskID.String()})
		rr := httptest.NewRecorder()

		handler.GetTask(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("malformed task ID returns 400", func(t *testing.T) {
		t.Parallel()

		handler := NewTaskHandler(&mockTaskService{})
		req := newAuthenticatedRequest(t, http.MethodGet, "/api/tasks/not-a-uuid",
			nil, userID, map[string]string{"id": "not-a-uuid"})
		rr := httptest.NewRecorder()

		handler.GetTask(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListTasks(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("applies filters from query parameters", func(t *testing.T) {
		t.Parallel()

		projectID := uuid.New()
		var gotFilter store.TaskFilter
		svc := &mockTaskService{
			listFn: func(_ context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
				gotFilter = filter
				return []*domain.Task{pendingTask(t, userID)}, nil
			},
		}
		handler := NewTaskHandler(svc)

		target := "/api/tasks?project_id=" + projectID.String() + "&status=running&limit=5&offset=10"
		req := newAuthenticatedRequest(t, http.MethodGet, target, nil, userID, nil)
		rr := httptest.NewRecorder()

		handler.ListTasks(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, userID, gotFilter.UserID)
		require.NotNil(t, gotFilter.ProjectID)
		assert.Equal(t, projectID, *gotFilter.ProjectID)
		require.NotNil(t, gotFilter.Status)
		assert.Equal(t, domain.TaskStatusRunning, *gotFilter.Status)
		assert.Equal(t, 5, gotFilter.Limit)
		assert.Equal(t, 10, gotFilter.Offset)

		var resp []TaskResponse
		decodeBody(t, rr, &resp)
		assert.Len(t, resp, 1)
	})

	t.Run("caps oversized limits", func(t *testing.T) {
		t.Parallel()

		var gotFilter store.TaskFilter
		svc := &mockTaskService{
			listFn: func(_ context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
				gotFilter = filter
				return nil, nil
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodGet, "/api/tasks?limit=5000", nil, userID, nil)
		rr := httptest.NewRecorder()

		handler.ListTasks(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, maxTaskPageSize, gotFilter.Limit)
	})

	t.Run("invalid status returns 400", func(t *testing.T) {
		t.Parallel()

		handler := NewTaskHandler(&mockTaskService{})
		req := newAuthenticatedRequest(t, http.MethodGet, "/api/tasks?status=exploded", nil, userID, nil)
		rr := httptest.NewRecorder()

		handler.ListTasks(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("legal transition returns updated task", func(t *testing.T) {
		t.Parallel()

		task := pendingTask(t, userID)
		progress := 40
		svc := &mockTaskService{
			updateFn: func(_ context.Context, _, _ uuid.UUID,
				update store.TaskStatusUpdate) (*domain.Task, error) {
				assert.Equal(t, domain.TaskStatusRunning, update.Status)
				require.NotNil(t, update.Progress)
				assert.Equal(t, progress, *update.Progress)

				updated := *task
				updated.Status = domain.TaskStatusRunning
				updated.Progress = *update.Progress
				return &updated, nil
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodPatch,
			"/api/tasks/"+task.ID.String()+"/status",
			UpdateTaskStatusRequest{Status: "running", Progress: &progress},
			userID, map[string]string{"id": task.ID.String()})
		rr := httptest.NewRecorder()

		handler.UpdateTaskStatus(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp TaskResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, string(domain.TaskStatusRunning), resp.Status)
		assert.Equal(t, progress, resp.Progress)
	})

	t.Run("illegal transition returns 409", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			updateFn: func(context.Context, uuid.UUID, uuid.UUID,
				store.TaskStatusUpdate) (*domain.Task, error) {
				return nil, domain.ErrIllegalTransition
			},
		}
		handler := NewTaskHandler(svc)

		taskID := uuid.New()
		req := newAuthenticatedRequest(t, http.MethodPatch,
			"/api/tasks/"+taskID.String()+"/status",
			UpdateTaskStatusRequest{Status: "running"},
			userID, map[string]string{"id": taskID.String()})
		rr := httptest.NewRecorder()

		handler.UpdateTaskStatus(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("out of range progress returns 400", func(t *testing.T) {
		t.Parallel()

		handler := NewTaskHandler(&mockTaskService{})
		taskID := uuid.New()
		progress := 150
		req := newAuthenticatedRequest(t, http.MethodPatch,
			"/api/tasks/"+taskID.String()+"/status",
			UpdateTaskStatusRequest{Status: "running", Progress: &progress},
			userID, map[string]string{"id": taskID.String()})
		rr := httptest.NewRecorder()

		handler.UpdateTaskStatus(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown status returns 400", func(t *testing.T) {
		t.Parallel()

		handler := NewTaskHandler(&mockTaskService{})
		taskID := uuid.New()
		req := newAuthenticatedRequest(t, http.MethodPatch,
			"/api/tasks/"+taskID.String()+"/status",
			UpdateTaskStatusRequest{Status: "finished"},
			userID, map[string]string{"id": taskID.String()})
		rr := httptest.NewRecorder()

		handler.UpdateTaskStatus(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCancelTask(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("cancels pending task", func(t *testing.T) {
		t.Parallel()

		task := pendingTask(t, userID)
		svc := &mockTaskService{
			cancelFn: func(_ context.Context, _, gotTask uuid.UUID) (*domain.Task, error) {
				assert.Equal(t, task.ID, gotTask)
				cancelled := *task
				cancelled.Status = domain.TaskStatusCancelled
				return &cancelled, nil
			},
		}
		handler := NewTaskHandler(svc)

		req := newAuthenticatedRequest(t, http.MethodPost,
			"/api/tasks/"+task.ID.String()+"/cancel",
			nil, userID, map[string]string{"id": task.ID.String()})
		rr := httptest.NewRecorder()

		handler.CancelTask(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp TaskResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, string(domain.TaskStatusCancelled), resp.Status)
	})

	t.Run("cancelling a terminal task returns 409", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			cancelFn: func(context.Context, uuid.UUID, uuid.UUID) (*domain.Task, error) {
				return nil, domain.ErrIllegalTransition
			},
		}
		handler := NewTaskHandler(svc)

		taskID := uuid.New()
		req := newAuthenticatedRequest(t, http.MethodPost,
			"/api/tasks/"+taskID.String()+"/cancel",
			nil, userID, map[string]string{"id": taskID.String()})
		rr := httptest.NewRecorder()

		handler.CancelTask(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
