package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/api/shared"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/service/auth"
	"github.com/vkalinin/devagent-api/internal/store"
)

// mockTaskService implements service.TaskService with function fields so each
// test can script exactly the behavior it needs.
type mockTaskService struct {
	createFn func(ctx context.Context, userID, projectID uuid.UUID, description string,
		capability domain.Capability, taskCtx domain.TaskContext) (*domain.Task, error)
	getFn    func(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
	listFn   func(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)
	updateFn func(ctx context.Context, userID, taskID uuid.UUID,
		update store.TaskStatusUpdate) (*domain.Task, error)
	cancelFn func(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
}

func (m *mockTaskService) CreateTaskAndEnqueue(
	ctx context.Context,
	userID, projectID uuid.UUID,
	description string,
	capability domain.Capability,
	taskCtx domain.TaskContext,
) (*domain.Task, error) {
	return m.createFn(ctx, userID, projectID, description, capability, taskCtx)
}

func (m *mockTaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	return m.getFn(ctx, userID, taskID)
}

func (m *mockTaskService) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	return m.listFn(ctx, filter)
}

func (m *mockTaskService) ApplyStatusUpdate(
	ctx context.Context,
	userID, taskID uuid.UUID,
	update store.TaskStatusUpdate,
) (*domain.Task, error) {
	return m.updateFn(ctx, userID, taskID, update)
}

func (m *mockTaskService) CancelTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	return m.cancelFn(ctx, userID, taskID)
}

// mockUserStore implements store.UserStore with function fields.
type mockUserStore struct {
	createFn     func(ctx context.Context, user *domain.User) error
	getByIDFn    func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	getByEmailFn func(ctx context.Context, email string) (*domain.User, error)
}

func (m *mockUserStore) Create(ctx context.Context, user *domain.User) error {
	return m.createFn(ctx, user)
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getByIDFn(ctx, id)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getByEmailFn(ctx, email)
}

func (m *mockUserStore) WithTx(_ *sql.Tx) store.UserStore { return m }

// mockJWTService implements auth.JWTService returning canned tokens.
type mockJWTService struct {
	generateErr     error
	validateFn      func(tokenString string) (*auth.Claims, error)
	validateRefresh func(tokenString string) (*auth.Claims, error)
}

func (m *mockJWTService) GenerateToken(_ context.Context, userID uuid.UUID) (string, error) {
	if m.generateErr != nil {
		return "", m.generateErr
	}
	return "access-" + userID.String(), nil
}

func (m *mockJWTService) ValidateToken(_ context.Context, tokenString string) (*auth.Claims, error) {
	if m.validateFn != nil {
		return m.validateFn(tokenString)
	}
	return nil, auth.ErrInvalidToken
}

func (m *mockJWTService) GenerateRefreshToken(_ context.Context, userID uuid.UUID) (string, error) {
	if m.generateErr != nil {
		return "", m.generateErr
	}
	return "refresh-" + userID.String(), nil
}

func (m *mockJWTService) ValidateRefreshToken(_ context.Context, tokenString string) (*auth.Claims, error) {
	if m.validateRefresh != nil {
		return m.validateRefresh(tokenString)
	}
	return nil, auth.ErrInvalidRefreshToken
}

// mockPasswordVerifier scripts the outcome of password comparison.
type mockPasswordVerifier struct {
	compareErr error
}

func (m *mockPasswordVerifier) Compare(_, _ string) error { return m.compareErr }

// newAuthenticatedRequest builds a request carrying the user ID the auth
// middleware would have injected, plus any chi URL parameters.
func newAuthenticatedRequest(
	t *testing.T,
	method, target string,
	body any,
	userID uuid.UUID,
	urlParams map[string]string,
) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if userID != uuid.Nil {
		ctx = context.WithValue(ctx, shared.UserIDContextKey, userID)
	}

	if len(urlParams) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range urlParams {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}

	return req.WithContext(ctx)
}

// decodeBody unmarshals a recorded response body into out.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
}

// pendingTask builds a freshly submitted task fixture.
func pendingTask(t *testing.T, userID uuid.UUID) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(userID, uuid.New(), "explain this function",
		domain.CapabilityAnalyze, domain.TaskContext{Code: "func main() {}"})
	if err != nil {
		t.Fatalf("failed to build task fixture: %v", err)
	}
	return task
}
