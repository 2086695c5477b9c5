package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calyxbio/warrant/internal/config"
	"github.com/calyxbio/warrant/internal/domain"
	"github.com/calyxbio/warrant/internal/service"
	"github.com/calyxbio/warrant/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockRunStore mocks the RunStore interface.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Create(ctx context.Context, r *domain.Run) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Run), args.Error(1)
}

func (m *MockRunStore) List(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Run), args.Error(1)
}

func (m *MockRunStore) MarkStarted(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRunStore) MarkFinished(ctx context.Context, id uuid.UUID, status domain.RunStatus, summary *domain.RunSummary, failureReason string) error {
	args := m.Called(ctx, id, status, summary, failureReason)
	return args.Error(0)
}

// newIdleRunner builds a runner that queues without executing; the consumer
// goroutine is never started.
func newIdleRunner(runs domain.RunStore) *service.RunnerService {
	return service.NewRunnerService(runs, nil, nil, nil, nil, nil, nil, zap.NewNop())
}

func TestCreateRun(t *testing.T) {
	runStore := new(MockRunStore)
	runStore.On("Create", mock.Anything, mock.AnythingOfType("*domain.Run")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Run).ID = uuid.New()
		}).
		Return(nil)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	body, _ := json.Marshal(config.DefaultRunSpec())
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Run
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEqual(t, uuid.Nil, created.ID)
	runStore.AssertExpectations(t)
}

func TestCreateRunRejectsInvalidSpec(t *testing.T) {
	runStore := new(MockRunStore)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	spec := config.DefaultRunSpec()
	spec.TotalBudget = 0
	body, _ := json.Marshal(spec)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateRunRejectsMalformedBody(t *testing.T) {
	runStore := new(MockRunStore)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunQueueFull(t *testing.T) {
	runStore := new(MockRunStore)
	runStore.On("Create", mock.Anything, mock.Anything).Return(nil)
	runner := newIdleRunner(runStore)
	for {
		if err := runner.Enqueue(&domain.Run{ID: uuid.New()}); err != nil {
			break
		}
	}
	h := NewRunHandler(runStore, runner)

	body, _ := json.Marshal(config.DefaultRunSpec())
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRunByID(t *testing.T) {
	id := uuid.New()
	runStore := new(MockRunStore)
	runStore.On("GetByID", mock.Anything, id).
		Return(&domain.Run{ID: id, Status: domain.RunCompleted}, nil)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	router := chi.NewRouter()
	router.Get("/v1/runs/{id}", h.GetByID)
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got domain.Run
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, domain.RunCompleted, got.Status)
}

func TestGetRunByIDNotFound(t *testing.T) {
	id := uuid.New()
	runStore := new(MockRunStore)
	runStore.On("GetByID", mock.Anything, id).Return(nil, store.ErrNotFound)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	router := chi.NewRouter()
	router.Get("/v1/runs/{id}", h.GetByID)
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunByIDBadID(t *testing.T) {
	runStore := new(MockRunStore)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	router := chi.NewRouter()
	router.Get("/v1/runs/{id}", h.GetByID)
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runStore.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestListRunsEmptyIsArray(t *testing.T) {
	runStore := new(MockRunStore)
	runStore.On("List", mock.Anything, defaultPageLimit, 0).Return(nil, nil)
	h := NewRunHandler(runStore, newIdleRunner(runStore))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]domain.Run
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotNil(t, resp["runs"])
	assert.Empty(t, resp["runs"])
}
