package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calyxbio/warrant/internal/calibration"
	"github.com/calyxbio/warrant/internal/domain"
	"github.com/calyxbio/warrant/internal/world"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockRunStore struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*domain.Run
	started  []uuid.UUID
	finished map[uuid.UUID]domain.RunStatus
}

func newMockRunStore() *mockRunStore {
	return &mockRunStore{
		runs:     make(map[uuid.UUID]*domain.Run),
		finished: make(map[uuid.UUID]domain.RunStatus),
	}
}

func (m *mockRunStore) Create(ctx context.Context, r *domain.Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.runs[r.ID] = r
	return nil
}

func (m *mockRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	return m.runs[id], nil
}

func (m *mockRunStore) List(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	return nil, nil
}

func (m *mockRunStore) MarkStarted(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, id)
	return nil
}

func (m *mockRunStore) MarkFinished(ctx context.Context, id uuid.UUID, status domain.RunStatus, summary *domain.RunSummary, failureReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[id] = status
	if r, ok := m.runs[id]; ok {
		r.Status = status
		r.Summary = summary
		r.FailureReason = failureReason
	}
	return nil
}

func (m *mockRunStore) finishedStatus(id uuid.UUID) domain.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[id]
}

func newTestRunner(runStore *mockRunStore, w domain.WorldClient) *RunnerService {
	return NewRunnerService(
		runStore,
		&mockEvidenceStore{},
		&mockRefusalStore{},
		&mockDecisionStore{},
		&mockDiagnosticStore{},
		w,
		calibration.NewStaticSource(calibration.DefaultProfile()),
		zap.NewNop(),
	)
}

func TestExecuteRunCompletes(t *testing.T) {
	runStore := newMockRunStore()
	sim := world.NewSimulator(2, zap.NewNop())
	runner := newTestRunner(runStore, sim)

	spec := testRunSpec()
	spec.MaxCycles = 3
	run := &domain.Run{ID: uuid.New(), Spec: spec}
	runStore.runs[run.ID] = run

	runner.ExecuteRun(context.Background(), run)

	if len(runStore.started) != 1 || runStore.started[0] != run.ID {
		t.Fatalf("started = %v, want [%s]", runStore.started, run.ID)
	}
	if runStore.finished[run.ID] != domain.RunCompleted {
		t.Fatalf("final status = %s, want completed", runStore.finished[run.ID])
	}
	if run.Summary == nil {
		t.Fatal("no summary persisted")
	}
	if run.Summary.CyclesExecuted == 0 {
		t.Fatal("summary shows no cycles executed")
	}
}

func TestExecuteRunFailsOnWorldError(t *testing.T) {
	runStore := newMockRunStore()
	mw := world.NewMockWorld()
	mw.Err = context.DeadlineExceeded
	runner := newTestRunner(runStore, mw)

	run := &domain.Run{ID: uuid.New(), Spec: testRunSpec()}
	runStore.runs[run.ID] = run

	runner.ExecuteRun(context.Background(), run)

	if runStore.finished[run.ID] != domain.RunFailed {
		t.Fatalf("final status = %s, want failed", runStore.finished[run.ID])
	}
	if run.FailureReason == "" {
		t.Fatal("no failure reason persisted")
	}
}

func TestRunnerQueueLifecycle(t *testing.T) {
	runStore := newMockRunStore()
	mw := world.NewMockWorld()
	mw.ExecuteFunc = func(ctx context.Context, p *domain.Proposal) ([]domain.RawWell, error) {
		return wellsFor(p, quietValues), nil
	}
	runner := newTestRunner(runStore, mw)

	spec := testRunSpec()
	spec.MaxCycles = 1
	run := &domain.Run{ID: uuid.New(), Spec: spec}
	runStore.runs[run.ID] = run

	runner.Start()
	if err := runner.Enqueue(run); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var status domain.RunStatus
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status = runStore.finishedStatus(run.ID); status != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	runner.Stop()

	if status != domain.RunCompleted {
		t.Fatalf("queued run status = %q, want completed", status)
	}
}
