package service

import (
	"context"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/google/uuid"
)

type mockEvidenceStore struct {
	events    []domain.EvidenceEvent
	appendErr error
}

func (m *mockEvidenceStore) Append(ctx context.Context, events []domain.EvidenceEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEvidenceStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.EvidenceEvent, error) {
	return m.events, nil
}

func (m *mockEvidenceStore) byKind(kind domain.EvidenceKind) []domain.EvidenceEvent {
	var out []domain.EvidenceEvent
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type mockRefusalStore struct {
	events []domain.RefusalEvent
}

func (m *mockRefusalStore) Append(ctx context.Context, e *domain.RefusalEvent) error {
	m.events = append(m.events, *e)
	return nil
}

func (m *mockRefusalStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.RefusalEvent, error) {
	return m.events, nil
}

func (m *mockRefusalStore) CountByRun(ctx context.Context, runID uuid.UUID) (int, error) {
	return len(m.events), nil
}

type mockDecisionStore struct {
	events []domain.DecisionEvent
}

func (m *mockDecisionStore) Append(ctx context.Context, e *domain.DecisionEvent) error {
	m.events = append(m.events, *e)
	return nil
}

func (m *mockDecisionStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.DecisionEvent, error) {
	return m.events, nil
}

type mockDiagnosticStore struct {
	events []domain.DiagnosticEvent
}

func (m *mockDiagnosticStore) Append(ctx context.Context, e *domain.DiagnosticEvent) error {
	m.events = append(m.events, *e)
	return nil
}

func (m *mockDiagnosticStore) ListByRun(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.DiagnosticEvent, error) {
	return m.events, nil
}
