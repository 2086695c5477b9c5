package world

import (
	"context"

	"github.com/calyxbio/warrant/internal/domain"
)

// MockWorld is a configurable world client for testing. Set Wells/Err to
// control what Execute returns, or ExecuteFunc to script it per call.
type MockWorld struct {
	Wells       []domain.RawWell
	Err         error
	ExecuteFunc func(ctx context.Context, p *domain.Proposal) ([]domain.RawWell, error)

	// Call tracking for assertions
	ExecuteCalls []*domain.Proposal
}

func NewMockWorld() *MockWorld {
	return &MockWorld{}
}

func (m *MockWorld) Execute(ctx context.Context, p *domain.Proposal) ([]domain.RawWell, error) {
	m.ExecuteCalls = append(m.ExecuteCalls, p)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, p)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Wells, nil
}
