package world

import (
	"fmt"

	"github.com/calyxbio/warrant/internal/domain"
	"go.uber.org/zap"
)

// Provider constants
const (
	ProviderSim  = "sim"
	ProviderMock = "mock"
)

// NewClient creates a world client based on the provider name. The core
// never learns which one it got.
func NewClient(provider string, workers int, logger *zap.Logger) (domain.WorldClient, error) {
	switch provider {
	case ProviderSim:
		return NewSimulator(workers, logger), nil
	case ProviderMock:
		return NewMockWorld(), nil
	default:
		return nil, fmt.Errorf("unknown world provider: %s", provider)
	}
}
