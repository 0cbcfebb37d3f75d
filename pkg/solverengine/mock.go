package solverengine

import (
	"context"

	"github.com/cowbatch/settlement/pkg/domain"
)

// MockEngine is a scripted Engine for driver tests.
type MockEngine struct {
	Solutions []*domain.Solution
	Err       error
}

func (m *MockEngine) Solve(_ context.Context, _ *domain.Auction) ([]*domain.Solution, error) {
	return m.Solutions, m.Err
}
