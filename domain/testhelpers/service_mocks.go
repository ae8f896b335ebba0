package testhelpers

import (
	"context"

	"github.com/YeabtsegaM/server-sub001/domain/entities"

	"github.com/stretchr/testify/mock"
)

// MockPatternMatcher is a mock implementation of PatternMatcher
type MockPatternMatcher struct {
	mock.Mock
}

func (m *MockPatternMatcher) Evaluate(ctx context.Context, shopID string, grid [entities.GridSize][entities.GridSize]int, drawnNumbers []int) (*entities.VerificationResult, error) {
	args := m.Called(ctx, shopID, grid, drawnNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VerificationResult), args.Error(1)
}

func (m *MockPatternMatcher) EvaluateBatch(ctx context.Context, shopID string, cartelas []*entities.Cartela, drawnNumbers []int) (map[string]*entities.VerificationResult, error) {
	args := m.Called(ctx, shopID, cartelas, drawnNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*entities.VerificationResult), args.Error(1)
}

func (m *MockPatternMatcher) Invalidate(shopID string) {
	m.Called(shopID)
}
