package testhelpers

import (
	"context"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"

	"github.com/stretchr/testify/mock"
)

// MockGameSessionRepository is a mock implementation of GameSessionRepository
type MockGameSessionRepository struct {
	mock.Mock
}

func (m *MockGameSessionRepository) Create(ctx context.Context, session *entities.GameSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockGameSessionRepository) GetByID(ctx context.Context, id string) (*entities.GameSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GameSession), args.Error(1)
}

func (m *MockGameSessionRepository) GetActiveByCashier(ctx context.Context, cashierID string) (*entities.GameSession, error) {
	args := m.Called(ctx, cashierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GameSession), args.Error(1)
}

func (m *MockGameSessionRepository) GetResumable(ctx context.Context) ([]*entities.GameSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.GameSession), args.Error(1)
}

func (m *MockGameSessionRepository) UpdateStatus(ctx context.Context, id string, status entities.SessionStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockGameSessionRepository) AppendDrawnNumber(ctx context.Context, id string, number int) (int, error) {
	args := m.Called(ctx, id, number)
	return args.Int(0), args.Error(1)
}

func (m *MockGameSessionRepository) GetDrawnNumbers(ctx context.Context, id string) ([]int, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockGameSessionRepository) AddToStakes(ctx context.Context, id string, delta float64) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

// MockTicketRepository is a mock implementation of TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *entities.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*entities.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByGameAndCartela(ctx context.Context, gameID, cartelaID string) (*entities.Ticket, error) {
	args := m.Called(ctx, gameID, cartelaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByGame(ctx context.Context, gameID string) ([]*entities.Ticket, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Ticket), args.Error(1)
}

func (m *MockTicketRepository) NextTicketNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTicketRepository) UpdateVerification(ctx context.Context, ticketID string, status entities.TicketStatus, result *entities.VerificationResult) error {
	args := m.Called(ctx, ticketID, status, result)
	return args.Error(0)
}

func (m *MockTicketRepository) LockVerification(ctx context.Context, ticketID string) error {
	args := m.Called(ctx, ticketID)
	return args.Error(0)
}

func (m *MockTicketRepository) RedeemWinnerIfFirst(ctx context.Context, gameID, ticketID string, winAmount float64) (bool, error) {
	args := m.Called(ctx, gameID, ticketID, winAmount)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketRepository) SettleSiblings(ctx context.Context, gameID, winnerTicketID string) (int, error) {
	args := m.Called(ctx, gameID, winnerTicketID)
	return args.Int(0), args.Error(1)
}

func (m *MockTicketRepository) MarkRedeemedLoser(ctx context.Context, ticketID string) error {
	args := m.Called(ctx, ticketID)
	return args.Error(0)
}

func (m *MockTicketRepository) Cancel(ctx context.Context, ticketID, reason string) error {
	args := m.Called(ctx, ticketID, reason)
	return args.Error(0)
}

// MockPatternRepository is a mock implementation of PatternRepository
type MockPatternRepository struct {
	mock.Mock
}

func (m *MockPatternRepository) GetActiveByShop(ctx context.Context, shopID string) ([]*entities.WinPattern, error) {
	args := m.Called(ctx, shopID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WinPattern), args.Error(1)
}

// MockCartelaRepository is a mock implementation of CartelaRepository
type MockCartelaRepository struct {
	mock.Mock
}

func (m *MockCartelaRepository) GetByID(ctx context.Context, id string) (*entities.Cartela, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Cartela), args.Error(1)
}

func (m *MockCartelaRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.Cartela, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Cartela), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// RecordingEventPublisher captures published events in order. It satisfies
// the transactional interface so it can stand in for a unit of work's bus.
type RecordingEventPublisher struct {
	Events []events.Event
}

func (p *RecordingEventPublisher) Publish(event events.Event) error {
	p.Events = append(p.Events, event)
	return nil
}

func (p *RecordingEventPublisher) Flush(ctx context.Context) error { return nil }

func (p *RecordingEventPublisher) Discard() { p.Events = nil }

// TypesOf returns the event types in publish order
func (p *RecordingEventPublisher) TypesOf() []events.EventType {
	types := make([]events.EventType, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.Type())
	}
	return types
}
