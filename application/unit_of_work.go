package application

import (
	"context"

	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
)

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and releases buffered events
	Commit() error

	// Rollback rolls back the transaction and discards buffered events
	Rollback() error

	// Repository getters
	GameSessionRepository() interfaces.GameSessionRepository
	TicketRepository() interfaces.TicketRepository
	PatternRepository() interfaces.PatternRepository
	CartelaRepository() interfaces.CartelaRepository
	EventBus() interfaces.EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// CreateForShop creates a new UnitOfWork instance scoped to a shop
	CreateForShop(shopID string) UnitOfWork
}
