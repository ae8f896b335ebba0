package repository

import (
	"context"
	"fmt"

	"github.com/YeabtsegaM/server-sub001/application"
	"github.com/YeabtsegaM/server-sub001/database"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the application.UnitOfWork interface over a pgx
// transaction, with event publication deferred to a successful commit
type unitOfWork struct {
	db        *database.DB
	tx        pgx.Tx
	ctx       context.Context
	shopID    string
	publisher interfaces.TransactionalEventPublisher

	sessionRepo interfaces.GameSessionRepository
	ticketRepo  interfaces.TicketRepository
	patternRepo interfaces.PatternRepository
	cartelaRepo interfaces.CartelaRepository
}

type unitOfWorkFactory struct {
	db           *database.DB
	newPublisher func() interfaces.TransactionalEventPublisher
}

// NewUnitOfWorkFactory creates a UnitOfWork factory. newPublisher is called
// once per unit of work so each transaction buffers its own events.
func NewUnitOfWorkFactory(db *database.DB, newPublisher func() interfaces.TransactionalEventPublisher) application.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:           db,
		newPublisher: newPublisher,
	}
}

// CreateForShop creates a new UnitOfWork instance scoped to a shop
func (f *unitOfWorkFactory) CreateForShop(shopID string) application.UnitOfWork {
	return &unitOfWork{
		db:        f.db,
		shopID:    shopID,
		publisher: f.newPublisher(),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create shop-scoped repositories bound to the transaction
	u.sessionRepo = NewGameSessionRepositoryScoped(tx, u.shopID)
	u.ticketRepo = NewTicketRepositoryScoped(tx, u.shopID)
	u.patternRepo = NewPatternRepositoryWithTx(tx) // Pattern lookups carry their own scope
	u.cartelaRepo = NewCartelaRepositoryScoped(tx, u.shopID)

	return nil
}

// Commit commits the transaction and flushes buffered events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil

	// Events are best-effort after a successful commit
	_ = u.publisher.Flush(u.ctx)

	return nil
}

// Rollback rolls back the transaction and discards buffered events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	u.publisher.Discard()

	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// GameSessionRepository returns the session repository for this unit of work
func (u *unitOfWork) GameSessionRepository() interfaces.GameSessionRepository {
	return u.sessionRepo
}

// TicketRepository returns the ticket repository for this unit of work
func (u *unitOfWork) TicketRepository() interfaces.TicketRepository {
	return u.ticketRepo
}

// PatternRepository returns the pattern repository for this unit of work
func (u *unitOfWork) PatternRepository() interfaces.PatternRepository {
	return u.patternRepo
}

// CartelaRepository returns the cartela repository for this unit of work
func (u *unitOfWork) CartelaRepository() interfaces.CartelaRepository {
	return u.cartelaRepo
}

// EventBus returns the transactional event publisher
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	return u.publisher
}
