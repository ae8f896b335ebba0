package application

import (
	"context"
	"fmt"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
	"github.com/YeabtsegaM/server-sub001/domain/services"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SessionCoordinator is the composition root for live game sessions of one
// shop. It owns the pool registry and the draw scheduler, wires completion
// events between them, and exposes the ticket operations to the platform.
type SessionCoordinator struct {
	uowFactory UnitOfWorkFactory
	pools      interfaces.NumberPoolManager
	scheduler  *DrawScheduler
	matcher    interfaces.PatternMatcher
	shopID     string

	drawInterval  time.Duration
	marginPercent float64
}

// CoordinatorConfig configures a shop's session coordinator
type CoordinatorConfig struct {
	ShopID        string
	DrawInterval  time.Duration
	MarginPercent float64
}

// NewSessionCoordinator builds a coordinator with its pool registry and
// draw scheduler, wiring the scheduler's completion signal back into
// session status
func NewSessionCoordinator(uowFactory UnitOfWorkFactory, matcher interfaces.PatternMatcher, cfg CoordinatorConfig) *SessionCoordinator {
	pools := services.NewNumberPoolRegistry()
	scheduler := NewDrawScheduler(uowFactory, pools, cfg.ShopID)

	interval := cfg.DrawInterval
	if interval <= 0 {
		interval = DefaultDrawInterval
	}

	c := &SessionCoordinator{
		uowFactory:    uowFactory,
		pools:         pools,
		scheduler:     scheduler,
		matcher:       matcher,
		shopID:        cfg.ShopID,
		drawInterval:  interval,
		marginPercent: cfg.MarginPercent,
	}

	// Exhaustion detection lives in the scheduler; the status transition
	// lives here
	scheduler.OnComplete(func(cashierID, sessionID string) {
		if err := c.CompleteSession(context.Background(), sessionID); err != nil {
			log.WithError(err).WithField("sessionID", sessionID).Error("Failed to complete session after exhaustion")
		}
	})

	return c
}

// Pools exposes the pool manager for operator commands (shuffle, stats, sync)
func (c *SessionCoordinator) Pools() interfaces.NumberPoolManager {
	return c.pools
}

// Scheduler exposes the draw scheduler for operator commands
func (c *SessionCoordinator) Scheduler() *DrawScheduler {
	return c.scheduler
}

// CreateSession creates a new waiting session for a cashier
func (c *SessionCoordinator) CreateSession(ctx context.Context, cashierID string) (*entities.GameSession, error) {
	session := &entities.GameSession{
		ID:            uuid.New().String(),
		ShopID:        c.shopID,
		CashierID:     cashierID,
		Status:        entities.SessionStatusWaiting,
		MarginPercent: c.marginPercent,
		CreatedAt:     time.Now().UTC(),
	}

	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.GameSessionRepository().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}

	return session, nil
}

// StartSession activates a waiting session and begins its draw loop
func (c *SessionCoordinator) StartSession(ctx context.Context, cashierID, sessionID string) error {
	if err := c.transition(ctx, sessionID, entities.SessionStatusActive); err != nil {
		return err
	}

	c.pools.Initialize(sessionID)
	c.scheduler.Initialize(cashierID, sessionID, DrawConfig{Interval: c.drawInterval})
	if !c.scheduler.Start(ctx, cashierID, sessionID) {
		return fmt.Errorf("failed to start draw scheduler for session %s", sessionID)
	}
	return nil
}

// PauseSession pauses drawing without discarding the pool
func (c *SessionCoordinator) PauseSession(ctx context.Context, cashierID, sessionID string) error {
	c.scheduler.Stop(cashierID)
	return c.transition(ctx, sessionID, entities.SessionStatusPaused)
}

// ResumeSession reactivates a paused session and restarts its draw loop
func (c *SessionCoordinator) ResumeSession(ctx context.Context, cashierID, sessionID string) error {
	if err := c.transition(ctx, sessionID, entities.SessionStatusActive); err != nil {
		return err
	}
	if !c.scheduler.Start(ctx, cashierID, sessionID) {
		return fmt.Errorf("failed to restart draw scheduler for session %s", sessionID)
	}
	return nil
}

// CompleteSession marks a session completed. Called by the scheduler's
// completion signal or by an operator ending the game early.
func (c *SessionCoordinator) CompleteSession(ctx context.Context, sessionID string) error {
	return c.transition(ctx, sessionID, entities.SessionStatusCompleted)
}

// EndSession releases everything a session holds: scheduler, pool, state.
// Required on session end or cashier disconnect.
func (c *SessionCoordinator) EndSession(cashierID string) {
	c.scheduler.Cleanup(cashierID)
}

// ResumeActiveSessions rebuilds pools and schedulers for sessions that were
// live when the process last stopped. Pools are reconciled from the
// authoritative drawn history.
func (c *SessionCoordinator) ResumeActiveSessions(ctx context.Context) error {
	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	sessions, err := uow.GameSessionRepository().GetResumable(ctx)
	uow.Rollback()
	if err != nil {
		return fmt.Errorf("failed to load resumable sessions: %w", err)
	}

	for _, session := range sessions {
		c.pools.Initialize(session.ID)
		if err := c.pools.Sync(session.ID, session.DrawnNumbers); err != nil {
			log.WithError(err).WithField("sessionID", session.ID).Error("Failed to sync pool from drawn history")
			continue
		}
		c.scheduler.Initialize(session.CashierID, session.ID, DrawConfig{Interval: c.drawInterval})
		if session.IsActive() {
			if !c.scheduler.Start(ctx, session.CashierID, session.ID) {
				log.WithField("sessionID", session.ID).Warn("Could not restart scheduler for resumed session")
			}
		}
		log.WithFields(log.Fields{
			"sessionID": session.ID,
			"drawn":     len(session.DrawnNumbers),
			"status":    session.Status,
		}).Info("Resumed session")
	}

	return nil
}

// ShufflePool performs the manual operator reshuffle and announces it
func (c *SessionCoordinator) ShufflePool(ctx context.Context, sessionID string) error {
	if err := c.pools.Shuffle(sessionID); err != nil {
		return err
	}

	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()
	if err := uow.EventBus().Publish(events.PoolShuffledEvent{SessionID: sessionID}); err != nil {
		log.WithError(err).Warn("Failed to publish pool shuffled event")
	}
	return uow.Commit()
}

// PlaceTicket places a wagering ticket through the ledger in one transaction
func (c *SessionCoordinator) PlaceTicket(ctx context.Context, gameID, cartelaID string, stake float64) (*entities.Ticket, error) {
	var ticket *entities.Ticket
	err := c.withLedger(ctx, func(ledger interfaces.TicketLedger) error {
		var err error
		ticket, err = ledger.Place(ctx, gameID, cartelaID, stake)
		return err
	})
	return ticket, err
}

// VerifyTicket checks a ticket against the session's drawn history
func (c *SessionCoordinator) VerifyTicket(ctx context.Context, gameID, cartelaID string) (*entities.VerificationResult, error) {
	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	drawn, err := uow.GameSessionRepository().GetDrawnNumbers(ctx, gameID)
	uow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to load drawn numbers: %w", err)
	}

	var result *entities.VerificationResult
	err = c.withLedger(ctx, func(ledger interfaces.TicketLedger) error {
		var err error
		result, err = ledger.Verify(ctx, gameID, cartelaID, drawn)
		return err
	})
	return result, err
}

// LockTicket freezes a verified ticket result
func (c *SessionCoordinator) LockTicket(ctx context.Context, gameID, cartelaID string) error {
	return c.withLedger(ctx, func(ledger interfaces.TicketLedger) error {
		return ledger.Lock(ctx, gameID, cartelaID)
	})
}

// RedeemTicket claims a ticket's outcome after game completion
func (c *SessionCoordinator) RedeemTicket(ctx context.Context, gameID, cartelaID string) (*interfaces.RedeemResult, error) {
	var result *interfaces.RedeemResult
	err := c.withLedger(ctx, func(ledger interfaces.TicketLedger) error {
		var err error
		result, err = ledger.Redeem(ctx, gameID, cartelaID)
		return err
	})
	return result, err
}

// CancelTicket voids a pending ticket and refunds its stake
func (c *SessionCoordinator) CancelTicket(ctx context.Context, gameID, cartelaID, reason string) error {
	return c.withLedger(ctx, func(ledger interfaces.TicketLedger) error {
		return ledger.Cancel(ctx, gameID, cartelaID, reason)
	})
}

// Shutdown stops every scheduler owned by this coordinator
func (c *SessionCoordinator) Shutdown(ctx context.Context) {
	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return
	}
	sessions, err := uow.GameSessionRepository().GetResumable(ctx)
	uow.Rollback()
	if err != nil {
		log.WithError(err).Warn("Could not enumerate sessions during shutdown")
		return
	}
	for _, session := range sessions {
		c.scheduler.Stop(session.CashierID)
	}
}

// withLedger runs fn with a ticket ledger bound to a fresh unit of work,
// committing on success and rolling back on failure
func (c *SessionCoordinator) withLedger(ctx context.Context, fn func(interfaces.TicketLedger) error) error {
	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	ledger := services.NewTicketLedger(
		uow.GameSessionRepository(),
		uow.TicketRepository(),
		uow.CartelaRepository(),
		c.matcher,
		uow.EventBus(),
		c.shopID,
		func() string { return uuid.New().String() },
	)

	if err := fn(ledger); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// transition performs a guarded session status change in one transaction
func (c *SessionCoordinator) transition(ctx context.Context, sessionID string, next entities.SessionStatus) error {
	uow := c.uowFactory.CreateForShop(c.shopID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	session, err := uow.GameSessionRepository().GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return services.ErrSessionNotFound
	}
	if session.Status == next {
		return nil
	}
	if !session.CanTransitionTo(next) {
		return fmt.Errorf("cannot transition session %s from %s to %s", sessionID, session.Status, next)
	}

	if err := uow.GameSessionRepository().UpdateStatus(ctx, sessionID, next); err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit status change: %w", err)
	}

	log.WithFields(log.Fields{
		"sessionID": sessionID,
		"status":    next,
	}).Info("Session status changed")
	return nil
}
